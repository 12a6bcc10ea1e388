package handler

import (
	"context"
	"io"
	"log/slog"

	"datanode/internal/logging"
	"datanode/internal/model"
	"datanode/internal/service"
	"datanode/pb"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DataNodeHandler 实现 DataNodeService 的 gRPC 处理器
type DataNodeHandler struct {
	pb.UnimplementedDataNodeServiceServer

	storageService model.StorageService
	metrics        *service.Metrics
	logger         *slog.Logger
	chunkSize      int
}

// NewDataNodeHandler 创建新的 DataNode 处理器
func NewDataNodeHandler(storageSvc model.StorageService, metrics *service.Metrics, logger *slog.Logger) *DataNodeHandler {
	return &DataNodeHandler{
		storageService: storageSvc,
		metrics:        metrics,
		logger:         logging.Component(logger, "transfer"),
		chunkSize:      model.DefaultChunkSize,
	}
}

// WriteBlock 实现流式写入数据块
// 块 ID 取自第一个携带非空 ID 的消息，数据按到达顺序拼接
func (h *DataNodeHandler) WriteBlock(stream pb.DataNodeService_WriteBlockServer) error {
	var blockID string
	var allData []byte

	for {
		req, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.logger.Warn("write stream aborted, block not persisted",
				slog.String("block_id", blockID), slog.Any("error", err))
			h.metrics.BlockOp("write", false, 0)
			return err
		}

		if blockID == "" && req.GetBlockId() != "" {
			blockID = req.GetBlockId()
		}
		allData = append(allData, req.GetData()...)
	}

	if blockID == "" {
		h.logger.Warn("write stream carried no block id", slog.Int("bytes", len(allData)))
		h.metrics.BlockOp("write", false, 0)
		return stream.SendAndClose(&pb.WriteBlockResponse{Success: false})
	}

	err := h.storageService.WriteBlock(blockID, allData)
	success := err == nil
	h.metrics.BlockOp("write", success, len(allData))

	if err != nil {
		h.logger.Error("failed to write block",
			slog.String("block_id", blockID), slog.Any("error", err))
	} else {
		h.logger.Info("block written",
			slog.String("event", logging.EventBlockWritten),
			slog.String("block_id", blockID),
			slog.String("size", humanize.IBytes(uint64(len(allData)))))
	}

	return stream.SendAndClose(&pb.WriteBlockResponse{Success: success})
}

// ReadBlock 实现流式读取数据块
func (h *DataNodeHandler) ReadBlock(req *pb.ReadBlockRequest, stream pb.DataNodeService_ReadBlockServer) error {
	blockID := req.GetBlockId()

	data, err := h.storageService.ReadBlock(blockID)
	if err != nil {
		h.metrics.BlockOp("read", false, 0)
		switch {
		case errors.Is(err, model.ErrBlockNotFound):
			h.logger.Info("block not found", slog.String("block_id", blockID))
			return status.Errorf(codes.NotFound, "block not found: %s", blockID)
		case errors.Is(err, model.ErrInvalidBlockID):
			return status.Errorf(codes.InvalidArgument, "invalid block id: %q", blockID)
		default:
			h.logger.Error("failed to read block", slog.String("block_id", blockID), slog.Any("error", err))
			return status.Errorf(codes.Internal, "failed to read block %s: %v", blockID, err)
		}
	}

	for i := 0; i < len(data); i += h.chunkSize {
		end := i + h.chunkSize
		if end > len(data) {
			end = len(data)
		}

		if err := stream.Send(&pb.ReadBlockResponse{Data: data[i:end]}); err != nil {
			h.logger.Warn("failed to send chunk",
				slog.String("block_id", blockID), slog.Int("offset", i), slog.Any("error", err))
			h.metrics.BlockOp("read", false, 0)
			return err
		}
	}

	h.metrics.BlockOp("read", true, len(data))
	h.logger.Info("block read",
		slog.String("event", logging.EventBlockRead),
		slog.String("block_id", blockID),
		slog.String("size", humanize.IBytes(uint64(len(data)))))
	return nil
}

// DeleteBlock 实现删除数据块
func (h *DataNodeHandler) DeleteBlock(ctx context.Context, req *pb.DeleteBlockRequest) (*pb.DeleteBlockResponse, error) {
	blockID := req.GetBlockId()

	err := h.storageService.DeleteBlock(blockID)
	success := err == nil
	h.metrics.BlockOp("delete", success, 0)

	if err != nil {
		h.logger.Warn("failed to delete block", slog.String("block_id", blockID), slog.Any("error", err))
	} else {
		h.logger.Info("block deleted",
			slog.String("event", logging.EventBlockDeleted),
			slog.String("block_id", blockID))
	}

	return &pb.DeleteBlockResponse{Success: success}, nil
}
