package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"datanode/internal/logging"
	"datanode/internal/model"
	"datanode/pb"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GrpcTransferClient 访问 DataNode 块传输接口的客户端
type GrpcTransferClient struct {
	connectionTimeout time.Duration
	chunkSize         int
	dialOptions       []grpc.DialOption
	logger            *slog.Logger

	mu          sync.Mutex
	connections map[string]*grpc.ClientConn // 连接缓存
}

// NewTransferClient 创建传输客户端，extra 追加到默认拨号选项之后
func NewTransferClient(connectionTimeout time.Duration, logger *slog.Logger, extra ...grpc.DialOption) *GrpcTransferClient {
	if connectionTimeout <= 0 {
		connectionTimeout = 5 * time.Second
	}
	return &GrpcTransferClient{
		connectionTimeout: connectionTimeout,
		chunkSize:         model.DefaultUploadChunkSize,
		dialOptions:       extra,
		logger:            logging.Component(logger, "transfer-client"),
		connections:       make(map[string]*grpc.ClientConn),
	}
}

// UploadBlock 分片上传一个块，第一条消息携带块 ID
func (c *GrpcTransferClient) UploadBlock(ctx context.Context, addr, blockID string, data []byte) (bool, error) {
	client, err := c.client(ctx, addr)
	if err != nil {
		return false, err
	}

	stream, err := client.WriteBlock(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to create write stream")
	}

	first := true
	for offset := 0; first || offset < len(data); offset += c.chunkSize {
		end := offset + c.chunkSize
		if end > len(data) {
			end = len(data)
		}

		req := &pb.WriteBlockRequest{Data: data[offset:end]}
		if first {
			req.BlockId = blockID
			first = false
		}
		if err := stream.Send(req); err != nil {
			if errors.Is(err, io.EOF) {
				// 服务端已结束流，真实错误由 CloseAndRecv 返回
				break
			}
			return false, errors.Wrap(err, "failed to send data chunk")
		}
	}

	resp, err := stream.CloseAndRecv()
	if err != nil {
		return false, errors.Wrap(err, "failed to close stream and receive response")
	}

	c.logger.Debug("block uploaded",
		slog.String("target", addr),
		slog.String("block_id", blockID),
		slog.Int("bytes", len(data)),
		slog.Bool("success", resp.GetSuccess()))
	return resp.GetSuccess(), nil
}

// DownloadBlock 拉取一个块并拼接所有分片
func (c *GrpcTransferClient) DownloadBlock(ctx context.Context, addr, blockID string) ([]byte, error) {
	client, err := c.client(ctx, addr)
	if err != nil {
		return nil, err
	}

	stream, err := client.ReadBlock(ctx, &pb.ReadBlockRequest{BlockId: blockID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create read stream")
	}

	data := []byte{}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			switch status.Code(err) {
			case codes.NotFound:
				return nil, errors.Wrapf(model.ErrBlockNotFound, "block %s on %s", blockID, addr)
			case codes.InvalidArgument:
				return nil, errors.Wrapf(model.ErrInvalidBlockID, "block %s on %s", blockID, addr)
			}
			return nil, errors.Wrap(err, "failed to receive data chunk")
		}
		data = append(data, resp.GetData()...)
	}

	return data, nil
}

// DeleteBlock 删除远端块，返回服务端的结果
func (c *GrpcTransferClient) DeleteBlock(ctx context.Context, addr, blockID string) (bool, error) {
	client, err := c.client(ctx, addr)
	if err != nil {
		return false, err
	}

	resp, err := client.DeleteBlock(ctx, &pb.DeleteBlockRequest{BlockId: blockID})
	if err != nil {
		return false, errors.Wrap(err, "delete block")
	}
	return resp.GetSuccess(), nil
}

func (c *GrpcTransferClient) client(ctx context.Context, addr string) (pb.DataNodeServiceClient, error) {
	conn, err := c.getConnection(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}
	return pb.NewDataNodeServiceClient(conn), nil
}

// getConnection 获取或创建到目标地址的 gRPC 连接
func (c *GrpcTransferClient) getConnection(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, exists := c.connections[addr]; exists {
		if conn.GetState() != connectivity.Shutdown {
			return conn, nil
		}
		delete(c.connections, addr)
	}

	ctx, cancel := context.WithTimeout(ctx, c.connectionTimeout)
	defer cancel()

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, c.dialOptions...)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}

	c.connections[addr] = conn
	return conn, nil
}

// Close 关闭所有缓存的连接
func (c *GrpcTransferClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result error
	for addr, conn := range c.connections {
		if err := conn.Close(); err != nil {
			c.logger.Warn("failed to close connection", slog.String("target", addr), slog.Any("error", err))
			result = errors.CombineErrors(result, err)
		}
	}
	c.connections = make(map[string]*grpc.ClientConn)
	return result
}
