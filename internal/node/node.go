// Package node 组装 DataNode 的各个组件并管理其生命周期
package node

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"datanode/internal/handler"
	"datanode/internal/logging"
	"datanode/internal/model"
	"datanode/internal/service"
	"datanode/pb"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Options 构建 Node 的参数
type Options struct {
	Config *model.Config
	// Mock 使用进程内模拟 NameNode
	Mock   bool
	Logger *slog.Logger
	// Fs 为空时使用 OsFs
	Fs afero.Fs
	// Coordinator 非空时替代根据配置创建的 NameNode 客户端
	Coordinator model.Coordinator
}

// Node 一个运行中的 DataNode
type Node struct {
	config *model.Config
	logger *slog.Logger

	storage     *service.LocalStorageService
	metrics     *service.Metrics
	registry    *prometheus.Registry
	coordinator model.Coordinator
	resolver    model.Resolver
	session     model.SessionService

	grpcServer    *grpc.Server
	health        *health.Server
	listener      net.Listener
	metricsServer *http.Server

	group *errgroup.Group
}

// New 初始化存储与各组件，存储根目录无法创建时返回错误
func New(opts Options) (*Node, error) {
	config := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	storage, err := service.NewStorageService(opts.Fs, config.Storage.DataRootPath, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage service")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)
	service.RegisterStorageGauges(registry, storage)

	n := &Node{
		config:   config,
		logger:   logging.Component(logger, "node"),
		storage:  storage,
		metrics:  metrics,
		registry: registry,
	}

	switch {
	case opts.Coordinator != nil:
		n.coordinator = opts.Coordinator
	case opts.Mock:
		n.coordinator = service.NewMockCoordinator(logger)
		n.logger.Info("mock namenode initialized")
	default:
		n.resolver, err = newResolver(config, logger)
		if err != nil {
			return nil, err
		}
		n.coordinator = service.NewCoordinatorClient(n.resolver, service.CoordinatorClientOptionsFromConfig(config), logger)
	}

	n.session = service.NewSessionService(service.SessionConfigFromConfig(config), n.coordinator, storage, metrics, logger)

	n.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(config.Server.MaxMessageSize),
		grpc.MaxSendMsgSize(config.Server.MaxMessageSize),
	)
	pb.RegisterDataNodeServiceServer(n.grpcServer, handler.NewDataNodeHandler(storage, metrics, logger))
	n.health = health.NewServer()
	healthpb.RegisterHealthServer(n.grpcServer, n.health)

	return n, nil
}

// newResolver 配置了 etcd 时通过选举发现 NameNode，否则使用静态地址
func newResolver(config *model.Config, logger *slog.Logger) (model.Resolver, error) {
	static := net.JoinHostPort(config.NameNode.Host, strconv.Itoa(config.NameNode.Port))
	if len(config.Etcd.Endpoints) == 0 {
		return service.StaticResolver{Address: static}, nil
	}

	resolver, err := service.NewEtcdResolver(config.Etcd.Endpoints, model.Seconds(config.Etcd.DialTimeout),
		config.Etcd.ElectionPrefix, static, logger)
	if err != nil {
		return nil, err
	}
	return resolver, nil
}

// Start 监听并开始服务，随后在后台启动会话，不等待注册完成
func (n *Node) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.config.Server.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", n.config.Server.ListenAddress)
	}
	n.listener = listener

	n.group = &errgroup.Group{}
	n.group.Go(func() error {
		if err := n.grpcServer.Serve(listener); err != nil {
			return errors.Wrap(err, "grpc server")
		}
		return nil
	})

	if addr := n.config.Metrics.ListenAddress; addr != "" {
		metricsListener, err := net.Listen("tcp", addr)
		if err != nil {
			n.grpcServer.Stop()
			return errors.Wrapf(err, "failed to listen on metrics address %s", addr)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
		n.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		n.group.Go(func() error {
			if err := n.metricsServer.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		n.logger.Info("metrics endpoint listening", slog.String("address", metricsListener.Addr().String()))
	}

	n.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	n.health.SetServingStatus(pb.DataNodeService_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	n.logger.Info("datanode listening",
		slog.String("address", listener.Addr().String()),
		slog.String("datanode_id", n.config.Server.DatanodeId),
		slog.String("storage", n.storage.RootDir()))
	n.logStorageStat()

	if err := n.session.Start(ctx); err != nil {
		n.grpcServer.Stop()
		return errors.Wrap(err, "failed to start session")
	}
	return nil
}

// logStorageStat 启动时输出本地块存储概况，统计失败不影响启动
func (n *Node) logStorageStat() {
	stat, err := n.storage.GetStat()
	if err != nil {
		n.logger.Warn("failed to get storage stat", slog.Any("error", err))
		return
	}
	n.logger.Info("storage stat",
		slog.Uint64("block_count", stat.BlockCount),
		slog.String("used", humanize.IBytes(stat.UsedSpace)),
		slog.String("free", humanize.IBytes(stat.FreeSpace)),
		slog.String("total", humanize.IBytes(stat.TotalCapacity)))
}

// Addr 传输服务实际监听的地址
func (n *Node) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Storage 块存储
func (n *Node) Storage() *service.LocalStorageService { return n.storage }

// Session 会话服务
func (n *Node) Session() model.SessionService { return n.session }

// Coordinator NameNode 客户端
func (n *Node) Coordinator() model.Coordinator { return n.coordinator }

// Registry 指标注册表
func (n *Node) Registry() *prometheus.Registry { return n.registry }

// Shutdown 停止会话与传输服务，在宽限期后强制关闭
func (n *Node) Shutdown(ctx context.Context) error {
	grace := model.Seconds(n.config.Shutdown.GracePeriod)
	var result error

	n.health.Shutdown()

	if err := n.session.Stop(); err != nil {
		result = errors.CombineErrors(result, err)
	}
	n.logger.Info("session stopped")

	grpcDone := make(chan struct{})
	go func() {
		n.grpcServer.GracefulStop()
		close(grpcDone)
	}()
	select {
	case <-grpcDone:
		n.logger.Info("grpc server gracefully stopped")
	case <-time.After(grace):
		n.logger.Warn("grpc graceful stop timeout, forcing stop")
		n.grpcServer.Stop()
	case <-ctx.Done():
		n.logger.Warn("shutdown deadline reached, forcing stop")
		n.grpcServer.Stop()
	}

	if n.metricsServer != nil {
		if err := n.metricsServer.Shutdown(ctx); err != nil {
			n.metricsServer.Close()
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := n.coordinator.Close(closeCtx); err != nil {
		if errors.Is(err, model.ErrForcedClose) {
			n.logger.Warn("namenode connection force-closed")
		} else {
			result = errors.CombineErrors(result, err)
		}
	}

	if closer, ok := n.resolver.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			n.logger.Debug("failed to close resolver", slog.Any("error", err))
		}
	}

	if n.group != nil {
		if err := n.group.Wait(); err != nil {
			result = errors.CombineErrors(result, err)
		}
	}
	return result
}
