package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"datanode/internal/logging"
	"datanode/internal/model"
	"datanode/pb"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	grpcbackoff "google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// CoordinatorClientOptions NameNode 连接参数
type CoordinatorClientOptions struct {
	ConnectTimeout   time.Duration
	CallTimeout      time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	MaxMessageSize   int
	// DialOptions 追加的拨号选项，测试中用于注入 bufconn
	DialOptions []grpc.DialOption
}

// CoordinatorClientOptionsFromConfig 从配置构建连接参数
func CoordinatorClientOptionsFromConfig(config *model.Config) CoordinatorClientOptions {
	return CoordinatorClientOptions{
		ConnectTimeout:   model.Seconds(config.NameNode.ConnectionTimeout),
		CallTimeout:      model.Seconds(config.NameNode.ConnectionTimeout),
		KeepaliveTime:    model.Seconds(config.NameNode.KeepaliveTime),
		KeepaliveTimeout: model.Seconds(config.NameNode.KeepaliveTimeout),
		MaxMessageSize:   config.Server.MaxMessageSize,
	}
}

// GrpcCoordinatorClient 到 NameNode 的 gRPC 客户端，连接可在进程内重建
type GrpcCoordinatorClient struct {
	resolver model.Resolver
	opts     CoordinatorClientOptions
	logger   *slog.Logger

	mu     sync.RWMutex
	conn   *grpc.ClientConn
	client pb.NameNodeServiceClient
	target string
	closed bool

	// 进行中的调用，关闭时在宽限期内等待
	inflight sync.WaitGroup
}

// NewCoordinatorClient 创建客户端，连接在首次 Reconnect 时建立
func NewCoordinatorClient(resolver model.Resolver, opts CoordinatorClientOptions, logger *slog.Logger) *GrpcCoordinatorClient {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4 * 1024 * 1024
	}
	return &GrpcCoordinatorClient{
		resolver: resolver,
		opts:     opts,
		logger:   logging.Component(logger, "coordinator-client"),
	}
}

// Reconnect 关闭旧连接并按当前解析到的地址重新拨号
// 拨号不阻塞，连接错误会在第一次调用时暴露
func (c *GrpcCoordinatorClient) Reconnect(ctx context.Context) error {
	target, err := c.resolver.Resolve(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to resolve namenode address")
	}

	conn, err := grpc.DialContext(ctx, target, c.dialOptions()...)
	if err != nil {
		return errors.Wrapf(err, "failed to dial namenode %s", target)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return model.ErrClientClosed
	}
	old, oldTarget := c.conn, c.target
	c.conn = conn
	c.client = pb.NewNameNodeServiceClient(conn)
	c.target = target
	c.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Debug("failed to close previous namenode connection",
				slog.String("target", oldTarget), slog.Any("error", err))
		}
	}

	c.logger.Info("namenode connection established", slog.String("target", target))
	return nil
}

func (c *GrpcCoordinatorClient) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           grpcbackoff.DefaultConfig,
			MinConnectTimeout: c.opts.ConnectTimeout,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.opts.MaxMessageSize),
			grpc.MaxCallSendMsgSize(c.opts.MaxMessageSize),
		),
	}
	if c.opts.KeepaliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.opts.KeepaliveTime,
			Timeout:             c.opts.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	return append(opts, c.opts.DialOptions...)
}

// acquire 获取当前连接的客户端并登记一次进行中的调用
func (c *GrpcCoordinatorClient) acquire() (pb.NameNodeServiceClient, func(), error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, nil, model.ErrClientClosed
	}
	if c.client == nil {
		return nil, nil, errors.New("namenode connection not established")
	}
	c.inflight.Add(1)
	return c.client, c.inflight.Done, nil
}

// RegisterNode 向 NameNode 注册本节点
func (c *GrpcCoordinatorClient) RegisterNode(ctx context.Context, identity model.NodeIdentity) (bool, error) {
	client, done, err := c.acquire()
	if err != nil {
		return false, err
	}
	defer done()

	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	resp, err := client.RegisterDataNode(ctx, &pb.RegisterDataNodeRequest{
		Datanode: &pb.DataNodeInfo{
			Id:        identity.ID,
			Address:   identity.Address,
			Capacity:  identity.Capacity,
			FreeSpace: identity.FreeSpace,
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "register datanode")
	}
	return resp.GetSuccess(), nil
}

// Heartbeat 上报存活状态与可用空间
func (c *GrpcCoordinatorClient) Heartbeat(ctx context.Context, nodeID string, freeSpace uint64) (bool, error) {
	client, done, err := c.acquire()
	if err != nil {
		return false, err
	}
	defer done()

	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	resp, err := client.Heartbeat(ctx, &pb.HeartbeatRequest{
		DatanodeId: nodeID,
		FreeSpace:  int64(freeSpace),
	})
	if err != nil {
		return false, errors.Wrap(err, "heartbeat")
	}
	return resp.GetSuccess(), nil
}

// Target 当前连接的地址
func (c *GrpcCoordinatorClient) Target() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// Close 拒绝新调用，在 ctx 截止前等待进行中的调用完成后关闭连接
// 宽限期耗尽时仍会关闭连接并返回 ErrForcedClose
func (c *GrpcCoordinatorClient) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()

	forced := false
	select {
	case <-drained:
	case <-ctx.Done():
		forced = true
	}

	if conn != nil {
		if err := conn.Close(); err != nil && !forced {
			return errors.Wrap(err, "failed to close namenode connection")
		}
	}
	if forced {
		c.logger.Warn("namenode connection force-closed after grace period")
		return model.ErrForcedClose
	}
	return nil
}
