package service

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"datanode/internal/logging"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// StaticResolver 固定的 NameNode 地址
type StaticResolver struct {
	Address string
}

func (r StaticResolver) Resolve(context.Context) (string, error) {
	if r.Address == "" {
		return "", errors.New("namenode address is empty")
	}
	return r.Address, nil
}

// EtcdResolver 通过 etcd 选举发现 NameNode Leader，失败时回退到静态地址
type EtcdResolver struct {
	client   *clientv3.Client
	prefix   string
	fallback string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEtcdResolver 创建 etcd 客户端
func NewEtcdResolver(endpoints []string, dialTimeout time.Duration, prefix, fallback string, logger *slog.Logger) (*EtcdResolver, error) {
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create etcd client")
	}

	return &EtcdResolver{
		client:   etcdClient,
		prefix:   prefix,
		fallback: fallback,
		timeout:  dialTimeout,
		logger:   logging.Component(logger, "resolver"),
	}, nil
}

// Resolve 返回当前 Leader 地址，etcd 不可用或没有 Leader 时返回静态地址
func (r *EtcdResolver) Resolve(ctx context.Context) (string, error) {
	addr, err := r.discoverLeader(ctx)
	if err != nil {
		if r.fallback == "" {
			return "", err
		}
		r.logger.Warn("namenode leader discovery failed, using static address",
			slog.String("fallback", r.fallback), slog.Any("error", err))
		return r.fallback, nil
	}
	return addr, nil
}

// discoverLeader 从 etcd 选举中读取当前 Leader
func (r *EtcdResolver) discoverLeader(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	session, err := concurrency.NewSession(r.client, concurrency.WithTTL(10), concurrency.WithContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, "failed to create session")
	}
	defer session.Close()

	election := concurrency.NewElection(session, r.prefix)
	leaderResp, err := election.Leader(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to query leader from election")
	}
	if len(leaderResp.Kvs) == 0 {
		return "", errors.New("no leader found in election")
	}

	addr, err := parseLeaderValue(string(leaderResp.Kvs[0].Value))
	if err != nil {
		return "", err
	}
	r.logger.Debug("discovered namenode leader", slog.String("address", addr))
	return addr, nil
}

// Close 关闭 etcd 客户端
func (r *EtcdResolver) Close() error {
	return r.client.Close()
}

// parseLeaderValue 解析选举值："nodeID:host:port" 或 "host:port"
func parseLeaderValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return "", errors.Newf("invalid leader info format: %q", value)
	}

	addr := value
	if len(parts) > 2 {
		addr = strings.Join(parts[1:], ":")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", errors.Wrapf(err, "invalid leader address %q", addr)
	}
	return addr, nil
}
