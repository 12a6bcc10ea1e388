package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"datanode/internal/logging"
	"datanode/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// FreeSpaceReporter 心跳所需的存储视图
type FreeSpaceReporter interface {
	FreeSpace() (uint64, error)
}

// SessionConfig 会话参数
type SessionConfig struct {
	Identity          model.NodeIdentity
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
}

// SessionConfigFromConfig 从配置构建会话参数
// 注册时上报的容量与可用空间均为配置的静态容量
func SessionConfigFromConfig(config *model.Config) SessionConfig {
	return SessionConfig{
		Identity: model.NodeIdentity{
			ID:        config.Server.DatanodeId,
			Address:   config.Server.AdvertiseAddress,
			Capacity:  config.Storage.CapacityBytes,
			FreeSpace: config.Storage.CapacityBytes,
		},
		HeartbeatInterval: model.Seconds(config.NameNode.HeartbeatInterval),
		ReconnectDelay:    model.Seconds(config.NameNode.ReconnectDelay),
		MaxAttempts:       config.Registration.MaxAttempts,
		BaseDelay:         model.Seconds(config.Registration.BaseDelay),
		MaxDelay:          model.Seconds(config.Registration.MaxDelay),
	}
}

var _ model.SessionService = (*DefaultSessionService)(nil)

// DefaultSessionService 维护与 NameNode 的会话：注册、心跳、断线重连
//
// 同一时刻最多只有一个注册周期在运行，由 supervise 协程统一发起。
// 注册周期进行中收到的心跳失败信号会被合并丢弃。
type DefaultSessionService struct {
	config      SessionConfig
	coordinator model.Coordinator
	storage     FreeSpaceReporter
	metrics     *Metrics
	logger      *slog.Logger

	mu         sync.Mutex
	state      model.SessionState
	registered bool
	running    bool
	cancel     context.CancelFunc

	failures chan struct{}
	wg       sync.WaitGroup

	// 测试注入
	newTimer func() backoff.Timer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSessionService 创建会话服务
func NewSessionService(config SessionConfig, coordinator model.Coordinator, storage FreeSpaceReporter, metrics *Metrics, logger *slog.Logger) *DefaultSessionService {
	return &DefaultSessionService{
		config:      config,
		coordinator: coordinator,
		storage:     storage,
		metrics:     metrics,
		logger:      logging.Component(logger, "session"),
		state:       model.StateDisconnected,
		failures:    make(chan struct{}, 1),
		sleep:       sleepContext,
	}
}

// Start 启动注册与心跳，立即返回
func (s *DefaultSessionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("session is already running")
	}
	if s.config.HeartbeatInterval <= 0 {
		return errors.Newf("invalid heartbeat interval %s", s.config.HeartbeatInterval)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(2)
	go s.supervise(ctx)
	go s.heartbeatLoop(ctx)

	s.logger.Info("session started",
		slog.String("datanode_id", s.config.Identity.ID),
		slog.String("address", s.config.Identity.Address),
		slog.Duration("heartbeat_interval", s.config.HeartbeatInterval))
	return nil
}

// Stop 停止心跳与注册，等待后台协程退出
func (s *DefaultSessionService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.state = model.StateDisconnected
	s.registered = false
	s.mu.Unlock()
	s.metrics.setRegistered(false)

	s.logger.Info("session stopped")
	return nil
}

// State 当前状态
func (s *DefaultSessionService) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Registered NameNode 是否认为本节点已注册
func (s *DefaultSessionService) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// advance 在未注册时切换状态，已注册时保持 Registered
func (s *DefaultSessionService) advance(state model.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registered {
		s.state = state
	}
}

func (s *DefaultSessionService) markRegistered() bool {
	s.mu.Lock()
	was := s.registered
	s.registered = true
	s.state = model.StateRegistered
	s.mu.Unlock()

	s.metrics.setRegistered(true)
	return !was
}

// supervise 唯一发起注册周期的协程
func (s *DefaultSessionService) supervise(ctx context.Context) {
	defer s.wg.Done()

	var cycleDone chan struct{}
	startCycle := func(reconnect bool) {
		done := make(chan struct{})
		cycleDone = done
		go func() {
			defer close(done)
			s.runCycle(ctx, reconnect)
		}()
	}

	startCycle(false)
	for {
		select {
		case <-ctx.Done():
			if cycleDone != nil {
				<-cycleDone
			}
			return
		case <-cycleDone:
			cycleDone = nil
		case <-s.failures:
			if cycleDone != nil {
				s.logger.Debug("reconnection already in progress, ignoring heartbeat failure")
				continue
			}
			startCycle(true)
		}
	}
}

// runCycle 一次完整的连接与注册流程
func (s *DefaultSessionService) runCycle(ctx context.Context, reconnect bool) {
	if reconnect {
		if s.Registered() {
			return
		}
		s.advance(model.StateDisconnected)
		s.metrics.sessionEvent(logging.EventReconnecting)
		s.logger.Info("reconnecting to namenode", slog.String("event", logging.EventReconnecting))
	}

	s.advance(model.StateConnecting)
	if err := s.coordinator.Reconnect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("failed to rebuild namenode connection", slog.Any("error", err))
	}

	if reconnect {
		if err := s.sleep(ctx, s.config.ReconnectDelay); err != nil {
			return
		}
	}

	s.register(ctx)
}

// register 按指数退避注册，次数耗尽后放弃，等待心跳自愈或下一次失败触发
func (s *DefaultSessionService) register(ctx context.Context) {
	maxAttempts := s.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	operation := func() error {
		if s.Registered() {
			return nil
		}
		attempt++
		s.advance(model.StateRegistering)

		accepted, err := s.coordinator.RegisterNode(ctx, s.config.Identity)
		if err == nil && !accepted {
			err = errors.New("registration rejected by namenode")
		}
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			s.metrics.sessionEvent(logging.EventRegistrationFailed)
			s.logger.Warn("registration attempt failed",
				slog.String("event", logging.EventRegistrationFailed),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
				slog.Any("error", err))
			return err
		}

		if s.markRegistered() {
			s.metrics.sessionEvent(logging.EventRegistered)
			s.logger.Info("registered with namenode",
				slog.String("event", logging.EventRegistered),
				slog.String("datanode_id", s.config.Identity.ID),
				slog.Int("attempt", attempt))
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		s.logger.Debug("retrying registration", slog.Duration("retry_in", next))
	}

	var timer backoff.Timer
	if s.newTimer != nil {
		timer = s.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, s.registrationBackOff(ctx, maxAttempts), notify, timer)
	if err == nil || ctx.Err() != nil {
		return
	}

	s.advance(model.StateDisconnected)
	s.logger.Error("registration attempts exhausted, waiting for heartbeat to recover",
		slog.Int("attempts", attempt), slog.Any("error", err))
}

// registrationBackOff 第 n 次重试前等待 min(base*2^(n-1), max)，共 maxAttempts 次尝试
func (s *DefaultSessionService) registrationBackOff(ctx context.Context, maxAttempts int) backoff.BackOff {
	if maxAttempts == 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.BaseDelay
	b.MaxInterval = s.config.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
}

// heartbeatLoop 按固定周期发送心跳，与注册周期互不阻塞
func (s *DefaultSessionService) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("heartbeat loop stopping")
			return
		case <-ticker.C:
			s.sendHeartbeat(ctx)
		}
	}
}

func (s *DefaultSessionService) sendHeartbeat(ctx context.Context) {
	free, err := s.storage.FreeSpace()
	if err != nil {
		s.logger.Warn("failed to query free space, reporting 0", slog.Any("error", err))
		free = 0
	}

	accepted, err := s.coordinator.Heartbeat(ctx, s.config.Identity.ID, free)
	if ctx.Err() != nil {
		return
	}
	if err == nil && !accepted {
		err = errors.New("heartbeat rejected by namenode")
	}
	if err != nil {
		s.heartbeatFailed(err)
		return
	}

	if s.markRegistered() {
		s.metrics.sessionEvent(logging.EventRegistered)
		s.logger.Info("namenode acknowledged heartbeat, session restored",
			slog.String("event", logging.EventRegistered),
			slog.String("datanode_id", s.config.Identity.ID))
	}
	s.logger.Debug("heartbeat sent", slog.String("free_space", humanize.IBytes(free)))
}

// heartbeatFailed 标记未注册并通知 supervise 重连
func (s *DefaultSessionService) heartbeatFailed(err error) {
	s.mu.Lock()
	wasRegistered := s.registered
	s.registered = false
	if s.state == model.StateRegistered {
		s.state = model.StateDisconnected
	}
	s.mu.Unlock()

	s.metrics.setRegistered(false)
	s.metrics.sessionEvent(logging.EventHeartbeatFailed)
	s.logger.Warn("heartbeat failed",
		slog.String("event", logging.EventHeartbeatFailed),
		slog.Bool("was_registered", wasRegistered),
		slog.Any("error", err))

	select {
	case s.failures <- struct{}{}:
	default:
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
