package service

import (
	"context"
	"log/slog"
	"sync"

	"datanode/internal/logging"
	"datanode/internal/model"

	"github.com/dustin/go-humanize"
)

// MockCoordinator 模拟 NameNode，用于 --mock 模式和测试
// 默认接受所有注册与心跳
type MockCoordinator struct {
	logger *slog.Logger

	mu             sync.Mutex
	registerFunc   func(attempt int, identity model.NodeIdentity) (bool, error)
	heartbeatFunc  func(n int, nodeID string, freeSpace uint64) (bool, error)
	registerCalls  int
	acceptedCalls  int
	heartbeatCalls int
	reconnects     int
	inflight       int
	maxInflight    int
	closed         bool
}

// NewMockCoordinator 创建模拟 NameNode
func NewMockCoordinator(logger *slog.Logger) *MockCoordinator {
	return &MockCoordinator{logger: logging.Component(logger, "mock-namenode")}
}

// SetRegisterFunc 设置注册响应，attempt 从 1 开始
func (m *MockCoordinator) SetRegisterFunc(fn func(attempt int, identity model.NodeIdentity) (bool, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerFunc = fn
}

// SetHeartbeatFunc 设置心跳响应，n 从 1 开始
func (m *MockCoordinator) SetHeartbeatFunc(fn func(n int, nodeID string, freeSpace uint64) (bool, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatFunc = fn
}

func (m *MockCoordinator) RegisterNode(ctx context.Context, identity model.NodeIdentity) (bool, error) {
	m.mu.Lock()
	m.registerCalls++
	attempt := m.registerCalls
	fn := m.registerFunc
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	m.mu.Unlock()

	accepted, err := true, error(nil)
	if fn != nil {
		accepted, err = fn(attempt, identity)
	}

	m.mu.Lock()
	m.inflight--
	if err == nil && accepted {
		m.acceptedCalls++
	}
	m.mu.Unlock()

	m.logger.Info("[MOCK] register datanode",
		slog.String("datanode_id", identity.ID),
		slog.String("address", identity.Address),
		slog.Int("attempt", attempt),
		slog.Bool("accepted", accepted && err == nil))
	return accepted, err
}

func (m *MockCoordinator) Heartbeat(ctx context.Context, nodeID string, freeSpace uint64) (bool, error) {
	m.mu.Lock()
	m.heartbeatCalls++
	n := m.heartbeatCalls
	fn := m.heartbeatFunc
	m.mu.Unlock()

	accepted, err := true, error(nil)
	if fn != nil {
		accepted, err = fn(n, nodeID, freeSpace)
	}

	m.logger.Debug("[MOCK] heartbeat",
		slog.String("datanode_id", nodeID),
		slog.String("free_space", humanize.IBytes(freeSpace)),
		slog.Bool("accepted", accepted && err == nil))
	return accepted, err
}

func (m *MockCoordinator) Reconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.ErrClientClosed
	}
	m.reconnects++
	return nil
}

func (m *MockCoordinator) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// RegisterCalls 注册调用次数
func (m *MockCoordinator) RegisterCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerCalls
}

// AcceptedRegistrations 被接受的注册次数
func (m *MockCoordinator) AcceptedRegistrations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acceptedCalls
}

// HeartbeatCalls 心跳调用次数
func (m *MockCoordinator) HeartbeatCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeatCalls
}

// Reconnects 重连次数
func (m *MockCoordinator) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// MaxConcurrentRegistrations 同时进行中的注册调用的最大值
func (m *MockCoordinator) MaxConcurrentRegistrations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInflight
}

// Closed 是否已关闭
func (m *MockCoordinator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
