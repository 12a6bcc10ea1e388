package model

import (
	"context"
	"time"
)

const (
	// DefaultChunkSize 下载时每个分片的大小
	DefaultChunkSize = 128 * 1024
	// DefaultUploadChunkSize 客户端上传时每个分片的大小
	DefaultUploadChunkSize = 64 * 1024
	// DefaultCapacity 注册时上报的静态容量
	DefaultCapacity = 10_000_000_000
)

// Config 配置结构体，映射 config.yaml
type Config struct {
	Server struct {
		ListenAddress    string `yaml:"listen_address"`
		AdvertiseAddress string `yaml:"advertise_address"`
		DatanodeId       string `yaml:"datanode_id"`
		MaxMessageSize   int    `yaml:"max_message_size"`
	} `yaml:"server"`

	Storage struct {
		DataRootPath  string `yaml:"data_root_path"`
		CapacityBytes int64  `yaml:"capacity_bytes"`
	} `yaml:"storage"`

	NameNode struct {
		Host              string `yaml:"host"`
		Port              int    `yaml:"port"`
		HeartbeatInterval int    `yaml:"heartbeat_interval"`
		ConnectionTimeout int    `yaml:"connection_timeout"`
		KeepaliveTime     int    `yaml:"keepalive_time"`
		KeepaliveTimeout  int    `yaml:"keepalive_timeout"`
		ReconnectDelay    int    `yaml:"reconnect_delay"`
	} `yaml:"namenode"`

	Registration struct {
		MaxAttempts int `yaml:"max_attempts"`
		BaseDelay   int `yaml:"base_delay"`
		MaxDelay    int `yaml:"max_delay"`
	} `yaml:"registration"`

	Etcd struct {
		Endpoints      []string `yaml:"endpoints"`
		DialTimeout    int      `yaml:"dial_timeout"`
		ElectionPrefix string   `yaml:"election_prefix"`
	} `yaml:"etcd"`

	Metrics struct {
		ListenAddress string `yaml:"listen_address"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level"`
		Output string `yaml:"output"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Shutdown struct {
		Timeout     int `yaml:"timeout"`
		GracePeriod int `yaml:"grace_period"`
	} `yaml:"shutdown"`
}

// NodeIdentity 节点身份，进程生命周期内不变
type NodeIdentity struct {
	ID        string
	Address   string
	Capacity  int64
	FreeSpace int64
}

// SessionState 会话状态机的状态
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateRegistering
	StateRegistered
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateRegistering:
		return "Registering"
	case StateRegistered:
		return "Registered"
	default:
		return "Unknown"
	}
}

// StorageService 存储服务接口
type StorageService interface {
	WriteBlock(blockID string, data []byte) error
	ReadBlock(blockID string) ([]byte, error)
	DeleteBlock(blockID string) error
	FreeSpace() (uint64, error)
	GetStat() (*StorageStat, error)
	BlockExists(blockID string) bool
	ListBlocks() ([]string, error)
}

// Coordinator NameNode 控制面接口
type Coordinator interface {
	RegisterNode(ctx context.Context, identity NodeIdentity) (bool, error)
	Heartbeat(ctx context.Context, nodeID string, freeSpace uint64) (bool, error)
	// Reconnect 重建到 NameNode 的连接，不访问远端
	Reconnect(ctx context.Context) error
	// Close 在 ctx 截止前等待进行中的调用，超时后强制关闭
	Close(ctx context.Context) error
}

// Resolver 提供当前 NameNode 地址
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// SessionService 会话服务接口
type SessionService interface {
	Start(ctx context.Context) error
	Stop() error
	State() SessionState
	Registered() bool
}

// StorageStat 存储统计信息
type StorageStat struct {
	BlockCount    uint64
	FreeSpace     uint64
	UsedSpace     uint64
	TotalCapacity uint64
	BlockIds      []string
}

// Seconds 将配置中的秒数转换为 time.Duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
