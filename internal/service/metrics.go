package service

import (
	"datanode/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 节点指标
type Metrics struct {
	SessionEvents *prometheus.CounterVec
	BlockOps      *prometheus.CounterVec
	BlockBytes    *prometheus.CounterVec
	Registered    prometheus.Gauge
}

// NewMetrics 创建指标并注册到 reg，reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datanode",
			Name:      "session_events_total",
			Help:      "Session state machine events by type.",
		}, []string{"event"}),
		BlockOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datanode",
			Name:      "block_ops_total",
			Help:      "Block transfer operations by operation and result.",
		}, []string{"op", "result"}),
		BlockBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datanode",
			Name:      "block_bytes_total",
			Help:      "Block payload bytes moved by operation.",
		}, []string{"op"}),
		Registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datanode",
			Name:      "registered",
			Help:      "1 when the NameNode currently acknowledges this node.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SessionEvents, m.BlockOps, m.BlockBytes, m.Registered)
	}
	return m
}

// RegisterStorageGauges 注册按需计算的存储指标
func RegisterStorageGauges(reg prometheus.Registerer, storage model.StorageService) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "datanode",
			Name:      "free_space_bytes",
			Help:      "Usable bytes on the storage volume.",
		}, func() float64 {
			free, err := storage.FreeSpace()
			if err != nil {
				return 0
			}
			return float64(free)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "datanode",
			Name:      "blocks",
			Help:      "Number of blocks stored on this node.",
		}, func() float64 {
			blocks, err := storage.ListBlocks()
			if err != nil {
				return 0
			}
			return float64(len(blocks))
		}),
	)
}

func (m *Metrics) sessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) setRegistered(registered bool) {
	if m == nil {
		return
	}
	if registered {
		m.Registered.Set(1)
	} else {
		m.Registered.Set(0)
	}
}

// BlockOp 记录一次块操作
func (m *Metrics) BlockOp(op string, ok bool, bytes int) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.BlockOps.WithLabelValues(op, result).Inc()
	if ok && bytes > 0 {
		m.BlockBytes.WithLabelValues(op).Add(float64(bytes))
	}
}
