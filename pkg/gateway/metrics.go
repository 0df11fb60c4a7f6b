package gateway

import "sync/atomic"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnectAttempts()
	IncrementConnectFailures()
	IncrementDisconnects()
	SetRegisteredShards(count int)

	// 协议指标
	IncrementReady()
	IncrementMalformedReady()

	// 队列与转发指标
	IncrementQueueOverflow()
	IncrementSinkErrors(kind string)
	IncrementForwarded()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnectAttempts()       {}
func (m *NoopMetrics) IncrementConnectFailures()       {}
func (m *NoopMetrics) IncrementDisconnects()           {}
func (m *NoopMetrics) SetRegisteredShards(count int)   {}
func (m *NoopMetrics) IncrementReady()                 {}
func (m *NoopMetrics) IncrementMalformedReady()        {}
func (m *NoopMetrics) IncrementQueueOverflow()         {}
func (m *NoopMetrics) IncrementSinkErrors(kind string) {}
func (m *NoopMetrics) IncrementForwarded()             {}

// Counters 基于原子计数的进程内实现
type Counters struct {
	ConnectAttempts  atomic.Int64
	ConnectFailures  atomic.Int64
	Disconnects      atomic.Int64
	RegisteredShards atomic.Int64
	Ready            atomic.Int64
	MalformedReady   atomic.Int64
	QueueOverflow    atomic.Int64
	SinkErrors       atomic.Int64
	Forwarded        atomic.Int64
}

func (c *Counters) IncrementConnectAttempts()     { c.ConnectAttempts.Add(1) }
func (c *Counters) IncrementConnectFailures()     { c.ConnectFailures.Add(1) }
func (c *Counters) IncrementDisconnects()         { c.Disconnects.Add(1) }
func (c *Counters) SetRegisteredShards(count int) { c.RegisteredShards.Store(int64(count)) }
func (c *Counters) IncrementReady()               { c.Ready.Add(1) }
func (c *Counters) IncrementMalformedReady()      { c.MalformedReady.Add(1) }
func (c *Counters) IncrementQueueOverflow()       { c.QueueOverflow.Add(1) }
func (c *Counters) IncrementSinkErrors(string)    { c.SinkErrors.Add(1) }
func (c *Counters) IncrementForwarded()           { c.Forwarded.Add(1) }

// Snapshot 获取指标快照
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"connect_attempts":  c.ConnectAttempts.Load(),
		"connect_failures":  c.ConnectFailures.Load(),
		"disconnects":       c.Disconnects.Load(),
		"registered_shards": c.RegisteredShards.Load(),
		"ready":             c.Ready.Load(),
		"malformed_ready":   c.MalformedReady.Load(),
		"queue_overflow":    c.QueueOverflow.Load(),
		"sink_errors":       c.SinkErrors.Load(),
		"forwarded":         c.Forwarded.Load(),
	}
}
