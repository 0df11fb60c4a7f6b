// Package metrics exports shard manager metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokmz/qigate/pkg/gateway"
)

const (
	namespace = "qigate"
	subsystem = "gateway"
)

// Prometheus 实现 gateway.Metrics
type Prometheus struct {
	ConnectAttempts  prometheus.Counter
	ConnectFailures  prometheus.Counter
	Disconnects      prometheus.Counter
	RegisteredShards prometheus.Gauge
	Ready            prometheus.Counter
	MalformedReady   prometheus.Counter
	QueueOverflow    prometheus.Counter
	SinkErrors       *prometheus.CounterVec
	Forwarded        prometheus.Counter
}

var _ gateway.Metrics = (*Prometheus)(nil)

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New 创建指标，需通过 Register 或 PrometheusCollectors 注册
func New() *Prometheus {
	return &Prometheus{
		ConnectAttempts: counter("connect_attempts_total", "Number of shard connection attempts"),
		ConnectFailures: counter("connect_failures_total", "Number of failed shard connection attempts"),
		Disconnects:     counter("disconnects_total", "Number of shard frame streams that ended"),
		RegisteredShards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registered_shards",
			Help:      "Number of shards currently in the registry",
		}),
		Ready:          counter("ready_total", "Number of READY dispatches processed"),
		MalformedReady: counter("malformed_ready_total", "Number of READY dispatches without a shard id"),
		QueueOverflow:  counter("queue_overflow_total", "Number of release tokens dropped because the startup queue was full"),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sink_errors_total",
			Help:      "Number of shard forwarding errors",
		}, []string{"kind"}),
		Forwarded: counter("forwarded_messages_total", "Number of frames forwarded to the merged stream"),
	}
}

// PrometheusCollectors 全部 Collector
func (p *Prometheus) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.ConnectAttempts,
		p.ConnectFailures,
		p.Disconnects,
		p.RegisteredShards,
		p.Ready,
		p.MalformedReady,
		p.QueueOverflow,
		p.SinkErrors,
		p.Forwarded,
	}
}

// Register 注册到 Registerer
func (p *Prometheus) Register(reg prometheus.Registerer) error {
	for _, c := range p.PrometheusCollectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Prometheus) IncrementConnectAttempts()       { p.ConnectAttempts.Inc() }
func (p *Prometheus) IncrementConnectFailures()       { p.ConnectFailures.Inc() }
func (p *Prometheus) IncrementDisconnects()           { p.Disconnects.Inc() }
func (p *Prometheus) SetRegisteredShards(count int)   { p.RegisteredShards.Set(float64(count)) }
func (p *Prometheus) IncrementReady()                 { p.Ready.Inc() }
func (p *Prometheus) IncrementMalformedReady()        { p.MalformedReady.Inc() }
func (p *Prometheus) IncrementQueueOverflow()         { p.QueueOverflow.Inc() }
func (p *Prometheus) IncrementSinkErrors(kind string) { p.SinkErrors.WithLabelValues(kind).Inc() }
func (p *Prometheus) IncrementForwarded()             { p.Forwarded.Inc() }
