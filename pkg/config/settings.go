package config

import (
	"time"

	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/identify"
	"github.com/tokmz/qigate/pkg/logger"
	"github.com/tokmz/qigate/pkg/relay"
	"github.com/tokmz/qigate/pkg/status"
	"github.com/tokmz/qigate/pkg/tracing"
	"github.com/tokmz/qigate/pkg/wsshard"
)

// Settings qigate 全部配置
type Settings struct {
	Gateway  GatewaySettings  `mapstructure:"gateway"`
	Shard    ShardSettings    `mapstructure:"shard"`
	Log      LogSettings      `mapstructure:"log"`
	Tracing  tracing.Config   `mapstructure:"tracing"`
	Status   status.Config    `mapstructure:"status"`
	Identify IdentifySettings `mapstructure:"identify"`
	Relay    RelaySettings    `mapstructure:"relay"`
}

// GatewaySettings 分片管理器配置
type GatewaySettings struct {
	Token               string        `mapstructure:"token"`
	URL                 string        `mapstructure:"url"`
	Strategy            string        `mapstructure:"strategy"` // auto | simple | multi:N | range:I:C:T
	Cooldown            time.Duration `mapstructure:"cooldown"`
	QueueCapacity       int           `mapstructure:"queue_capacity"`
	Overflow            string        `mapstructure:"overflow"` // drop | block
	MessageBuffer       int           `mapstructure:"message_buffer"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	RemoveOnDisconnect  bool          `mapstructure:"remove_on_disconnect"`
	RequeueOnDisconnect bool          `mapstructure:"requeue_on_disconnect"`
	EventWorkers        int           `mapstructure:"event_workers"`
	EventQueueSize      int           `mapstructure:"event_queue_size"`
}

// ShardSettings WebSocket 连接配置
type ShardSettings struct {
	Version          int           `mapstructure:"version"`
	Intents          uint64        `mapstructure:"intents"`
	OS               string        `mapstructure:"os"`
	Browser          string        `mapstructure:"browser"`
	Device           string        `mapstructure:"device"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json | console
	Console    bool   `mapstructure:"console"`
	File       string `mapstructure:"file"`
	Caller     bool   `mapstructure:"caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
	Sampling   bool   `mapstructure:"sampling"`

	// Fields 附加到每条日志的固定字段（如 cluster、instance）
	Fields map[string]string `mapstructure:"fields"`

	Rotate RotateSettings `mapstructure:"rotate"`
}

// RotateSettings 日志轮转，Filename 为空时不轮转
type RotateSettings struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// 握手限流后端
const (
	IdentifyNone   = "none"
	IdentifyMemory = "memory"
	IdentifyRedis  = "redis"
)

// IdentifySettings 握手限流配置
type IdentifySettings struct {
	Backend        string               `mapstructure:"backend"` // none | memory | redis
	MaxConcurrency int                  `mapstructure:"max_concurrency"`
	Interval       time.Duration        `mapstructure:"interval"`
	PollInterval   time.Duration        `mapstructure:"poll_interval"`
	KeyPrefix      string               `mapstructure:"key_prefix"`
	Redis          identify.RedisConfig `mapstructure:"redis"`
}

// RelaySettings 事件转发配置
type RelaySettings struct {
	Types []string      `mapstructure:"types"` // 为空时转发全部事件
	Kafka KafkaSettings `mapstructure:"kafka"`
	AMQP  AMQPSettings  `mapstructure:"amqp"`
}

// KafkaSettings Kafka 转发
type KafkaSettings struct {
	Enabled           bool `mapstructure:"enabled"`
	relay.KafkaConfig `mapstructure:",squash"`
}

// AMQPSettings RabbitMQ 转发
type AMQPSettings struct {
	Enabled          bool `mapstructure:"enabled"`
	relay.AMQPConfig `mapstructure:",squash"`
}

// Enabled 是否启用任一转发
func (r RelaySettings) Enabled() bool {
	return r.Kafka.Enabled || r.AMQP.Enabled
}

// defaultValues 内置默认值，同时让 AutomaticEnv 能识别每个 key
func defaultValues() map[string]any {
	tc := tracing.DefaultConfig()
	sc := status.DefaultConfig()

	return map[string]any{
		"gateway.token":                 "",
		"gateway.url":                   "",
		"gateway.strategy":              "simple",
		"gateway.cooldown":              gateway.DefaultCooldown,
		"gateway.queue_capacity":        gateway.DefaultQueueCapacity,
		"gateway.overflow":              gateway.OverflowDrop.String(),
		"gateway.message_buffer":        0,
		"gateway.connect_timeout":       gateway.DefaultConnectTimeout,
		"gateway.remove_on_disconnect":  true,
		"gateway.requeue_on_disconnect": true,
		"gateway.event_workers":         gateway.DefaultEventWorkers,
		"gateway.event_queue_size":      gateway.DefaultEventQueueSize,

		"shard.version":           wsshard.DefaultVersion,
		"shard.intents":           0,
		"shard.os":                "linux",
		"shard.browser":           "qigate",
		"shard.device":            "qigate",
		"shard.write_wait":        wsshard.DefaultWriteWait,
		"shard.handshake_timeout": wsshard.DefaultHandshakeTimeout,
		"shard.read_limit":        wsshard.DefaultReadLimit,

		"log.level":              "info",
		"log.format":             string(logger.JSONFormat),
		"log.console":            true,
		"log.file":               "",
		"log.caller":             false,
		"log.stacktrace":         true,
		"log.sampling":           false,
		"log.rotate.filename":    "",
		"log.rotate.max_size":    100,
		"log.rotate.max_age":     7,
		"log.rotate.max_backups": 5,
		"log.rotate.compress":    false,

		"tracing.enabled":               tc.Enabled,
		"tracing.service_name":          tc.ServiceName,
		"tracing.service_version":       tc.ServiceVersion,
		"tracing.environment":           tc.Environment,
		"tracing.exporter":              tc.ExporterType,
		"tracing.endpoint":              "",
		"tracing.insecure":              false,
		"tracing.sampling_rate":         tc.SamplingRate,
		"tracing.sampling_type":         tc.SamplingType,
		"tracing.batch_timeout":         tc.BatchTimeout,
		"tracing.max_export_batch_size": tc.MaxExportBatchSize,
		"tracing.max_queue_size":        tc.MaxQueueSize,

		"status.enabled":          sc.Enabled,
		"status.addr":             sc.Addr,
		"status.read_timeout":     sc.ReadTimeout,
		"status.write_timeout":    sc.WriteTimeout,
		"status.idle_timeout":     sc.IdleTimeout,
		"status.max_header_bytes": sc.MaxHeaderBytes,
		"status.mode":             sc.Mode,

		"identify.backend":             IdentifyMemory,
		"identify.max_concurrency":     1,
		"identify.interval":            identify.DefaultInterval,
		"identify.poll_interval":       identify.DefaultPollInterval,
		"identify.key_prefix":          identify.DefaultKeyPrefix,
		"identify.redis.mode":          identify.RedisStandalone,
		"identify.redis.addr":          "127.0.0.1:6379",
		"identify.redis.addrs":         []string{},
		"identify.redis.master_name":   "",
		"identify.redis.username":      "",
		"identify.redis.password":      "",
		"identify.redis.db":            0,
		"identify.redis.pool_size":     10,
		"identify.redis.dial_timeout":  5 * time.Second,
		"identify.redis.read_timeout":  3 * time.Second,
		"identify.redis.write_timeout": 3 * time.Second,

		"relay.types":              []string{},
		"relay.kafka.enabled":      false,
		"relay.kafka.brokers":      []string{},
		"relay.kafka.topic":        "",
		"relay.kafka.client_id":    "qigate",
		"relay.kafka.timeout":      10 * time.Second,
		"relay.amqp.enabled":       false,
		"relay.amqp.url":           "",
		"relay.amqp.exchange":      "qigate.events",
		"relay.amqp.exchange_type": "topic",
		"relay.amqp.durable":       true,
	}
}
