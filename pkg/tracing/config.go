package tracing

import (
	"time"

	"github.com/tokmz/qigate/pkg/errors"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp" // OTLP HTTP
	ExporterOTLPGRPC = "otlp_grpc"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// ErrInvalidConfig 追踪配置错误
var ErrInvalidConfig = errors.New(3101, "tracing: invalid config")

// Config 链路追踪配置
type Config struct {
	ServiceName    string `mapstructure:"service_name"`    // 服务名称（必填）
	ServiceVersion string `mapstructure:"service_version"` // 服务版本
	Environment    string `mapstructure:"environment"`     // 环境（dev/staging/prod）

	// 导出器
	ExporterType     string            `mapstructure:"exporter"` // otlp/otlp_grpc/stdout/noop
	ExporterEndpoint string            `mapstructure:"endpoint"`
	ExporterHeaders  map[string]string `mapstructure:"headers"`
	Insecure         bool              `mapstructure:"insecure"`

	// 采样
	SamplingRate float64 `mapstructure:"sampling_rate"` // 0.0-1.0
	SamplingType string  `mapstructure:"sampling_type"` // always/never/ratio/parent_based

	Enabled bool `mapstructure:"enabled"`

	// 资源属性（自定义标签）
	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	// 批处理配置
	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "qigate",
		ServiceVersion:     "0.1.0",
		Environment:        "development",
		ExporterType:       ExporterNoop,
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		Enabled:            false,
		ResourceAttributes: make(map[string]string),
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("tracing: service name is required")
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage("tracing: sampling rate must be between 0.0 and 1.0")
	}

	switch c.ExporterType {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return ErrInvalidConfig.WithMessagef("tracing: invalid exporter type %q", c.ExporterType)
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.MaxExportBatchSize <= 0 {
		c.MaxExportBatchSize = 512
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 2048
	}
	return nil
}
