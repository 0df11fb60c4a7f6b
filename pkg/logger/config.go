package logger

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultService 默认服务名，写入每条日志的 service 字段
const DefaultService = "qigate"

// Format 日志格式
type Format string

const (
	// JSONFormat JSON 格式
	JSONFormat Format = "json"
	// ConsoleFormat 控制台格式
	ConsoleFormat Format = "console"
)

func (f Format) String() string {
	return string(f)
}

// IsValid 格式是否受支持
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// Config 日志配置
type Config struct {
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // json/console，默认 json

	// 输出，全部为空时输出到控制台
	Console bool
	File    string
	Rotate  *RotateConfig

	Sampling *SamplingConfig // nil 则不采样

	EnableCaller     bool
	EnableStacktrace bool // Error 及以上

	// 固定字段：service 以及部署相关的标签（如 cluster、instance）
	Service string
	Fields  map[string]string

	EncoderConfig *zapcore.EncoderConfig
	Hooks         []Hook
}

// RotateConfig 按大小轮转的日志文件
type RotateConfig struct {
	Filename   string
	MaxSize    int // MB
	MaxAge     int // 天
	MaxBackups int
	LocalTime  bool
	Compress   bool
}

// SamplingConfig 每秒前 Initial 条全部记录，之后每 Thereafter 条记录一条
//
// 分片数量较多时 HEARTBEAT 一类的高频日志会被采样掉。
type SamplingConfig struct {
	Initial    int
	Thereafter int
}

// Hook 日志写入前回调，返回错误时该条日志不再写出
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) error
}

// HookFunc 函数适配器
type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) error

// OnWrite 实现 Hook
func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	return f(entry, fields)
}

func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if c.Service == "" {
		c.Service = DefaultService
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
}

// staticFields service 与 Fields 转为 zap 字段，按键排序保证输出稳定
func (c *Config) staticFields() []zap.Field {
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("service", c.Service))
	for _, k := range keys {
		fields = append(fields, zap.String(k, c.Fields[k]))
	}
	return fields
}

func (r *RotateConfig) setDefaults() {
	if r.MaxSize == 0 {
		r.MaxSize = 100
	}
	if r.MaxAge == 0 {
		r.MaxAge = 7
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = 5
	}
	r.LocalTime = true
}

func (s *SamplingConfig) setDefaults() {
	if s.Initial == 0 {
		s.Initial = 100
	}
	if s.Thereafter == 0 {
		s.Thereafter = 50
	}
}
