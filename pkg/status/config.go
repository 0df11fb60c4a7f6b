package status

import "time"

// Config 状态服务配置
type Config struct {
	Enabled        bool          `mapstructure:"enabled"`          // 是否启用
	Addr           string        `mapstructure:"addr"`             // 监听地址
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`     // 读超时
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`    // 写超时
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`     // 空闲超时
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"` // 最大请求头
	Mode           string        `mapstructure:"mode"`             // gin 模式 debug/release/test
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Addr:           ":9090",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Mode:           "release",
	}
}

// setDefaults 填充零值字段
func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
}
