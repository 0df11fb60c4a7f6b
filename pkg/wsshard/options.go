package wsshard

import (
	"time"

	"github.com/tokmz/qigate/pkg/logger"
)

// 默认值
const (
	DefaultVersion          = 10
	DefaultWriteWait        = 10 * time.Second
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultReadLimit        = 4 << 20 // 4MB
	DefaultFrameBuffer      = 64
)

// Properties IDENTIFY 中的连接属性
type Properties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Options 连接器配置
type Options struct {
	Version          int           // 网关 API 版本
	Intents          uint64        // 订阅的事件
	Properties       Properties    // 连接属性
	WriteWait        time.Duration // 单次写超时
	HandshakeTimeout time.Duration // WebSocket 握手超时
	ReadLimit        int64         // 单帧最大字节数
	FrameBuffer      int           // Frames 通道缓冲
	Logger           logger.Logger
}

func defaultOptions() *Options {
	return &Options{
		Version: DefaultVersion,
		Properties: Properties{
			OS:      "linux",
			Browser: "qigate",
			Device:  "qigate",
		},
		WriteWait:        DefaultWriteWait,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadLimit:        DefaultReadLimit,
		FrameBuffer:      DefaultFrameBuffer,
		Logger:           logger.Nop(),
	}
}

// Option 配置选项
type Option func(*Options)

// WithVersion 设置 API 版本
func WithVersion(v int) Option {
	return func(o *Options) {
		o.Version = v
	}
}

// WithIntents 设置 intents
func WithIntents(intents uint64) Option {
	return func(o *Options) {
		o.Intents = intents
	}
}

// WithProperties 设置连接属性
func WithProperties(p Properties) Option {
	return func(o *Options) {
		o.Properties = p
	}
}

// WithWriteWait 设置写超时
func WithWriteWait(d time.Duration) Option {
	return func(o *Options) {
		o.WriteWait = d
	}
}

// WithHandshakeTimeout 设置握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = d
	}
}

// WithReadLimit 设置单帧大小上限
func WithReadLimit(n int64) Option {
	return func(o *Options) {
		o.ReadLimit = n
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
