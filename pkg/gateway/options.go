package gateway

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/qigate/pkg/logger"
)

// 默认值
const (
	DefaultCooldown       = 6 * time.Second
	DefaultQueueCapacity  = 10
	DefaultConnectTimeout = 30 * time.Second
	DefaultEventWorkers   = 4
	DefaultEventQueueSize = 256
)

// Options 分片管理器配置，创建后只读，被所有分片任务共享
type Options struct {
	// 分片配置
	Strategy ShardingStrategy // 分片策略（默认 Simple）
	Token    string           // 鉴权令牌
	URL      string           // 网关地址

	// 启动节奏
	Cooldown       time.Duration  // 相邻两次握手的最小间隔
	QueueCapacity  int            // 放行信号通道容量
	Overflow       OverflowPolicy // 放行信号写满时的策略
	ConnectTimeout time.Duration  // 单次连接超时（0 表示不限制）

	// 消息流
	MessageBuffer int // 合并消息流缓冲（0 表示无界）

	// 断线处理
	RemoveOnDisconnect  bool // 帧流结束后从注册表移除
	RequeueOnDisconnect bool // 移除后重新加入启动队列

	// 生命周期事件
	EventWorkers   int
	EventQueueSize int

	// 协作组件
	Connector       Connector
	IdentifyLimiter IdentifyLimiter
	Logger          logger.Logger
	Metrics         Metrics
	Clock           clock.Clock
	TracerProvider  trace.TracerProvider

	// cooldownArmed 冷却计时器创建后调用
	cooldownArmed func(id ShardID, wait time.Duration)
}

// DefaultOptions 默认配置
func DefaultOptions() *Options {
	return &Options{
		Strategy:           Simple(),
		Cooldown:           DefaultCooldown,
		QueueCapacity:      DefaultQueueCapacity,
		Overflow:           OverflowDrop,
		ConnectTimeout:     DefaultConnectTimeout,
		RemoveOnDisconnect: true,
		EventWorkers:       DefaultEventWorkers,
		EventQueueSize:     DefaultEventQueueSize,
	}
}

// Validate 验证配置，并为未设置的协作组件填充默认实现
func (o *Options) Validate() error {
	if _, _, _, err := o.Strategy.Resolve(); err != nil {
		return err
	}
	if o.Token == "" {
		return ErrInvalidConfig.WithMessage("gateway: token is required")
	}
	if o.Connector == nil {
		return ErrInvalidConfig.WithMessage("gateway: connector is required")
	}
	if o.Cooldown < 0 {
		return ErrInvalidConfig.WithMessagef("gateway: cooldown must not be negative, got %v", o.Cooldown)
	}
	if o.QueueCapacity <= 0 {
		return ErrInvalidConfig.WithMessagef("gateway: queue capacity must be positive, got %d", o.QueueCapacity)
	}
	if o.Overflow != OverflowDrop && o.Overflow != OverflowBlock {
		return ErrInvalidConfig.WithMessagef("gateway: unknown overflow policy %d", o.Overflow)
	}
	if o.ConnectTimeout < 0 {
		return ErrInvalidConfig.WithMessagef("gateway: connect timeout must not be negative, got %v", o.ConnectTimeout)
	}
	if o.MessageBuffer < 0 {
		return ErrInvalidConfig.WithMessagef("gateway: message buffer must not be negative, got %d", o.MessageBuffer)
	}
	if o.RequeueOnDisconnect && !o.RemoveOnDisconnect {
		return ErrInvalidConfig.WithMessage("gateway: requeue on disconnect requires remove on disconnect")
	}

	if o.EventWorkers <= 0 {
		o.EventWorkers = DefaultEventWorkers
	}
	if o.EventQueueSize <= 0 {
		o.EventQueueSize = DefaultEventQueueSize
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Metrics == nil {
		o.Metrics = &NoopMetrics{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	return nil
}

// Option 配置选项
type Option func(*Options)

// WithStrategy 设置分片策略
func WithStrategy(s ShardingStrategy) Option {
	return func(o *Options) {
		o.Strategy = s
	}
}

// WithToken 设置鉴权令牌
func WithToken(token string) Option {
	return func(o *Options) {
		o.Token = token
	}
}

// WithURL 设置网关地址
func WithURL(url string) Option {
	return func(o *Options) {
		o.URL = url
	}
}

// WithCooldown 设置握手间隔
func WithCooldown(d time.Duration) Option {
	return func(o *Options) {
		o.Cooldown = d
	}
}

// WithQueueCapacity 设置放行信号通道容量
func WithQueueCapacity(n int) Option {
	return func(o *Options) {
		o.QueueCapacity = n
	}
}

// WithOverflowPolicy 设置队列写满策略
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(o *Options) {
		o.Overflow = p
	}
}

// WithConnectTimeout 设置连接超时
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ConnectTimeout = d
	}
}

// WithMessageBuffer 设置合并消息流缓冲，0 表示无界
func WithMessageBuffer(n int) Option {
	return func(o *Options) {
		o.MessageBuffer = n
	}
}

// WithRemoveOnDisconnect 设置断线后是否移除注册
func WithRemoveOnDisconnect(enable bool) Option {
	return func(o *Options) {
		o.RemoveOnDisconnect = enable
	}
}

// WithRequeueOnDisconnect 设置断线后是否重新排队启动
func WithRequeueOnDisconnect(enable bool) Option {
	return func(o *Options) {
		o.RequeueOnDisconnect = enable
	}
}

// WithEventWorkers 设置生命周期事件 worker 数量与队列大小
func WithEventWorkers(workers, queueSize int) Option {
	return func(o *Options) {
		o.EventWorkers = workers
		o.EventQueueSize = queueSize
	}
}

// WithConnector 设置分片连接器
func WithConnector(c Connector) Option {
	return func(o *Options) {
		o.Connector = c
	}
}

// WithIdentifyLimiter 设置跨进程握手限流
func WithIdentifyLimiter(l IdentifyLimiter) Option {
	return func(o *Options) {
		o.IdentifyLimiter = l
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithClock 设置时钟（测试中使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// WithTracerProvider 设置 TracerProvider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}
