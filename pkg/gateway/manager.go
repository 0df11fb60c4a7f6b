package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tokmz/qigate/pkg/logger"
	"github.com/tokmz/qigate/pkg/tracing"
)

const tracerName = "github.com/tokmz/qigate/pkg/gateway"

// Manager 分片管理器
type Manager struct {
	id      string
	opts    *Options
	log     logger.Logger
	metrics Metrics
	clock   clock.Clock
	tracer  trace.Tracer

	// 分片范围
	owned []ShardID
	total uint64

	// 核心组件
	registry *Registry
	queue    *startupQueue
	fanIn    *fanIn
	events   *EventBus

	// 生命周期
	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	closed        bool
	messagesTaken atomic.Bool
	wg            sync.WaitGroup

	// lastStart 仅由启动协程读写
	lastStart time.Time

	// 等待 READY 的分片：ID -> 启动序号
	readyMu  sync.Mutex
	awaiting map[ShardID]uint64
	attempts uint64

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

// NewManager 创建管理器，不做任何 I/O，也不启动协程
func NewManager(opts ...Option) (*Manager, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	owned, err := options.Strategy.IDs()
	if err != nil {
		return nil, err
	}
	_, _, total, _ := options.Strategy.Resolve()

	id := uuid.NewString()

	return &Manager{
		id:       id,
		opts:     options,
		log:      options.Logger.Named("gateway").With(zap.String("manager_id", id)),
		metrics:  options.Metrics,
		clock:    options.Clock,
		tracer:   options.TracerProvider.Tracer(tracerName),
		owned:    owned,
		total:    total,
		registry: NewRegistry(),
		queue:    newStartupQueue(options.QueueCapacity, options.Overflow),
		fanIn:    newFanIn(options.MessageBuffer),
		events:   NewEventBus(options.EventWorkers, options.EventQueueSize),
		awaiting: make(map[ShardID]uint64),
		stopped:  make(chan struct{}),
	}, nil
}

// ID 管理器实例 ID
func (m *Manager) ID() string {
	return m.id
}

// Start 启动管理器
//
// 把本进程负责的分片按升序放入启动队列，启动消费协程并放行第一个分片后立即返回，
// 不等待任何分片连接完成。ctx 结束等价于 Shutdown 中的取消。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(logger.ContextWithManagerID(ctx, m.id))

	m.events.Start()
	m.fanIn.start(m.ctx, &m.wg)

	m.queue.enqueue(m.owned...)
	m.lastStart = m.clock.Now()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.processQueue(m.ctx)
	}()

	m.log.Info("shard manager started",
		zap.Stringer("strategy", m.opts.Strategy),
		logger.ShardIDs(m.owned),
		logger.ShardTotal(m.total),
		zap.Duration("cooldown", m.opts.Cooldown),
	)

	// 放行第一个分片
	if err := m.queue.push(m.ctx, m.owned[0]); err != nil {
		m.log.Error("could not release first shard", logger.ShardID(m.owned[0]), zap.Error(err))
		return err
	}
	return nil
}

// Messages 获取合并消息流，只能调用一次
func (m *Manager) Messages() (<-chan Message, error) {
	if !m.messagesTaken.CompareAndSwap(false, true) {
		return nil, ErrMessagesTaken
	}
	return m.fanIn.receiver(), nil
}

// Process 根据协议事件推进管理器状态
//
// 仅处理 READY 分发事件：取出分片 ID 并写入一个放行信号，使下一个待启动分片可以继续。
// 其他事件对管理器没有影响。
func (m *Manager) Process(event *Event) {
	if !event.IsReady() {
		return
	}

	id, ok := event.ReadyShardID()
	if !ok {
		m.log.Warn("ready event has no shard id")
		m.metrics.IncrementMalformedReady()
		m.publish(EventMalformedReady, 0, nil)
		return
	}

	m.log.Info("shard is ready", logger.ShardID(id))
	m.metrics.IncrementReady()
	m.publish(EventShardReady, id, nil)

	m.readyMu.Lock()
	delete(m.awaiting, id)
	m.readyMu.Unlock()

	m.release(id)
}

// Enqueue 把分片重新加入启动队列（例如断线后重启），拿到放行信号后才会连接
func (m *Manager) Enqueue(ids ...ShardID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return ErrClosed
	case !m.started:
		return ErrNotStarted
	}
	m.queue.enqueue(ids...)
	return nil
}

// Subscribe 订阅生命周期事件
func (m *Manager) Subscribe(eventType LifecycleType, handler LifecycleHandler) {
	m.events.Subscribe(eventType, handler)
}

// Shard 获取已注册分片
func (m *Manager) Shard(id ShardID) (Shard, bool) {
	return m.registry.Load(id)
}

// Shards 已注册分片 ID（升序）
func (m *Manager) Shards() []ShardID {
	return m.registry.IDs()
}

// ShardCount 已注册分片数量
func (m *Manager) ShardCount() int {
	return m.registry.Count()
}

// Stats 管理器状态快照
type Stats struct {
	ManagerID     string    `json:"manager_id"`
	Strategy      string    `json:"strategy"`
	Total         uint64    `json:"total"`
	Owned         []ShardID `json:"owned"`
	Registered    []ShardID `json:"registered"`
	Pending       int       `json:"pending"`
	Released      int       `json:"released"`
	Started       bool      `json:"started"`
	DroppedEvents int64     `json:"dropped_events"`
}

// Stats 获取状态快照
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	started := m.started && !m.closed
	m.mu.Unlock()

	return Stats{
		ManagerID:     m.id,
		Strategy:      m.opts.Strategy.String(),
		Total:         m.total,
		Owned:         append([]ShardID(nil), m.owned...),
		Registered:    m.registry.IDs(),
		Pending:       m.queue.pendingLen(),
		Released:      m.queue.releasedLen(),
		Started:       started,
		DroppedEvents: m.events.DroppedEvents(),
	}
}

// Shutdown 优雅关闭：取消所有协程、关闭全部分片、等待协程退出后关闭合并消息流
//
// 清理只执行一次并在后台进行，ctx 超时后再次调用 Shutdown 会继续等待同一次清理。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	m.stopOnce.Do(func() {
		go m.teardown(cancel)
	})

	select {
	case <-m.stopped:
		return m.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown 关闭流程，结束时关闭 stopped
func (m *Manager) teardown(cancel context.CancelFunc) {
	defer close(m.stopped)

	m.queue.close()
	if cancel != nil {
		cancel()
	}

	var errs error
	m.registry.Range(func(s Shard) bool {
		if err := s.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
		return true
	})

	m.wg.Wait()

	m.fanIn.close()
	m.events.Close()
	m.metrics.SetRegisteredShards(m.registry.Count())
	m.stopErr = errs

	m.log.Info("shard manager stopped", zap.Int("registered", m.registry.Count()))
}

// processQueue 启动队列消费循环
func (m *Manager) processQueue(ctx context.Context) {
	for {
		id, err := m.queue.next(ctx)
		if err != nil {
			return
		}

		releasedBy, err := m.queue.acquire(ctx)
		if err != nil {
			return
		}
		m.log.Debug("received release to start shard",
			logger.ShardID(id), zap.Uint64("released_by", releasedBy))

		if !m.waitCooldown(ctx, id) {
			return
		}

		m.lastStart = m.clock.Now()
		m.startShard(ctx, id, m.awaitReady(id))
	}
}

// waitCooldown 等到距上一次握手至少 Cooldown，ctx 结束时返回 false
func (m *Manager) waitCooldown(ctx context.Context, id ShardID) bool {
	wait := m.lastStart.Add(m.opts.Cooldown).Sub(m.clock.Now())
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := m.clock.Timer(wait)
	defer timer.Stop()

	if m.opts.cooldownArmed != nil {
		m.opts.cooldownArmed(id, wait)
	}

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// startShard 建立分片连接、注册并启动转发协程
func (m *Manager) startShard(ctx context.Context, id ShardID, attempt uint64) {
	info := ShardInfo{ID: id, Total: m.total, Token: m.opts.Token, URL: m.opts.URL}
	ctx = logger.ContextWithShardID(ctx, id)

	shard, err := m.connect(ctx, info)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.ErrorContext(ctx, "error starting shard", zap.Error(err))
		m.metrics.IncrementConnectFailures()
		m.publish(EventShardConnectFailed, id, err)
		// 连接失败不会产生 READY，自行放行避免后续分片饿死
		m.abandonReady(id, attempt)
		m.release(id)
		return
	}

	if prev, replaced := m.registry.Store(shard); replaced && prev != shard {
		_ = prev.Close()
	}
	// 与 Shutdown 并发时 Range 可能已经结束
	if ctx.Err() != nil {
		_ = shard.Close()
		return
	}
	m.metrics.SetRegisteredShards(m.registry.Count())
	m.publish(EventShardConnected, id, nil)
	m.log.InfoContext(ctx, "shard connected", logger.ShardTotal(m.total))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.forward(ctx, shard, attempt)
	}()
}

// connect 单次连接尝试（含跨进程限流与超时）
func (m *Manager) connect(ctx context.Context, info ShardInfo) (Shard, error) {
	ctx, span := m.tracer.Start(ctx, "gateway.shard.connect", trace.WithAttributes(
		attribute.Int64("shard.id", int64(info.ID)),
		attribute.Int64("shard.total", int64(info.Total)),
	))
	defer span.End()

	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	if m.opts.IdentifyLimiter != nil {
		if err := m.opts.IdentifyLimiter.Acquire(ctx, info); err != nil {
			err = ErrConnectFailed.WithMessage("gateway: identify limiter").WithError(err)
			tracing.RecordError(span, err)
			return nil, err
		}
	}

	m.metrics.IncrementConnectAttempts()
	m.log.DebugContext(ctx, "connecting shard")

	shard, err := m.opts.Connector.Connect(ctx, info)
	if err != nil {
		err = ErrConnectFailed.WithError(err)
		tracing.RecordError(span, err)
		return nil, err
	}
	if shard == nil {
		err = ErrConnectFailed.WithMessage("gateway: connector returned nil shard")
		tracing.RecordError(span, err)
		return nil, err
	}
	return shard, nil
}

// forward 转发协程：分片帧流 -> Sink -> 共享通道
func (m *Manager) forward(ctx context.Context, shard Shard, attempt uint64) {
	id := shard.ID()
	sink := NewSink(shard, m.fanIn.sender())

	err := sink.Forward(ctx, shard.Frames(), m.metrics.IncrementForwarded)

	// 关闭中，由 Shutdown 负责清理
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		var sinkErr *SinkError
		kind := "unknown"
		if errors.As(err, &sinkErr) {
			kind = sinkErr.Kind.String()
		}
		m.log.ErrorContext(ctx, "error forwarding shard messages to sink", zap.Error(err))
		m.metrics.IncrementSinkErrors(kind)
		m.publish(EventSinkError, id, err)
	}

	m.log.WarnContext(ctx, "shard disconnected")
	m.metrics.IncrementDisconnects()
	m.publish(EventShardDisconnected, id, err)

	// READY 之前断开同样不会产生放行信号
	if m.abandonReady(id, attempt) {
		m.log.WarnContext(ctx, "shard disconnected before ready")
		m.release(id)
	}

	if !m.opts.RemoveOnDisconnect {
		return
	}
	if m.registry.Remove(id, shard) {
		_ = shard.Close()
		m.metrics.SetRegisteredShards(m.registry.Count())
	}
	if m.opts.RequeueOnDisconnect {
		m.log.InfoContext(ctx, "requeue disconnected shard")
		if err := m.Enqueue(id); err != nil {
			m.log.WarnContext(ctx, "could not requeue shard", zap.Error(err))
		}
	}
}

// awaitReady 记录一次启动尝试，返回启动序号
func (m *Manager) awaitReady(id ShardID) uint64 {
	m.readyMu.Lock()
	defer m.readyMu.Unlock()
	m.attempts++
	m.awaiting[id] = m.attempts
	return m.attempts
}

// abandonReady 放弃等待该次启动的 READY，尚在等待时返回 true
func (m *Manager) abandonReady(id ShardID, attempt uint64) bool {
	m.readyMu.Lock()
	defer m.readyMu.Unlock()
	if cur, ok := m.awaiting[id]; !ok || cur != attempt {
		return false
	}
	delete(m.awaiting, id)
	return true
}

// release 写入放行信号，失败只记录不重试
func (m *Manager) release(id ShardID) {
	ctx := m.context()
	if err := m.queue.push(ctx, id); err != nil {
		m.log.Error("could not send shard id to startup queue", logger.ShardID(id), zap.Error(err))
		if errors.Is(err, ErrQueueFull) {
			m.metrics.IncrementQueueOverflow()
			m.publish(EventQueueOverflow, id, err)
		}
	}
}

// context 当前生命周期 Context，Start 之前为 Background
func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *Manager) publish(t LifecycleType, id ShardID, err error) {
	m.events.Publish(LifecycleEvent{
		Type:    t,
		ShardID: id,
		Err:     err,
		Time:    m.clock.Now(),
	})
}
