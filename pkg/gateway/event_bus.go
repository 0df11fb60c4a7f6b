package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// LifecycleType 分片生命周期事件类型
type LifecycleType string

const (
	// EventShardConnected 分片连接成功并已注册
	EventShardConnected LifecycleType = "shard.connected"
	// EventShardConnectFailed 分片连接失败
	EventShardConnectFailed LifecycleType = "shard.connect_failed"
	// EventShardReady 收到分片 READY
	EventShardReady LifecycleType = "shard.ready"
	// EventShardDisconnected 分片帧流结束
	EventShardDisconnected LifecycleType = "shard.disconnected"
	// EventQueueOverflow 启动队列已满，释放信号被丢弃
	EventQueueOverflow LifecycleType = "queue.overflow"
	// EventMalformedReady READY 事件缺少分片 ID
	EventMalformedReady LifecycleType = "ready.malformed"
	// EventSinkError 消息转发失败
	EventSinkError LifecycleType = "sink.error"
)

// LifecycleEvent 生命周期事件
type LifecycleEvent struct {
	Type    LifecycleType
	ShardID ShardID
	Err     error
	Time    time.Time
}

// LifecycleHandler 生命周期事件处理器
type LifecycleHandler func(LifecycleEvent)

// EventBus 异步事件总线
type EventBus struct {
	handlers      map[LifecycleType][]LifecycleHandler
	mu            sync.RWMutex
	workers       int
	workerCh      chan func()
	stopCh        chan struct{}
	wg            sync.WaitGroup
	started       atomic.Bool
	closed        atomic.Bool
	closeOnce     sync.Once
	droppedEvents atomic.Int64
}

// NewEventBus 创建事件总线，Start 之前发布的事件会暂存在队列中
func NewEventBus(workers, queueSize int) *EventBus {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &EventBus{
		handlers: make(map[LifecycleType][]LifecycleHandler),
		workers:  workers,
		workerCh: make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start 启动 worker
func (eb *EventBus) Start() {
	if eb.closed.Load() || !eb.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < eb.workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
}

// worker 工作协程
func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.workerCh:
			task()
		case <-eb.stopCh:
			return
		}
	}
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType LifecycleType, handler LifecycleHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish 发布事件（异步，非阻塞，队列满时丢弃并计数）
func (eb *EventBus) Publish(event LifecycleEvent) {
	if eb.closed.Load() {
		return
	}

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		h := h
		select {
		case eb.workerCh <- func() { h(event) }:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close 关闭事件总线，未处理的事件被丢弃
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		eb.closed.Store(true)
		close(eb.stopCh)
		eb.wg.Wait()
	})
}

// DroppedEvents 丢弃的事件数量
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
