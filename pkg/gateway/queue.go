package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// OverflowPolicy 启动队列写满时的处理方式
type OverflowPolicy int

const (
	// OverflowDrop 非阻塞写入，队列满时丢弃并返回 ErrQueueFull
	OverflowDrop OverflowPolicy = iota
	// OverflowBlock 阻塞直到有空位或 ctx 结束
	OverflowBlock
)

// String 返回策略名称
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDrop:
		return "drop"
	case OverflowBlock:
		return "block"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy 解析策略名称
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop", "":
		return OverflowDrop, nil
	case "block":
		return OverflowBlock, nil
	default:
		return OverflowDrop, ErrInvalidConfig.WithMessagef("gateway: unknown overflow policy %q", s)
	}
}

// startupQueue 启动队列
//
// pending 保存等待启动的分片（FIFO），release 是有界的放行信号通道：
// 每启动一个分片消耗一个信号，信号由 Start（首个）和 READY 事件产生。
type startupQueue struct {
	mu      sync.Mutex
	pending []ShardID
	notify  chan struct{}

	release chan ShardID
	policy  OverflowPolicy
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func newStartupQueue(capacity int, policy OverflowPolicy) *startupQueue {
	return &startupQueue{
		notify:  make(chan struct{}, 1),
		release: make(chan ShardID, capacity),
		policy:  policy,
		done:    make(chan struct{}),
	}
}

// enqueue 追加待启动分片
func (q *startupQueue) enqueue(ids ...ShardID) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, ids...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// next 取出下一个待启动分片，队列为空时等待
func (q *startupQueue) next(ctx context.Context) (ShardID, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			id := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.done:
			return 0, ErrQueueClosed
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// push 写入放行信号
func (q *startupQueue) push(ctx context.Context, id ShardID) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	if q.policy == OverflowBlock {
		select {
		case q.release <- id:
			return nil
		case <-q.done:
			return ErrQueueClosed
		case <-ctx.Done():
			return ErrQueueFull.WithError(ctx.Err())
		}
	}

	select {
	case q.release <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// acquire 等待一个放行信号，返回产生该信号的分片 ID
func (q *startupQueue) acquire(ctx context.Context) (ShardID, error) {
	select {
	case id := <-q.release:
		return id, nil
	case <-q.done:
		return 0, ErrQueueClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// pendingLen 待启动分片数量
func (q *startupQueue) pendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// releasedLen 尚未消耗的放行信号数量
func (q *startupQueue) releasedLen() int {
	return len(q.release)
}

// close 关闭队列，之后的 push 返回 ErrQueueClosed
func (q *startupQueue) close() {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}
