package identify

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tokmz/qigate/pkg/gateway"
)

// Memory 进程内限流
type Memory struct {
	opts  *Options
	clock clock.Clock

	mu   sync.Mutex
	next map[uint64]time.Time // bucket -> 下一次允许的时间
}

// NewMemory 创建进程内限流
func NewMemory(opts ...Option) *Memory {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Memory{
		opts:  options,
		clock: clock.New(),
		next:  make(map[uint64]time.Time),
	}
}

// Acquire 等待桶可用并占用一个间隔
func (m *Memory) Acquire(ctx context.Context, info gateway.ShardInfo) error {
	bucket := m.opts.bucket(info.ID)

	for {
		m.mu.Lock()
		now := m.clock.Now()
		wait := m.next[bucket].Sub(now)
		if wait <= 0 {
			m.next[bucket] = now.Add(m.opts.Interval)
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		timer := m.clock.Timer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
