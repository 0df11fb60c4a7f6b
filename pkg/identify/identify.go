// Package identify limits IDENTIFY handshakes across every process of a
// deployment.
//
// The gateway allows max_concurrency identifies per interval. Shards map to a
// bucket by shard_id % max_concurrency and each bucket admits one identify per
// interval. Memory serves a single process; Redis shares buckets between
// processes.
package identify

import (
	"time"

	"github.com/tokmz/qigate/pkg/errors"
	"github.com/tokmz/qigate/pkg/gateway"
)

// 默认值
const (
	DefaultInterval     = 5 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultKeyPrefix    = "qigate"
)

// ErrUnavailable 限流后端不可用
var ErrUnavailable = errors.New(4201, "identify: limiter backend unavailable")

// Limiter 握手限流
type Limiter = gateway.IdentifyLimiter

// Options 限流配置
type Options struct {
	MaxConcurrency int           // 并发桶数量（默认 1）
	Interval       time.Duration // 同一个桶两次握手的最小间隔
	PollInterval   time.Duration // Redis 轮询间隔
	KeyPrefix      string        // Redis key 前缀
}

func defaultOptions() *Options {
	return &Options{
		MaxConcurrency: 1,
		Interval:       DefaultInterval,
		PollInterval:   DefaultPollInterval,
		KeyPrefix:      DefaultKeyPrefix,
	}
}

// Option 配置选项
type Option func(*Options)

// WithMaxConcurrency 设置并发桶数量
func WithMaxConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxConcurrency = n
		}
	}
}

// WithInterval 设置握手间隔
func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Interval = d
		}
	}
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// WithKeyPrefix 设置 key 前缀
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) {
		o.KeyPrefix = prefix
	}
}

// bucket 分片所属的桶
func (o *Options) bucket(id gateway.ShardID) uint64 {
	return id % uint64(o.MaxConcurrency)
}
