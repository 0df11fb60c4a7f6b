package identify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tokmz/qigate/pkg/gateway"
)

// Redis 模式
const (
	RedisStandalone = "standalone"
	RedisCluster    = "cluster"
	RedisSentinel   = "sentinel"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Mode         string        `mapstructure:"mode"`  // standalone/cluster/sentinel
	Addr         string        `mapstructure:"addr"`  // 单机地址
	Addrs        []string      `mapstructure:"addrs"` // 集群/哨兵地址
	MasterName   string        `mapstructure:"master_name"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NewRedisClient 按模式创建客户端
func NewRedisClient(cfg *RedisConfig) (redis.UniversalClient, error) {
	if cfg == nil {
		return nil, ErrUnavailable.WithMessage("identify: redis config is required")
	}

	switch cfg.Mode {
	case RedisStandalone, "":
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}), nil

	case RedisCluster:
		if len(cfg.Addrs) == 0 {
			return nil, ErrUnavailable.WithMessage("identify: cluster mode requires addrs")
		}
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}), nil

	case RedisSentinel:
		if len(cfg.Addrs) == 0 || cfg.MasterName == "" {
			return nil, ErrUnavailable.WithMessage("identify: sentinel mode requires addrs and master name")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		}), nil

	default:
		return nil, ErrUnavailable.WithMessagef("identify: unsupported redis mode %q", cfg.Mode)
	}
}

// Redis 跨进程限流，每个桶是一个带过期时间的 key
type Redis struct {
	client redis.UniversalClient
	opts   *Options
	owner  string
}

// NewRedis 创建 Redis 限流
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Redis{client: client, opts: options, owner: uuid.NewString()}
}

// key 桶对应的 key
func (r *Redis) key(id gateway.ShardID) string {
	return fmt.Sprintf("%s:identify:%d", r.opts.KeyPrefix, r.opts.bucket(id))
}

// Acquire SET NX PX 抢占桶，失败时按剩余 TTL 轮询
func (r *Redis) Acquire(ctx context.Context, info gateway.ShardInfo) error {
	key := r.key(info.ID)

	for {
		ok, err := r.client.SetNX(ctx, key, r.owner, r.opts.Interval).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrUnavailable.WithError(err)
		}
		if ok {
			return nil
		}

		wait := r.opts.PollInterval
		if ttl, err := r.client.PTTL(ctx, key).Result(); err == nil && ttl > 0 && ttl < wait {
			wait = ttl
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Close 关闭客户端
func (r *Redis) Close() error {
	return r.client.Close()
}
