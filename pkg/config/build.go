package config

import (
	"github.com/gin-gonic/gin"

	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/identify"
	"github.com/tokmz/qigate/pkg/logger"
	"github.com/tokmz/qigate/pkg/wsshard"
)

// Validate 校验配置
func (s *Settings) Validate() error {
	if _, err := s.Gateway.Options(); err != nil {
		return ErrInvalidSettings.WithMessage("config: invalid gateway settings").WithError(err)
	}
	if _, err := s.Log.Config(); err != nil {
		return ErrInvalidSettings.WithMessage("config: invalid log settings").WithError(err)
	}
	if s.Tracing.Enabled {
		if err := s.Tracing.Validate(); err != nil {
			return ErrInvalidSettings.WithMessage("config: invalid tracing settings").WithError(err)
		}
	}

	switch s.Status.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode, "":
	default:
		return ErrInvalidSettings.WithMessagef("config: unknown status.mode %q", s.Status.Mode)
	}

	switch s.Identify.Backend {
	case IdentifyNone, IdentifyMemory, "":
	case IdentifyRedis:
		if s.Identify.Redis.Addr == "" && len(s.Identify.Redis.Addrs) == 0 {
			return ErrInvalidSettings.WithMessage("config: identify.redis requires addr or addrs")
		}
	default:
		return ErrInvalidSettings.WithMessagef("config: unknown identify backend %q", s.Identify.Backend)
	}
	if s.Identify.MaxConcurrency < 0 {
		return ErrInvalidSettings.WithMessagef("config: identify.max_concurrency must not be negative, got %d", s.Identify.MaxConcurrency)
	}

	if s.Relay.Kafka.Enabled && (len(s.Relay.Kafka.Brokers) == 0 || s.Relay.Kafka.Topic == "") {
		return ErrInvalidSettings.WithMessage("config: relay.kafka requires brokers and topic")
	}
	if s.Relay.AMQP.Enabled && s.Relay.AMQP.URL == "" {
		return ErrInvalidSettings.WithMessage("config: relay.amqp requires url")
	}
	return nil
}

// Options 转换为分片管理器选项，Connector 等协作组件由调用方追加
func (g GatewaySettings) Options() ([]gateway.Option, error) {
	strategy, err := gateway.ParseStrategy(g.Strategy)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := strategy.Resolve(); err != nil {
		return nil, err
	}
	overflow, err := gateway.ParseOverflowPolicy(g.Overflow)
	if err != nil {
		return nil, err
	}

	return []gateway.Option{
		gateway.WithStrategy(strategy),
		gateway.WithToken(g.Token),
		gateway.WithURL(g.URL),
		gateway.WithCooldown(g.Cooldown),
		gateway.WithQueueCapacity(g.QueueCapacity),
		gateway.WithOverflowPolicy(overflow),
		gateway.WithMessageBuffer(g.MessageBuffer),
		gateway.WithConnectTimeout(g.ConnectTimeout),
		gateway.WithRemoveOnDisconnect(g.RemoveOnDisconnect),
		gateway.WithRequeueOnDisconnect(g.RequeueOnDisconnect),
		gateway.WithEventWorkers(g.EventWorkers, g.EventQueueSize),
	}, nil
}

// Options 转换为连接器选项
func (s ShardSettings) Options(log logger.Logger) []wsshard.Option {
	return []wsshard.Option{
		wsshard.WithVersion(s.Version),
		wsshard.WithIntents(s.Intents),
		wsshard.WithProperties(wsshard.Properties{
			OS:      s.OS,
			Browser: s.Browser,
			Device:  s.Device,
		}),
		wsshard.WithWriteWait(s.WriteWait),
		wsshard.WithHandshakeTimeout(s.HandshakeTimeout),
		wsshard.WithReadLimit(s.ReadLimit),
		wsshard.WithLogger(log),
	}
}

// Config 转换为日志配置
func (l LogSettings) Config() (*logger.Config, error) {
	level, err := logger.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format := logger.Format(l.Format)
	if format == "" {
		format = logger.JSONFormat
	}
	if !format.IsValid() {
		return nil, ErrInvalidSettings.WithMessagef("config: invalid log format %q", l.Format)
	}

	cfg := &logger.Config{
		Level:            level,
		Format:           format,
		Console:          l.Console,
		File:             l.File,
		EnableCaller:     l.Caller,
		EnableStacktrace: l.Stacktrace,
		Fields:           l.Fields,
	}
	if l.Rotate.Filename != "" {
		cfg.Rotate = &logger.RotateConfig{
			Filename:   l.Rotate.Filename,
			MaxSize:    l.Rotate.MaxSize,
			MaxAge:     l.Rotate.MaxAge,
			MaxBackups: l.Rotate.MaxBackups,
			Compress:   l.Rotate.Compress,
		}
	}
	if l.Sampling {
		cfg.Sampling = &logger.SamplingConfig{}
	}
	return cfg, nil
}

// Options 转换为限流选项
func (i IdentifySettings) Options() []identify.Option {
	return []identify.Option{
		identify.WithMaxConcurrency(i.MaxConcurrency),
		identify.WithInterval(i.Interval),
		identify.WithPollInterval(i.PollInterval),
		identify.WithKeyPrefix(i.KeyPrefix),
	}
}
