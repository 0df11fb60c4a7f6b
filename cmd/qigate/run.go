package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/qigate/pkg/config"
	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/identify"
	"github.com/tokmz/qigate/pkg/logger"
	"github.com/tokmz/qigate/pkg/metrics"
	"github.com/tokmz/qigate/pkg/relay"
	"github.com/tokmz/qigate/pkg/status"
	"github.com/tokmz/qigate/pkg/tracing"
	"github.com/tokmz/qigate/pkg/wsshard"
)

const shutdownTimeout = 15 * time.Second

func run(ctx context.Context, flags *rootFlags) error {
	var log logger.Logger

	loader := flags.loader(config.WithOnChange(func(s *config.Settings) {
		reloadLogLevel(log, s)
	}), config.WithOnError(func(err error) {
		log.Warn("ignoring invalid config change", zap.Error(err))
	}))
	defer loader.Close()

	settings, err := loader.Load()
	if err != nil {
		return err
	}

	logCfg, err := settings.Log.Config()
	if err != nil {
		return err
	}
	if log, err = logger.New(logCfg); err != nil {
		return err
	}
	defer log.Sync()

	if file := loader.ConfigFileUsed(); file != "" {
		log.Info("loaded config", zap.String("file", file))
		loader.StartWatch()
	}

	tp, err := tracing.NewTracerProvider(ctx, &settings.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := metrics.New()
	if err := prom.Register(reg); err != nil {
		return err
	}

	limiter, closeLimiter, err := newLimiter(settings.Identify)
	if err != nil {
		return err
	}
	defer closeLimiter()

	rl, err := newRelay(settings.Relay, log)
	if err != nil {
		return err
	}
	if rl != nil {
		defer func() {
			if err := rl.Close(); err != nil {
				log.Warn("failed to close relay", zap.Error(err))
			}
		}()
	}

	gwOpts, err := settings.Gateway.Options()
	if err != nil {
		return err
	}
	gwOpts = append(gwOpts,
		gateway.WithConnector(wsshard.NewConnector(settings.Shard.Options(log)...)),
		gateway.WithLogger(log),
		gateway.WithMetrics(prom),
		gateway.WithTracerProvider(tp),
	)
	if limiter != nil {
		gwOpts = append(gwOpts, gateway.WithIdentifyLimiter(limiter))
	}

	manager, err := gateway.NewManager(gwOpts...)
	if err != nil {
		return err
	}
	messages, err := manager.Messages()
	if err != nil {
		return err
	}

	var srv *status.Server
	if settings.Status.Enabled {
		srv = status.New(settings.Status, manager, reg, log)
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		consume(gctx, manager, messages, rl, log)
		return nil
	})
	if srv != nil {
		g.Go(srv.Run)
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs error
		if srv != nil {
			errs = multierr.Append(errs, srv.Shutdown(shutdownCtx))
		}
		return multierr.Append(errs, manager.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

// consume 消费合并消息流直到流关闭
func consume(ctx context.Context, manager *gateway.Manager, messages <-chan gateway.Message, rl *relay.Relay, log logger.Logger) {
	for msg := range messages {
		id := msg.Shard.ID()

		event, err := msg.Shard.Parse(msg.Frame)
		if err != nil {
			log.Debug("failed to parse frame", logger.ShardID(id), zap.Error(err))
			continue
		}

		msg.Shard.Apply(event)
		manager.Process(event)

		if event.IsReady() {
			log.Info("Connected", logger.ShardID(id))
		}
		if rl != nil {
			_ = rl.Handle(ctx, id, event)
		}
	}
}

// newLimiter 按配置创建握手限流，none 时返回 nil
func newLimiter(s config.IdentifySettings) (identify.Limiter, func(), error) {
	nop := func() {}

	switch s.Backend {
	case config.IdentifyRedis:
		client, err := identify.NewRedisClient(&s.Redis)
		if err != nil {
			return nil, nop, err
		}
		r := identify.NewRedis(client, s.Options()...)
		return r, func() { _ = r.Close() }, nil
	case config.IdentifyMemory:
		return identify.NewMemory(s.Options()...), nop, nil
	default:
		return nil, nop, nil
	}
}

// newRelay 按配置创建事件转发，未启用时返回 nil
func newRelay(s config.RelaySettings, log logger.Logger) (*relay.Relay, error) {
	if !s.Enabled() {
		return nil, nil
	}

	var publishers relay.Multi
	if s.Kafka.Enabled {
		k, err := relay.NewKafka(s.Kafka.KafkaConfig)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, k)
	}
	if s.AMQP.Enabled {
		a, err := relay.NewAMQP(s.AMQP.AMQPConfig)
		if err != nil {
			_ = publishers.Close()
			return nil, err
		}
		publishers = append(publishers, a)
	}
	return relay.New(publishers, log, s.Types...), nil
}

// reloadLogLevel 配置文件变更后调整日志级别
func reloadLogLevel(log logger.Logger, s *config.Settings) {
	if log == nil {
		return
	}
	level, err := logger.ParseLevel(s.Log.Level)
	if err != nil {
		log.Warn("ignoring invalid log level", zap.String("level", s.Log.Level))
		return
	}
	if level != log.Level() {
		log.SetLevel(level)
		log.Info("log level changed", zap.Stringer("level", level))
	}
}
