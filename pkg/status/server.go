// Package status serves the health, shard and metrics endpoints of a running
// shard manager.
package status

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/logger"
	"github.com/tokmz/qigate/pkg/tracing"
)

const (
	healthPath  = "/healthz"
	shardsPath  = "/shards"
	metricsPath = "/metrics"
)

// Stats 管理器快照
type Stats = gateway.Stats

// Source 状态数据来源，*gateway.Manager 实现该接口
type Source interface {
	Stats() gateway.Stats
	ShardCount() int
}

var _ Source = (*gateway.Manager)(nil)

// Server 状态服务
type Server struct {
	cfg    Config
	source Source
	log    logger.Logger
	engine *gin.Engine

	mu     sync.Mutex
	server *http.Server
}

// New 创建状态服务，gatherer 为 nil 时使用默认注册表
func New(cfg Config, source Source, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	cfg.setDefaults()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("status")

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.Use(
		recovery(log),
		tracing.Middleware(healthPath, metricsPath),
		requestLogger(log, healthPath, metricsPath),
	)

	s := &Server{
		cfg:    cfg,
		source: source,
		log:    log,
		engine: engine,
	}

	engine.GET(healthPath, s.health)
	engine.GET(shardsPath, s.shards)
	engine.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞监听，Shutdown 后返回 nil
func (s *Server) Run() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.New("status server already running")
	}
	s.server = &http.Server{
		Addr:           s.cfg.Addr,
		Handler:        s.engine,
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("status server listening", zap.String("addr", s.cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		s.log.Warn("status server forced to close", zap.Error(err))
	}
	return err
}

func (s *Server) health(c *gin.Context) {
	stats := s.source.Stats()
	if !stats.Started {
		fail(c, http.StatusServiceUnavailable, "shard manager not started")
		return
	}
	success(c, gin.H{
		"manager_id": stats.ManagerID,
		"registered": len(stats.Registered),
		"owned":      len(stats.Owned),
	})
}

func (s *Server) shards(c *gin.Context) {
	success(c, ShardsData{
		Count: s.source.ShardCount(),
		Stats: s.source.Stats(),
	})
}
