// Package metrics 提供 Prometheus 指标注册表与 HTTP 抓取端点
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	metricsconfig "github.com/weisyn/flowcontrol/internal/config/metrics"
)

// Server 指标 HTTP 服务
type Server struct {
	opts     *metricsconfig.MetricsOptions
	registry *prometheus.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer 创建指标服务，注册表预置 Go 运行时与进程指标
func NewServer(opts *metricsconfig.MetricsOptions, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{opts: opts, registry: registry, logger: logger}
}

// Registry 指标注册表
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Handler 抓取端点的处理器
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.opts.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Addr 实际监听地址，未启动时返回空串
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start 启动 HTTP 服务；未启用时直接返回
func (s *Server) Start(_ context.Context) error {
	if !s.opts.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	// 先创建 listener，端口冲突在启动阶段暴露
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	s.logger.Info("metrics server started",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.opts.Path))
	return nil
}

// Stop 关闭 HTTP 服务
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("metrics server shutdown error", zap.Error(err))
		return err
	}
	s.logger.Info("metrics server stopped")
	return nil
}
