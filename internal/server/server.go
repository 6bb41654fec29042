// Package server exposes the transcription pipeline over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/fmueller/voxserve/internal/config"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Transcriber is the pipeline the handler drives. *transcribe.Service
// satisfies it.
type Transcriber interface {
	TranscribeBase64(ctx context.Context, payload string) (whisper.Result, error)
}

type Server struct {
	cfg        config.ServerConfig
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	errs       chan error
	logger     *zap.Logger
}

func New(cfg config.ServerConfig, svc Transcriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	if logger.Core().Enabled(zapcore.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// RequestID runs first so every later log line carries the id; recovery
	// sits inside the request logger so recovered panics are logged as 500s.
	engine.Use(RequestID(logger), RequestLogger(logger), Recovery(logger), BodySizeLimit(cfg.MaxBodyBytes))

	h := &handler{svc: svc, exposeDetail: cfg.ExposeErrorDetail, logger: logger}
	engine.POST("/transcribe", h.transcribe)
	engine.GET("/health", health)

	return &Server{
		cfg:    cfg,
		engine: engine,
		httpServer: &http.Server{
			Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:     engine,
			ReadTimeout: cfg.ReadTimeout,
			IdleTimeout: cfg.IdleTimeout,
		},
		errs:   make(chan error, 1),
		logger: logger,
	}
}

// Handler returns the routed gin engine, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves in the background. It returns once the
// port is bound; later serve failures are reported on Errors.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
			s.errs <- err
		}
		close(s.errs)
	}()

	s.logger.Info("listening", zap.String("addr", s.Addr()))
	return nil
}

func (s *Server) Errors() <-chan error {
	return s.errs
}

// Addr reports the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Stop waits up to ShutdownTimeout for in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down", zap.Duration("timeout", s.cfg.ShutdownTimeout))

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
