// Package livehttp serves the decision and execution API.
package livehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tradebot/internal/logger"
	"tradebot/internal/pkg/circuit"

	"github.com/gin-gonic/gin"
)

const defaultAddr = ":9991"

// Server is the HTTP surface of the trader.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig lists the server's dependencies. Executions and Decisions
// may be nil, in which case their routes answer 503.
type ServerConfig struct {
	Addr       string
	BrokerName string
	Trader     Trader
	Executions ExecutionReader
	Decisions  DecisionReader
	// Circuit, when set, is reported by /healthz.
	Circuit *circuit.CircuitBreaker
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Trader == nil {
		return nil, errors.New("live http server requires a trader")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "broker": cfg.BrokerName}
		if cfg.Circuit != nil {
			stats := cfg.Circuit.Stats()
			if stats.State != circuit.StateClosed {
				body["status"] = "degraded"
			}
			body["circuit"] = stats
		}
		c.JSON(http.StatusOK, body)
	})
	r := NewRouter(cfg.Trader, cfg.Executions, cfg.Decisions)
	r.Register(router.Group("/api"))
	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.With(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur_ms", time.Since(start).Milliseconds(),
		).Debug("http request")
	}
}
