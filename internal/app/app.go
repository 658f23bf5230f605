package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"tradebot/internal/config"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/trace"
	"tradebot/internal/trader"
	livehttp "tradebot/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// Version is reported in traces and the startup summary.
var Version = "dev"

// App owns the long-lived components of a serving process.
type App struct {
	cfg     *config.Config
	broker  exchange.Broker
	manager *trader.Manager
	http    *livehttp.Server
	stores  *Stores
	cleanup func()
}

func newApp(ctx context.Context, cfg *config.Config, broker exchange.Broker, m *trader.Manager, srv *livehttp.Server, stores *Stores) *App {
	_ = ctx
	return &App{cfg: cfg, broker: broker, manager: m, http: srv, stores: stores}
}

// NewApp builds every component from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger.SetLevel(cfg.App.LogLevel)
	if err := trace.Init(cfg.Tracing.Enabled, Version, os.Stderr); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app, cleanup, err := buildAppWithWire(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.cleanup = cleanup
	return app, nil
}

func (a *App) Manager() *trader.Manager { return a.manager }
func (a *App) Broker() exchange.Broker  { return a.broker }
func (a *App) Stores() *Stores          { return a.stores }

// Run serves HTTP until ctx is cancelled, then releases everything.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app is nil")
	}
	defer a.Close()
	NewStartupSummary(a.cfg, a.broker.Name(), a.manager.Symbols()).Print()

	g, gctx := errgroup.WithContext(ctx)
	if a.http != nil {
		g.Go(func() error {
			err := a.http.Start(gctx)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down")
		return nil
	})
	return g.Wait()
}

// Close stops the trader, closes the stores and flushes traces. It is safe
// to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		logger.Warnf("trace shutdown failed: %v", err)
	}
}
