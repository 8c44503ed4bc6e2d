package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/reactorpool/config"
	"github.com/searchktools/reactorpool/netpool"
)

// App wires a netpool.Pool to process signals and drives its reactor
// loop on the calling goroutine.
type App struct {
	cfg  *config.Settings
	pool *netpool.Pool
	log  *zap.Logger
}

// New creates an application instance around an already-configured pool.
// The caller is responsible for binding listeners on pool before calling
// Run, since bind targets are application-specific.
func New(cfg *config.Settings, pool *netpool.Pool, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{cfg: cfg, pool: pool, log: log}
}

// Pool returns the underlying network pool for listener/connect setup.
func (a *App) Pool() *netpool.Pool { return a.pool }

// Run starts the reactor loop on the calling goroutine and blocks until a
// termination signal arrives and shutdown completes.
func (a *App) Run() {
	go a.awaitSignal()

	a.log.Info("reactor pool starting",
		zap.String("tcp_addr", a.cfg.TCPAddr),
		zap.String("env", a.cfg.Env),
	)

	a.pool.Run()
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.Info("signal received, shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown timed out")
	}
}
