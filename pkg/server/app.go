package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "InsiderSignals/internal/domain/repository"
	"InsiderSignals/internal/handler/ws"
	mid "InsiderSignals/internal/middleware"
	"InsiderSignals/internal/scheduler"
	"InsiderSignals/internal/service/ratelimit"
	pkgcache "InsiderSignals/pkg/cache"
	"InsiderSignals/pkg/config"
	xhttp "InsiderSignals/pkg/http"
	pkgkafka "InsiderSignals/pkg/kafka"
	applogger "InsiderSignals/pkg/logger"
	"InsiderSignals/pkg/queue"
)

const limiterSweepInterval = 5 * time.Minute

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	store      domrepo.Store
	cache      pkgcache.Service
	handlers   []xhttp.Handler
	hub        *ws.Hub
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	pipe       *mid.IngestPipeline
	queue      *queue.RedisQueue
	sched      *scheduler.Scheduler
	limiter    *ratelimit.Limiter
	closers    []closer
}

// New creates a new App around the store and cache it owns.
func New(cfg *config.Config, l *applogger.Logger, store domrepo.Store, cache pkgcache.Service) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, store: store, cache: cache}
}

// SetHandlers sets the REST handler and the WebSocket hub.
func (a *App) SetHandlers(h xhttp.Handler, hub *ws.Hub) {
	a.handlers = []xhttp.Handler{h, hub}
	a.hub = hub
}

// SetConsumer wires the trades consumer and the pipeline behind it.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler, pipe *mid.IngestPipeline) {
	a.consumer = c
	a.kh = kh
	a.pipe = pipe
}

func (a *App) SetQueue(q *queue.RedisQueue)           { a.queue = q }
func (a *App) SetScheduler(s *scheduler.Scheduler)    { a.sched = s }
func (a *App) SetLimiter(rl *ratelimit.Limiter)       { a.limiter = rl }
func (a *App) AddCloser(name string, fn func() error) { a.closers = append(a.closers, closer{name, fn}) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.shutdown(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	a.shutdown(ctx)
	return nil
}

func (a *App) start(ctx context.Context) error {
	a.httpServer = xhttp.NewServer(a.handlers,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(a.metricsPath()),
		xhttp.WithLogger(a.l),
	)

	if a.consumer != nil && a.kh != nil {
		a.pipe.Start(ctx)
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.l.Error("queue start error", applogger.Error(err))
			return err
		}
	}

	if a.sched != nil {
		a.sched.Start(ctx, a.cfg.Scheduler.RunOnStart)
		a.l.Info("scheduler started", applogger.String("cron", a.cfg.Scheduler.GenerateCron))
	}

	if a.limiter != nil {
		go a.sweepLimiter(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

func (a *App) metricsPath() string {
	if !a.cfg.Metrics.Enabled {
		return ""
	}
	return a.cfg.Metrics.Path
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.limiter.Sweep()
		}
	}
}

// shutdown stops intake first, then running work, then infrastructure.
func (a *App) shutdown(ctx context.Context) {
	a.l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
		if a.pipe != nil {
			a.pipe.Stop()
		}
	}

	if a.sched != nil {
		a.sched.Stop()
	}
	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.l.Warn("queue stop error", applogger.Error(err))
		}
	}

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.l.Warn("store close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
}
