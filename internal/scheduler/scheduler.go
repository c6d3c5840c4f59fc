package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"InsiderSignals/internal/domain/models"
	applogger "InsiderSignals/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Runner executes one generation run.
type Runner interface {
	Run(ctx context.Context, cfg models.RunConfig) (*models.RunResult, error)
}

// DigestSender builds and publishes the daily digest.
type DigestSender interface {
	Send(ctx context.Context) (*models.Digest, error)
}

// Scheduler triggers full-universe generation runs on a cron spec, and
// optionally the daily digest on its own spec. A tick that fires while the
// previous one of the same job is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	base    models.RunConfig
	spec    string
	timeout time.Duration
	l       *applogger.Logger
	now     func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler for spec, a six-field cron expression with seconds.
func New(runner Runner, base models.RunConfig, spec string, timeout time.Duration, l *applogger.Logger) (*Scheduler, error) {
	if l == nil {
		l = applogger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cl := cronLogger{l: l}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		base:    base,
		spec:    spec,
		timeout: timeout,
		l:       l,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register generate job %q: %w", spec, err)
	}
	return s, nil
}

// AddDigest registers the digest job on spec.
func (s *Scheduler) AddDigest(spec string, d DigestSender) error {
	if _, err := s.cron.AddFunc(spec, func() { s.SendDigest(d) }); err != nil {
		return fmt.Errorf("register digest job %q: %w", spec, err)
	}
	s.l.Info("digest scheduled", applogger.String("spec", spec))
	return nil
}

// SendDigest publishes one digest synchronously with the configured timeout.
func (s *Scheduler) SendDigest(d DigestSender) {
	ctx, cancel := context.WithTimeout(s.parent(), s.timeout)
	defer cancel()
	dg, err := d.Send(ctx)
	if err != nil {
		s.l.Error("scheduled digest failed", applogger.Error(err))
		return
	}
	s.l.Info("scheduled digest done", applogger.Int("top", len(dg.Top)))
}

func (s *Scheduler) parent() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Start begins firing on schedule. With runOnStart a run is also started
// immediately in the background.
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.l.Info("scheduler started", applogger.String("spec", s.spec))
	if runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunNow()
		}()
	}
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.l.Info("scheduler stopped")
}

func (s *Scheduler) tick() { s.RunNow() }

// RunNow executes one run synchronously with the configured timeout.
func (s *Scheduler) RunNow() {
	ctx, cancel := context.WithTimeout(s.parent(), s.timeout)
	defer cancel()

	cfg := s.base
	cfg.AsOf = s.now().UTC()
	run, err := s.runner.Run(ctx, cfg)
	if err != nil {
		s.l.Error("scheduled generation failed", applogger.Error(err))
		return
	}
	s.l.Info("scheduled generation done",
		applogger.RunID(run.RunID),
		applogger.Int("signals", len(run.Signals)),
	)
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, applogger.Any("kv", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, applogger.Error(err), applogger.Any("kv", keysAndValues))
}
