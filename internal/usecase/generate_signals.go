package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	"InsiderSignals/internal/services/patterns"
	"InsiderSignals/internal/services/signals"
	pkgcache "InsiderSignals/pkg/cache"
	applogger "InsiderSignals/pkg/logger"

	"github.com/google/uuid"
)

// GenerateSignals runs detection and generation over the trade store and
// publishes the result as the new active signal set.
type GenerateSignals struct {
	store    domrepo.Store
	lock     *StoreLock
	detector *patterns.Detector
	metrics  domrepo.Metrics
	resolver domrepo.SecurityResolver
	pub      domrepo.EventPublisher
	archive  domrepo.Archive
	notifier domrepo.Notifier
	cache    pkgcache.Service
	l        *applogger.Logger
	now      func() time.Time
	newID    func() string
}

func NewGenerateSignals(store domrepo.Store, lock *StoreLock, metrics domrepo.Metrics) *GenerateSignals {
	return &GenerateSignals{
		store:    store,
		lock:     lock,
		detector: patterns.NewDetector(store),
		metrics:  metrics,
		l:        applogger.Nop(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// SetLogger injects a structured logger.
func (g *GenerateSignals) SetLogger(l *applogger.Logger) {
	g.l = l
	g.detector.SetLogger(l)
}

// SetResolver enables market-cap lookups for tickers missing from the store.
func (g *GenerateSignals) SetResolver(r domrepo.SecurityResolver) { g.resolver = r }

// SetPublisher, SetArchive, SetNotifier and SetCache register the post-commit
// sinks. Any of them may be left unset.
func (g *GenerateSignals) SetPublisher(p domrepo.EventPublisher) { g.pub = p }
func (g *GenerateSignals) SetArchive(a domrepo.Archive)          { g.archive = a }
func (g *GenerateSignals) SetNotifier(n domrepo.Notifier)        { g.notifier = n }
func (g *GenerateSignals) SetCache(c pkgcache.Service)           { g.cache = c }

// Run executes one detect+generate+replace cycle. Configuration errors are
// reported before the store is touched; any store failure aborts the run
// before the active signal set changes.
func (g *GenerateSignals) Run(ctx context.Context, cfg models.RunConfig) (*models.RunResult, error) {
	started := g.now()
	if cfg.AsOf.IsZero() {
		cfg.AsOf = started.UTC()
	}
	if err := cfg.Validate(); err != nil {
		g.metrics.RecordError("generate_config")
		return nil, err
	}

	release, err := g.lock.Acquire(ctx)
	if err != nil {
		g.metrics.RecordError("generate_lock")
		return nil, err
	}
	run, err := g.runLocked(ctx, cfg)
	release()
	if err != nil {
		g.metrics.RecordError("generate")
		g.l.Error("signal generation aborted",
			applogger.String("scope", cfg.Scope().Label()),
			applogger.Error(err),
		)
		return nil, err
	}

	run.StartedAt = started
	run.Duration = g.now().Sub(started)
	g.record(run, cfg)
	g.fanOut(ctx, run)
	return run, nil
}

func (g *GenerateSignals) runLocked(ctx context.Context, cfg models.RunConfig) (*models.RunResult, error) {
	det, err := g.detector.Scan(ctx, cfg)
	if err != nil {
		return nil, err
	}

	secs, err := g.securities(ctx, det)
	if err != nil {
		return nil, err
	}

	gen, err := signals.Generate(det, cfg, secs)
	if err != nil {
		return nil, err
	}
	runID := g.newID()
	for i := range gen.Signals {
		gen.Signals[i].RunID = runID
	}

	var resize []models.SignalSize
	if cfg.Ticker != "" {
		if resize, err = g.rebalance(ctx, cfg, &gen); err != nil {
			return nil, err
		}
	}

	if err := g.store.ReplaceSignals(ctx, cfg.Scope(), gen.Signals, resize); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	return &models.RunResult{
		RunID:      runID,
		AsOf:       cfg.AsOf,
		Scope:      cfg.Scope().Label(),
		Patterns:   det.Patterns,
		Signals:    gen.Signals,
		Allocation: gen.Allocation,
		Trades:     det.Scanned,
	}, nil
}

// rebalance resizes a ticker-scoped generation together with the active BUY
// signals of every other ticker, so the active set as a whole respects the
// deployable cap. It runs under the store lock.
func (g *GenerateSignals) rebalance(ctx context.Context, cfg models.RunConfig, gen *models.Generation) ([]models.SignalSize, error) {
	active, err := g.store.ListSignals(ctx, models.SignalFilter{Type: models.SignalBuy, ActiveAt: cfg.AsOf})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	kept := active[:0]
	for _, s := range active {
		if s.Ticker != cfg.Ticker {
			kept = append(kept, s)
		}
	}
	alloc, resize := signals.Rebalance(gen.Signals, kept, cfg)
	gen.Allocation = alloc
	return resize, nil
}

// securities loads market-cap metadata for every buy candidate. Lookups of
// missing tickers are best effort: a failed lookup leaves the cap unknown.
func (g *GenerateSignals) securities(ctx context.Context, det models.Detection) (map[string]models.Security, error) {
	tickers := make([]string, 0, len(det.Activity))
	for tk, act := range det.Activity {
		if act.Buys > 0 {
			tickers = append(tickers, tk)
		}
	}
	sort.Strings(tickers)
	secs, err := g.store.GetSecurities(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	if g.resolver == nil {
		return secs, nil
	}

	var resolved []models.Security
	for _, tk := range tickers {
		if s, ok := secs[tk]; ok && s.MarketCapUSD != nil {
			continue
		}
		sec, err := g.resolver.Resolve(ctx, tk)
		if err != nil {
			g.metrics.RecordError("resolve_security")
			g.l.Warn("security lookup failed", applogger.Ticker(tk), applogger.Error(err))
			continue
		}
		if sec == nil {
			continue
		}
		secs[tk] = *sec
		resolved = append(resolved, *sec)
	}
	if len(resolved) > 0 {
		if err := g.store.UpsertSecurities(ctx, resolved); err != nil {
			g.l.Warn("persist resolved securities failed", applogger.Error(err))
		}
	}
	return secs, nil
}

func (g *GenerateSignals) record(run *models.RunResult, cfg models.RunConfig) {
	kinds := make(map[models.PatternKind]int)
	for _, p := range run.Patterns {
		kinds[p.Kind]++
	}
	for k, n := range kinds {
		g.metrics.RecordPatterns(string(k), n)
	}
	risk := string(cfg.RiskTolerance)
	g.metrics.RecordSignals(risk, len(run.Signals))
	g.metrics.RecordCashPct(risk, run.Allocation.CashPct)
	g.metrics.RecordLatency("generate", run.Duration.Seconds())

	g.l.Info("signal generation committed",
		applogger.RunID(run.RunID),
		applogger.String("scope", run.Scope),
		applogger.String("risk", risk),
		applogger.Int("trades", run.Trades),
		applogger.Int("patterns", len(run.Patterns)),
		applogger.Int("signals", len(run.Signals)),
		applogger.Float64("cash_pct", run.Allocation.CashPct),
		applogger.Decimal("portfolio_value", cfg.PortfolioValue),
		applogger.Duration("took", run.Duration),
	)
}

// fanOut delivers a committed run to every sink concurrently. Sink failures
// are logged and counted only; the run itself is already durable.
func (g *GenerateSignals) fanOut(ctx context.Context, run *models.RunResult) {
	sinks := make(map[string]func(context.Context) error)
	if g.pub != nil {
		sinks["kafka"] = func(ctx context.Context) error { return g.pub.PublishSignals(ctx, run) }
	}
	if g.archive != nil {
		sinks["clickhouse"] = func(ctx context.Context) error { return g.archive.ArchiveRun(ctx, run) }
	}
	if g.notifier != nil {
		sinks["websocket"] = func(ctx context.Context) error { return g.notifier.NotifyRun(ctx, run) }
	}
	if g.cache != nil {
		sinks["cache"] = func(ctx context.Context) error {
			return g.cache.DeleteByPattern(ctx, pkgcache.BuildPattern(SignalsCachePrefix))
		}
	}

	var wg sync.WaitGroup
	for name, sink := range sinks {
		wg.Add(1)
		go func(name string, sink func(context.Context) error) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := sink(sctx); err != nil {
				g.metrics.RecordError("sink_" + name)
				g.l.Warn("signal run sink failed",
					applogger.String("sink", name),
					applogger.RunID(run.RunID),
					applogger.Error(err),
				)
			}
		}(name, sink)
	}
	wg.Wait()
}
