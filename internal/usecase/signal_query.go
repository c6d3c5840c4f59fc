package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	"InsiderSignals/internal/services/signals"
	pkgcache "InsiderSignals/pkg/cache"
	applogger "InsiderSignals/pkg/logger"

	"github.com/shopspring/decimal"
)

// SignalsCachePrefix namespaces cached signal reads. Committed runs delete
// every key under it.
const SignalsCachePrefix = "signals:"

// SignalQuery serves the read side used by the dashboard API.
type SignalQuery struct {
	store    domrepo.Store
	base     models.RunConfig
	cache    pkgcache.Service
	cacheTTL time.Duration
	timeout  time.Duration
	l        *applogger.Logger
	now      func() time.Time
}

// NewSignalQuery uses base for the allocation defaults (risk tolerance,
// portfolio value, cash reserve, weights).
func NewSignalQuery(store domrepo.Store, base models.RunConfig) *SignalQuery {
	return &SignalQuery{store: store, base: base, timeout: 10 * time.Second, l: applogger.Nop(), now: time.Now}
}

// SetCache enables caching of active signal reads for ttl.
func (q *SignalQuery) SetCache(c pkgcache.Service, ttl time.Duration) {
	q.cache = c
	q.cacheTTL = ttl
}

// SetLogger injects a structured logger.
func (q *SignalQuery) SetLogger(l *applogger.Logger) { q.l = l }

// Defaults returns the run configuration the query was built with.
func (q *SignalQuery) Defaults() models.RunConfig { return q.base }

// Trades lists trades matching f and the total count before paging.
func (q *SignalQuery) Trades(ctx context.Context, f models.TradeFilter) ([]models.Trade, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	rows, err := q.store.ListTrades(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	count := f
	count.Limit, count.Offset = 0, 0
	total, err := q.store.CountTrades(ctx, count)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	return rows, total, nil
}

// Signals lists signals sorted by strength descending. Active listings leave
// out signals that have expired.
func (q *SignalQuery) Signals(ctx context.Context, f models.SignalFilter) ([]models.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if f.ActiveAt.IsZero() {
		f.ActiveAt = q.now().UTC()
	}

	key := pkgcache.GenerateKeyWithParams(SignalsCachePrefix+"list", f.Ticker, f.Type, f.IncludeInactive, f.Limit)
	if q.cache != nil {
		var raw string
		err := q.cache.Get(ctx, key, &raw)
		switch {
		case err == nil:
			var out []models.Signal
			if jerr := json.Unmarshal([]byte(raw), &out); jerr == nil {
				return out, nil
			}
		case !errors.Is(err, pkgcache.ErrCacheMiss):
			q.l.Warn("signals cache get failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	out, err := q.store.ListSignals(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	if q.cache != nil {
		if b, err := json.Marshal(out); err == nil {
			if err := q.cache.Set(ctx, key, string(b), q.cacheTTL); err != nil {
				q.l.Warn("signals cache set failed", applogger.String("key", key), applogger.Error(err))
			}
		}
	}
	return out, nil
}

// Allocation sizes the active BUY signals for a portfolio under the risk
// profile asked for, reapplying its strength and market-cap floors. A nil
// portfolio or empty risk falls back to the configured defaults.
func (q *SignalQuery) Allocation(ctx context.Context, portfolio *decimal.Decimal, risk models.RiskTolerance) (models.Allocation, error) {
	cfg := q.base
	if portfolio != nil {
		cfg.PortfolioValue = *portfolio
	}
	if risk != "" {
		cfg.RiskTolerance = risk
	}
	if err := cfg.Validate(); err != nil {
		return models.Allocation{}, err
	}
	active, err := q.Signals(ctx, models.SignalFilter{Type: models.SignalBuy})
	if err != nil {
		return models.Allocation{}, err
	}
	tickers := make([]string, 0, len(active))
	for _, s := range active {
		tickers = append(tickers, s.Ticker)
	}
	secs, err := q.store.GetSecurities(ctx, tickers)
	if err != nil {
		return models.Allocation{}, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	return signals.AllocateSignals(active, cfg, secs), nil
}
