package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	applogger "InsiderSignals/pkg/logger"
)

const defaultDigestTopN = 10

// DailyDigest summarizes the active signal set and hands the summary to
// every registered publisher.
type DailyDigest struct {
	query   *SignalQuery
	topN    int
	sinks   map[string]domrepo.DigestPublisher
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

func NewDailyDigest(query *SignalQuery, topN int, metrics domrepo.Metrics) *DailyDigest {
	if topN <= 0 {
		topN = defaultDigestTopN
	}
	return &DailyDigest{
		query:   query,
		topN:    topN,
		sinks:   make(map[string]domrepo.DigestPublisher),
		metrics: metrics,
		l:       applogger.Nop(),
		now:     time.Now,
	}
}

func (d *DailyDigest) SetLogger(l *applogger.Logger) { d.l = l }

// AddPublisher registers a named sink.
func (d *DailyDigest) AddPublisher(name string, p domrepo.DigestPublisher) { d.sinks[name] = p }

// Build reads the active BUY signals and keeps the topN strongest.
func (d *DailyDigest) Build(ctx context.Context) (*models.Digest, error) {
	asOf := d.now().UTC()
	active, err := d.query.Signals(ctx, models.SignalFilter{Type: models.SignalBuy, ActiveAt: asOf})
	if err != nil {
		return nil, err
	}
	alloc, err := d.query.Allocation(ctx, nil, "")
	if err != nil {
		return nil, err
	}
	top := append([]models.Signal(nil), active...)
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Strength != top[j].Strength {
			return top[i].Strength > top[j].Strength
		}
		return top[i].Ticker < top[j].Ticker
	})
	if len(top) > d.topN {
		top = top[:d.topN]
	}
	return &models.Digest{AsOf: asOf, Active: len(active), Top: top, Allocation: alloc}, nil
}

// Send builds the digest and publishes it. Publisher failures are logged
// and counted; only a failed build is returned.
func (d *DailyDigest) Send(ctx context.Context) (*models.Digest, error) {
	dg, err := d.Build(ctx)
	if err != nil {
		d.metrics.RecordError("digest")
		return nil, err
	}

	var wg sync.WaitGroup
	for name, p := range d.sinks {
		wg.Add(1)
		go func(name string, p domrepo.DigestPublisher) {
			defer wg.Done()
			if err := p.PublishDigest(ctx, dg); err != nil {
				d.metrics.RecordError("digest_sink_" + name)
				d.l.Warn("digest sink failed", applogger.String("sink", name), applogger.Error(err))
			}
		}(name, p)
	}
	wg.Wait()

	d.l.Info("daily digest sent",
		applogger.Int("active", dg.Active),
		applogger.Int("top", len(dg.Top)),
		applogger.Float64("cash_pct", dg.Allocation.CashPct),
	)
	return dg, nil
}
