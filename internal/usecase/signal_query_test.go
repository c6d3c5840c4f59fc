package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"

	"github.com/shopspring/decimal"
)

func TestSignalQuery_SignalsCachedUntilNextRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.SetCache(f.cache)
	q := NewSignalQuery(f.store, testConfig())
	q.now = func() time.Time { return testAsOf }
	q.SetCache(f.cache, time.Minute)

	f.ingest(t, clusterBatch("ACME"))
	if _, err := f.gen.Run(ctx, testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	first, err := q.Signals(ctx, models.SignalFilter{})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("signals=%d want=1", len(first))
	}

	f.ingest(t, clusterBatch("BOLT"))
	if _, err := f.gen.Run(ctx, testConfig()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := q.Signals(ctx, models.SignalFilter{})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("stale cache: signals=%d want=2", len(second))
	}
	if second[0].Strength < second[1].Strength {
		t.Fatalf("signals not ordered by strength")
	}
}

func TestSignalQuery_TradesTotalIgnoresPaging(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, clusterBatch("ACME"))
	q := NewSignalQuery(f.store, testConfig())
	q.now = func() time.Time { return testAsOf }

	rows, total, err := q.Trades(context.Background(), models.TradeFilter{Ticker: "ACME", Limit: 3})
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(rows) != 3 || total != 10 {
		t.Fatalf("rows=%d total=%d", len(rows), total)
	}
}

func TestSignalQuery_Allocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, clusterBatch("ACME"))
	if _, err := f.gen.Run(ctx, testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	q := NewSignalQuery(f.store, testConfig())
	q.now = func() time.Time { return testAsOf }

	pv := decimal.NewFromInt(200_000)
	alloc, err := q.Allocation(ctx, &pv, models.RiskConservative)
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if !alloc.PortfolioValue.Equal(pv) || alloc.RiskTolerance != models.RiskConservative {
		t.Fatalf("allocation=%+v", alloc)
	}
	if alloc.CashPct < 0.5 {
		t.Fatalf("cash pct=%v below reserve", alloc.CashPct)
	}
	total := alloc.CashValue.Add(alloc.InvestedValue)
	if !total.Equal(pv) {
		t.Fatalf("cash+invested=%s want=%s", total, pv)
	}

	zero := decimal.Zero
	if _, err := q.Allocation(ctx, &zero, ""); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("err=%v want ErrInvalidConfiguration", err)
	}
}

func TestSignalQuery_AllocationReappliesRiskFloors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, clusterBatch("MICRO"))
	f.ingest(t, clusterBatch("MEGA"))
	small, large := 50e6, 50e9
	_ = f.store.UpsertSecurities(ctx, []models.Security{
		{Ticker: "MICRO", MarketCapUSD: &small},
		{Ticker: "MEGA", MarketCapUSD: &large},
	})
	cfg := testConfig()
	cfg.RiskTolerance = models.RiskAggressive
	if _, err := f.gen.Run(ctx, cfg); err != nil {
		t.Fatalf("aggressive run: %v", err)
	}
	q := NewSignalQuery(f.store, testConfig())
	q.now = func() time.Time { return testAsOf }

	tests := []struct {
		risk models.RiskTolerance
		want map[string]bool
	}{
		{risk: models.RiskConservative, want: map[string]bool{"MEGA": true}},
		{risk: models.RiskModerate, want: map[string]bool{"MEGA": true}},
		{risk: models.RiskAggressive, want: map[string]bool{"MEGA": true, "MICRO": true}},
	}
	for _, tt := range tests {
		t.Run(string(tt.risk), func(t *testing.T) {
			alloc, err := q.Allocation(ctx, nil, tt.risk)
			if err != nil {
				t.Fatalf("allocation: %v", err)
			}
			if len(alloc.Positions) != len(tt.want) {
				t.Fatalf("positions=%+v want %v", alloc.Positions, tt.want)
			}
			for _, p := range alloc.Positions {
				if !tt.want[p.Ticker] {
					t.Fatalf("unexpected position %s under %s", p.Ticker, tt.risk)
				}
			}
		})
	}
}

func TestSignalQuery_ExpiredSignalsLeaveActiveList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, clusterBatch("ACME"))
	if _, err := f.gen.Run(ctx, testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	q := NewSignalQuery(f.store, testConfig())

	q.now = func() time.Time { return testAsOf.Add(24 * time.Hour) }
	if got, _ := q.Signals(ctx, models.SignalFilter{}); len(got) != 1 {
		t.Fatalf("signals before expiry=%d want=1", len(got))
	}
	q.now = func() time.Time { return testAsOf.Add(8 * 24 * time.Hour) }
	if got, _ := q.Signals(ctx, models.SignalFilter{}); len(got) != 0 {
		t.Fatalf("signals after expiry=%d want=0", len(got))
	}
	if got, _ := q.Signals(ctx, models.SignalFilter{IncludeInactive: true}); len(got) != 1 {
		t.Fatalf("history=%d want=1", len(got))
	}
	alloc, err := q.Allocation(ctx, nil, "")
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if len(alloc.Positions) != 0 {
		t.Fatalf("expired signals must not be allocated, got %+v", alloc.Positions)
	}
}
