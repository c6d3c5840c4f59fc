package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"
	"InsiderSignals/internal/repository"
	pkgcache "InsiderSignals/pkg/cache"
	"InsiderSignals/pkg/metrics"

	"github.com/shopspring/decimal"
)

var testAsOf = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func testDay(offset int) time.Time {
	return time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func usd(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// clusterBatch is five filers buying ticker over five days, ten distinct
// trades in all.
func clusterBatch(ticker string) models.TradeBatch {
	amounts := []int64{100_000, 500_000, 1_000_000, 2_000_000, 5_000_000, 150_000, 250_000, 750_000, 1_500_000, 3_000_000}
	filers := []string{"f1", "f2", "f3", "f4", "f5"}
	var b models.TradeBatch
	for _, id := range filers {
		b.Filers = append(b.Filers, models.Filer{ID: ticker + "-" + id, Name: "Filer " + id, Category: models.CategoryCorporateInsider})
	}
	for i := 0; i < 10; i++ {
		b.Trades = append(b.Trades, models.Trade{
			Ticker:          ticker,
			FilerID:         ticker + "-" + filers[i%5],
			TradeDate:       testDay(-5 + i%5),
			TransactionType: models.TxBuy,
			AmountUSD:       usd(amounts[i]),
			Source:          "sec_form4",
		})
	}
	return b
}

func testConfig() models.RunConfig {
	cfg := models.DefaultRunConfig()
	cfg.AsOf = testAsOf
	return cfg
}

type fixture struct {
	store *repository.MemoryStore
	cache *pkgcache.MemoryCache
	lock  *StoreLock
	gen   *GenerateSignals
	ing   *IngestTrades
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	cache := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = cache.Close() })
	lock := NewStoreLock(cache, time.Minute, 50*time.Millisecond)
	f := &fixture{
		store: store,
		cache: cache,
		lock:  lock,
		gen:   NewGenerateSignals(store, lock, metrics.Nop{}),
		ing:   NewIngestTrades(store, lock, metrics.Nop{}),
	}
	f.gen.now = func() time.Time { return testAsOf }
	return f
}

func (f *fixture) ingest(t *testing.T, b models.TradeBatch) *models.IngestResult {
	t.Helper()
	res, err := f.ing.Ingest(context.Background(), b)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Inserted != len(b.Trades) {
		t.Fatalf("inserted=%d want=%d (duplicates=%d rejected=%d)", res.Inserted, len(b.Trades), res.Duplicates, len(res.Rejected))
	}
	return res
}

// failingStore wraps a MemoryStore and fails selected operations.
type failingStore struct {
	*repository.MemoryStore
	failReplace bool
	failList    bool
	listCalls   int
}

var errStoreDown = errors.New("connection refused")

func (s *failingStore) ReplaceSignals(ctx context.Context, scope models.SignalScope, sigs []models.Signal, resize []models.SignalSize) error {
	if s.failReplace {
		return errStoreDown
	}
	return s.MemoryStore.ReplaceSignals(ctx, scope, sigs, resize)
}

func (s *failingStore) ListTrades(ctx context.Context, f models.TradeFilter) ([]models.Trade, error) {
	s.listCalls++
	if s.failList {
		return nil, errStoreDown
	}
	return s.MemoryStore.ListTrades(ctx, f)
}

type recordingNotifier struct {
	mu   sync.Mutex
	runs []*models.RunResult
	err  error
}

func (n *recordingNotifier) NotifyRun(_ context.Context, run *models.RunResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return n.err
}

type stubResolver struct {
	caps  map[string]float64
	calls int
}

func (r *stubResolver) Resolve(_ context.Context, ticker string) (*models.Security, error) {
	r.calls++
	c, ok := r.caps[ticker]
	if !ok {
		return nil, errors.New("not found")
	}
	return &models.Security{Ticker: ticker, MarketCapUSD: &c}, nil
}
