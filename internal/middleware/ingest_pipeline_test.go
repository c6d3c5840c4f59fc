package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"
	"InsiderSignals/pkg/metrics"
)

type flakyIngester struct {
	mu     sync.Mutex
	fail   int
	calls  int
	stored int
}

func (f *flakyIngester) Ingest(_ context.Context, b models.TradeBatch) (*models.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("pq: connection reset by peer")
	}
	f.stored += len(b.Trades)
	return &models.IngestResult{Received: len(b.Trades), Inserted: len(b.Trades)}, nil
}

func (f *flakyIngester) snapshot() (calls, stored int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.stored
}

func oneTrade(ticker string) models.TradeBatch {
	return models.TradeBatch{Trades: []models.Trade{{Ticker: ticker, FilerID: "f1", TransactionType: models.TxBuy}}}
}

func startPipeline(t *testing.T, ing Ingester, opts ...PipelineOption) *IngestPipeline {
	t.Helper()
	p := NewIngestPipeline(ing, metrics.Nop{}, opts...)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func TestIngestPipelineSubmitReportsUnstoredBatch(t *testing.T) {
	ing := &flakyIngester{fail: 5}
	p := startPipeline(t, ing, WithFlushInterval(0), WithFlushAttempts(3))

	if err := p.Submit(context.Background(), oneTrade("ACME")); err == nil {
		t.Fatalf("submit must fail while the store is down")
	}
	if calls, stored := ing.snapshot(); calls != 3 || stored != 0 {
		t.Fatalf("calls=%d stored=%d want 3 and 0", calls, stored)
	}

	// the consumer redelivers; the store recovers on the third try
	if err := p.Submit(context.Background(), oneTrade("ACME")); err != nil {
		t.Fatalf("redelivered submit: %v", err)
	}
	if _, stored := ing.snapshot(); stored != 1 {
		t.Fatalf("stored=%d want=1", stored)
	}
}

func TestIngestPipelineGroupsConcurrentMessages(t *testing.T) {
	ing := &flakyIngester{}
	p := startPipeline(t, ing, WithBatchSize(3), WithFlushInterval(2*time.Second))

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for _, tk := range []string{"ACME", "BOLT", "CORE"} {
		wg.Add(1)
		go func(tk string) {
			defer wg.Done()
			errs <- p.Submit(context.Background(), oneTrade(tk))
		}(tk)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if calls, stored := ing.snapshot(); calls != 1 || stored != 3 {
		t.Fatalf("calls=%d stored=%d want one call for 3 trades", calls, stored)
	}
}

func TestIngestPipelineRejectsAfterStop(t *testing.T) {
	p := NewIngestPipeline(&flakyIngester{}, metrics.Nop{})
	p.Start(context.Background())
	p.Stop()

	if err := p.Submit(context.Background(), oneTrade("ACME")); !errors.Is(err, errPipelineStopped) {
		t.Fatalf("err=%v want errPipelineStopped", err)
	}
	if err := p.Submit(context.Background(), models.TradeBatch{}); err == nil {
		t.Fatalf("empty message must be rejected")
	}
}
