package repository

import (
	"context"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"

	"github.com/shopspring/decimal"
)

func sig(ticker string, strength float64, run string) models.Signal {
	return models.Signal{
		RunID:      run,
		Ticker:     ticker,
		SignalType: models.SignalBuy,
		Strength:   strength,
		Reasoning:  "test",
		IsActive:   true,
	}
}

func activeTickers(t *testing.T, s *MemoryStore) map[string]string {
	t.Helper()
	rows, err := s.ListSignals(context.Background(), models.SignalFilter{})
	if err != nil {
		t.Fatalf("list signals: %v", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Ticker] = r.RunID
	}
	return out
}

func TestMemoryStore_ReplaceSignalsDeactivatesPreviousSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.ReplaceSignals(ctx, models.SignalScope{}, []models.Signal{sig("ACME", 0.9, "r1"), sig("BOLT", 0.5, "r1")}, nil); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := s.ReplaceSignals(ctx, models.SignalScope{}, []models.Signal{sig("CORE", 0.7, "r2")}, nil); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got := activeTickers(t, s)
	if len(got) != 1 || got["CORE"] != "r2" {
		t.Fatalf("expected only CORE from r2 active, got %v", got)
	}

	all, _ := s.ListSignals(ctx, models.SignalFilter{IncludeInactive: true})
	if len(all) != 3 {
		t.Fatalf("history should keep 3 rows, got %d", len(all))
	}
}

func TestMemoryStore_ReplaceSignalsEmptySetClearsScope(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.ReplaceSignals(ctx, models.SignalScope{}, []models.Signal{sig("ACME", 0.9, "r1")}, nil)

	if err := s.ReplaceSignals(ctx, models.SignalScope{}, nil, nil); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := activeTickers(t, s); len(got) != 0 {
		t.Fatalf("expected no active signals, got %v", got)
	}
}

func TestMemoryStore_ReplaceSignalsTickerScope(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.ReplaceSignals(ctx, models.SignalScope{}, []models.Signal{sig("ACME", 0.9, "r1"), sig("BOLT", 0.5, "r1")}, nil)

	if err := s.ReplaceSignals(ctx, models.SignalScope{Ticker: "ACME"}, []models.Signal{sig("ACME", 0.8, "r2")}, nil); err != nil {
		t.Fatalf("scoped replace: %v", err)
	}
	got := activeTickers(t, s)
	if got["ACME"] != "r2" || got["BOLT"] != "r1" || len(got) != 2 {
		t.Fatalf("unexpected active set %v", got)
	}

	if err := s.ReplaceSignals(ctx, models.SignalScope{Ticker: "ACME"}, []models.Signal{sig("BOLT", 0.8, "r3")}, nil); err == nil {
		t.Fatalf("expected out-of-scope signal to be rejected")
	}
	if got := activeTickers(t, s); got["BOLT"] != "r1" {
		t.Fatalf("rejected replace must leave state untouched, got %v", got)
	}
}

func TestMemoryStore_ReplaceSignalsResizesKeptSignals(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.ReplaceSignals(ctx, models.SignalScope{}, []models.Signal{sig("ACME", 0.9, "r1"), sig("BOLT", 0.5, "r1")}, nil)
	rows, _ := s.ListSignals(ctx, models.SignalFilter{Ticker: "BOLT"})
	if len(rows) != 1 {
		t.Fatalf("bolt rows=%d", len(rows))
	}

	resize := []models.SignalSize{{ID: rows[0].ID, Pct: 0.02, Value: decimal.NewFromInt(2000)}}
	if err := s.ReplaceSignals(ctx, models.SignalScope{Ticker: "ACME"}, []models.Signal{sig("ACME", 0.8, "r2")}, resize); err != nil {
		t.Fatalf("scoped replace: %v", err)
	}
	rows, _ = s.ListSignals(ctx, models.SignalFilter{Ticker: "BOLT"})
	if rows[0].PositionPct != 0.02 || !rows[0].PositionValue.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("bolt not resized: pct=%v value=%s", rows[0].PositionPct, rows[0].PositionValue)
	}
}

func TestMemoryStore_ListSignalsDropsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	old, fresh := sig("ACME", 0.9, "r1"), sig("BOLT", 0.5, "r1")
	past, future := at.Add(-time.Hour), at.Add(time.Hour)
	old.ExpiresAt, fresh.ExpiresAt = &past, &future
	_ = s.ReplaceSignals(ctx, models.SignalScope{}, []models.Signal{old, fresh}, nil)

	rows, _ := s.ListSignals(ctx, models.SignalFilter{ActiveAt: at})
	if len(rows) != 1 || rows[0].Ticker != "BOLT" {
		t.Fatalf("expected only BOLT active at %s, got %+v", at, rows)
	}
	if rows, _ := s.ListSignals(ctx, models.SignalFilter{}); len(rows) != 2 {
		t.Fatalf("zero ActiveAt must not filter, got %d", len(rows))
	}
	if rows, _ := s.ListSignals(ctx, models.SignalFilter{IncludeInactive: true, ActiveAt: at}); len(rows) != 2 {
		t.Fatalf("history must keep expired rows, got %d", len(rows))
	}
}

func TestMemoryStore_InsertTradesSkipsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	amt := decimal.NewFromInt(15000)
	tr := models.Trade{
		Ticker:          "ACME",
		FilerID:         "f1",
		TradeDate:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		TransactionType: models.TxBuy,
		AmountUSD:       &amt,
		Source:          "test",
	}

	n, err := s.InsertTrades(ctx, []models.Trade{tr, tr})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted, got %d", n)
	}
	n, _ = s.InsertTrades(ctx, []models.Trade{tr})
	if n != 0 {
		t.Fatalf("replayed trade must be skipped, inserted %d", n)
	}
	if c, _ := s.CountTrades(ctx, models.TradeFilter{Ticker: "ACME"}); c != 1 {
		t.Fatalf("expected 1 stored trade, got %d", c)
	}
}

func TestMemoryStore_ListTradesPaging(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var batch []models.Trade
	for i := 0; i < 5; i++ {
		batch = append(batch, models.Trade{
			Ticker:          "ACME",
			FilerID:         "f1",
			TradeDate:       time.Date(2024, 6, 1+i, 0, 0, 0, 0, time.UTC),
			TransactionType: models.TxSell,
			Source:          "test",
		})
	}
	if _, err := s.InsertTrades(ctx, batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := s.ListTrades(ctx, models.TradeFilter{Desc: true, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].TradeDate.Day() != 4 || rows[1].TradeDate.Day() != 3 {
		t.Fatalf("unexpected order %v, %v", rows[0].TradeDate, rows[1].TradeDate)
	}
}
