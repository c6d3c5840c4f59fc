package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"
)

func TestIngestTrades_NormalizesAndDedups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := models.TradeBatch{
		Filers: []models.Filer{{ID: "p1", Name: "Rep. Example", Category: models.CategoryPolitician, Party: models.PartyDemocrat}},
		Trades: []models.Trade{
			{Ticker: " acme ", FilerID: "p1", TradeDate: time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC), TransactionType: "buy", AmountUSD: usd(15000), Source: "house"},
			{Ticker: "ACME", FilerID: "p1", TradeDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), TransactionType: models.TxBuy, AmountUSD: usd(15000), Source: "house"},
			{Ticker: "ACME", FilerID: "p1", TradeDate: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), TransactionType: models.TxSell, Source: "house"},
		},
	}

	res, err := f.ing.Ingest(ctx, b)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Received != 3 || res.Inserted != 2 || res.Duplicates != 1 || len(res.Rejected) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	rows, _ := f.store.ListTrades(ctx, models.TradeFilter{Ticker: "ACME"})
	if len(rows) != 2 {
		t.Fatalf("stored=%d want=2", len(rows))
	}
	if !rows[0].TradeDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("trade date not truncated: %v", rows[0].TradeDate)
	}
	if rows[1].AmountUSD != nil {
		t.Fatalf("missing amount must stay nil")
	}

	again, err := f.ing.Ingest(ctx, b)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.Inserted != 0 || again.Duplicates != 3 {
		t.Fatalf("replay result %+v", again)
	}
}

func TestIngestTrades_RejectsInvalidRows(t *testing.T) {
	f := newFixture(t)
	good := models.Trade{Ticker: "ACME", FilerID: "p1", TradeDate: testDay(-1), TransactionType: models.TxBuy, Source: "house"}

	cases := []struct {
		name   string
		mutate func(*models.Trade)
	}{
		{"missing ticker", func(tr *models.Trade) { tr.Ticker = " " }},
		{"missing filer", func(tr *models.Trade) { tr.FilerID = "" }},
		{"missing date", func(tr *models.Trade) { tr.TradeDate = time.Time{} }},
		{"unknown type", func(tr *models.Trade) { tr.TransactionType = "GIFT" }},
		{"negative amount", func(tr *models.Trade) { tr.AmountUSD = usd(-5) }},
		{"missing source", func(tr *models.Trade) { tr.Source = "" }},
	}
	b := models.TradeBatch{Trades: []models.Trade{good}}
	for _, tc := range cases {
		tr := good
		tc.mutate(&tr)
		b.Trades = append(b.Trades, tr)
	}

	res, err := f.ing.Ingest(context.Background(), b)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("inserted=%d want=1", res.Inserted)
	}
	if len(res.Rejected) != len(cases) {
		t.Fatalf("rejected=%d want=%d", len(res.Rejected), len(cases))
	}
	for i, r := range res.Rejected {
		if r.Index != i+1 {
			t.Fatalf("%s: index=%d want=%d", cases[i].name, r.Index, i+1)
		}
		if r.Reason == "" {
			t.Fatalf("%s: empty reason", cases[i].name)
		}
	}
}

func TestIngestTrades_LockTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.cache.TryLock(ctx, TradeStoreLockKey, time.Minute)

	_, err := f.ing.Ingest(ctx, clusterBatch("ACME"))
	if !errors.Is(err, models.ErrLockTimeout) {
		t.Fatalf("err=%v want ErrLockTimeout", err)
	}
	if n, _ := f.store.CountTrades(ctx, models.TradeFilter{}); n != 0 {
		t.Fatalf("nothing may be written without the lock, got %d", n)
	}
}

func TestBatchFromRequest(t *testing.T) {
	amt := 1500.5
	req := models.IngestRequest{
		Filers: []models.FilerInput{{ID: "p1", Name: "Sen. Example", Category: "politician", Party: "R"}},
		Trades: []models.TradeInput{
			{Ticker: "acme", FilerID: "p1", TradeDate: "2024-06-01", TransactionType: "BUY", AmountUSD: &amt, Source: "senate"},
			{Ticker: "acme", FilerID: "p1", TradeDate: "not a date", TransactionType: "BUY", Source: "senate"},
		},
	}
	b := BatchFromRequest(req)
	if b.Filers[0].Category != models.CategoryPolitician || b.Filers[0].Party != models.PartyRepublican {
		t.Fatalf("filer=%+v", b.Filers[0])
	}
	if b.Trades[0].AmountUSD == nil || b.Trades[0].AmountUSD.String() != "1500.5" {
		t.Fatalf("amount=%v", b.Trades[0].AmountUSD)
	}
	if !b.Trades[1].TradeDate.IsZero() {
		t.Fatalf("bad date must stay zero")
	}

	f := newFixture(t)
	res, err := f.ing.Ingest(context.Background(), b)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Inserted != 1 || len(res.Rejected) != 1 || res.Rejected[0].Index != 1 {
		t.Fatalf("result=%+v", res)
	}
}
