package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	applogger "InsiderSignals/pkg/logger"
)

// IngestTrades normalizes a batch and writes it to the trade store while
// holding the store lock, so a generation run never sees half a batch.
type IngestTrades struct {
	store   domrepo.TradeStore
	lock    *StoreLock
	metrics domrepo.Metrics
	archive domrepo.Archive
	l       *applogger.Logger
}

func NewIngestTrades(store domrepo.TradeStore, lock *StoreLock, metrics domrepo.Metrics) *IngestTrades {
	return &IngestTrades{store: store, lock: lock, metrics: metrics, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (u *IngestTrades) SetLogger(l *applogger.Logger) { u.l = l }

// SetArchive mirrors accepted trades into the history archive.
func (u *IngestTrades) SetArchive(a domrepo.Archive) { u.archive = a }

// Ingest stores the valid part of batch. Invalid trades are reported in the
// result and never fail the batch; store errors do.
func (u *IngestTrades) Ingest(ctx context.Context, batch models.TradeBatch) (*models.IngestResult, error) {
	start := time.Now()
	res := &models.IngestResult{Received: len(batch.Trades)}

	filers := make([]models.Filer, 0, len(batch.Filers))
	known := make(map[string]struct{}, len(batch.Filers))
	for _, f := range batch.Filers {
		f.ID = strings.TrimSpace(f.ID)
		f.Name = strings.TrimSpace(f.Name)
		if f.ID == "" || f.Name == "" || !f.Category.Valid() {
			u.l.Warn("filer skipped", applogger.String("filer_id", f.ID), applogger.String("category", string(f.Category)))
			continue
		}
		filers = append(filers, f)
		known[f.ID] = struct{}{}
	}

	securities := make([]models.Security, 0, len(batch.Securities))
	for _, s := range batch.Securities {
		s.Ticker = NormalizeTicker(s.Ticker)
		if s.Ticker == "" {
			continue
		}
		securities = append(securities, s)
	}

	trades := make([]models.Trade, 0, len(batch.Trades))
	seen := make(map[string]struct{}, len(batch.Trades))
	for i, t := range batch.Trades {
		t, err := normalizeTrade(t)
		if err != nil {
			res.Rejected = append(res.Rejected, models.RejectedTrade{Index: i, Ticker: t.Ticker, Reason: err.Error()})
			continue
		}
		if _, dup := seen[t.DedupKey]; dup {
			res.Duplicates++
			continue
		}
		seen[t.DedupKey] = struct{}{}
		trades = append(trades, t)
	}

	release, err := u.lock.Acquire(ctx)
	if err != nil {
		u.metrics.RecordError("ingest_lock")
		return nil, err
	}
	inserted, err := u.write(ctx, filers, securities, trades, known)
	release()
	if err != nil {
		u.metrics.RecordError("ingest")
		u.l.Error("trade ingest failed", applogger.Int("trades", len(trades)), applogger.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}

	res.Inserted = inserted
	res.Duplicates += len(trades) - inserted
	u.record(res, trades, time.Since(start))

	if u.archive != nil && len(trades) > 0 {
		if err := u.archive.ArchiveTrades(ctx, trades); err != nil {
			u.metrics.RecordError("archive_trades")
			u.l.Warn("trade archive failed", applogger.Int("trades", len(trades)), applogger.Error(err))
		}
	}
	return res, nil
}

func (u *IngestTrades) write(ctx context.Context, filers []models.Filer, securities []models.Security, trades []models.Trade, known map[string]struct{}) (int, error) {
	if err := u.store.UpsertFilers(ctx, filers); err != nil {
		return 0, err
	}
	if err := u.store.UpsertSecurities(ctx, securities); err != nil {
		return 0, err
	}
	if missing := missingFilers(trades, known); len(missing) > 0 {
		rows, err := u.store.ListFilers(ctx, missing)
		if err != nil {
			return 0, err
		}
		if len(rows) < len(missing) {
			u.l.Warn("trades reference filers not yet ingested",
				applogger.Int("missing", len(missing)-len(rows)),
			)
		}
	}
	return u.store.InsertTrades(ctx, trades)
}

func (u *IngestTrades) record(res *models.IngestResult, trades []models.Trade, took time.Duration) {
	bySource := make(map[string]int)
	for _, t := range trades {
		bySource[t.Source]++
	}
	// per-source counts are exact only for single-source batches
	if len(bySource) == 1 {
		for src := range bySource {
			u.metrics.RecordTradesIngested(src, res.Inserted)
		}
	} else {
		u.metrics.RecordTradesIngested("mixed", res.Inserted)
	}
	if len(res.Rejected) > 0 {
		u.metrics.RecordTradesRejected(len(res.Rejected))
	}
	u.metrics.RecordLatency("ingest", took.Seconds())
	u.l.Info("trade batch ingested",
		applogger.Int("received", res.Received),
		applogger.Int("inserted", res.Inserted),
		applogger.Int("duplicates", res.Duplicates),
		applogger.Int("rejected", len(res.Rejected)),
		applogger.Duration("took", took),
	)
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalizeTrade(t models.Trade) (models.Trade, error) {
	t.Ticker = NormalizeTicker(t.Ticker)
	t.FilerID = strings.TrimSpace(t.FilerID)
	t.Source = strings.TrimSpace(t.Source)
	t.TransactionType = models.TransactionType(strings.ToUpper(strings.TrimSpace(string(t.TransactionType))))
	t.ID = 0

	switch {
	case t.Ticker == "":
		return t, fmt.Errorf("ticker is required")
	case len(t.Ticker) > 16:
		return t, fmt.Errorf("ticker longer than 16 characters")
	case t.FilerID == "":
		return t, fmt.Errorf("filer_id is required")
	case t.Source == "":
		return t, fmt.Errorf("source is required")
	case t.TradeDate.IsZero():
		return t, fmt.Errorf("trade_date is missing or invalid")
	case !t.TransactionType.Valid():
		return t, fmt.Errorf("unknown transaction_type %q", t.TransactionType)
	case t.AmountUSD != nil && t.AmountUSD.IsNegative():
		return t, fmt.Errorf("amount_usd must not be negative")
	}
	y, m, d := t.TradeDate.UTC().Date()
	t.TradeDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.AmountUSD != nil {
		a := t.AmountUSD.Round(2)
		t.AmountUSD = &a
	}
	t.DedupKey = t.Key()
	return t, nil
}

func missingFilers(trades []models.Trade, known map[string]struct{}) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range trades {
		if _, ok := known[t.FilerID]; ok {
			continue
		}
		if _, ok := seen[t.FilerID]; ok {
			continue
		}
		seen[t.FilerID] = struct{}{}
		out = append(out, t.FilerID)
	}
	return out
}
