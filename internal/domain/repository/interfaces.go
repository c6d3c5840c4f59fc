package repository

import (
	"context"
	"time"

	"InsiderSignals/internal/domain/models"
)

// TradeStore holds filers, trades and security metadata.
type TradeStore interface {
	UpsertFilers(ctx context.Context, filers []models.Filer) error
	UpsertSecurities(ctx context.Context, securities []models.Security) error
	// InsertTrades skips rows whose dedup key already exists and returns the
	// number of rows written.
	InsertTrades(ctx context.Context, trades []models.Trade) (int, error)
	ListTrades(ctx context.Context, f models.TradeFilter) ([]models.Trade, error)
	CountTrades(ctx context.Context, f models.TradeFilter) (int64, error)
	ListFilers(ctx context.Context, ids []string) ([]models.Filer, error)
	GetSecurities(ctx context.Context, tickers []string) (map[string]models.Security, error)
}

// SignalStore persists generated signals.
type SignalStore interface {
	// ReplaceSignals deactivates the active signals of scope, inserts the new
	// set and rewrites the positions in resize, all in one transaction.
	ReplaceSignals(ctx context.Context, scope models.SignalScope, signals []models.Signal, resize []models.SignalSize) error
	// ListSignals returns signals ordered by strength desc, ticker asc.
	ListSignals(ctx context.Context, f models.SignalFilter) ([]models.Signal, error)
}

type Store interface {
	TradeStore
	SignalStore
	Health(ctx context.Context) error
	Close() error
}

// Locker grants exclusive access to the trade store across batch jobs.
type Locker interface {
	TryLock(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// EventPublisher emits committed runs to downstream consumers.
type EventPublisher interface {
	PublishSignals(ctx context.Context, run *models.RunResult) error
	Close() error
}

// DigestPublisher delivers the periodic signal digest.
type DigestPublisher interface {
	PublishDigest(ctx context.Context, d *models.Digest) error
}

// Archive keeps an append-only history of trades and runs for analytics.
type Archive interface {
	ArchiveTrades(ctx context.Context, trades []models.Trade) error
	ArchiveRun(ctx context.Context, run *models.RunResult) error
	Close() error
}

// Notifier pushes committed runs to live subscribers.
type Notifier interface {
	NotifyRun(ctx context.Context, run *models.RunResult) error
}

// SecurityResolver looks up security metadata missing from the store.
type SecurityResolver interface {
	Resolve(ctx context.Context, ticker string) (*models.Security, error)
}

type Metrics interface {
	RecordTradesIngested(source string, n int)
	RecordTradesRejected(n int)
	RecordPatterns(kind string, n int)
	RecordSignals(risk string, n int)
	RecordCashPct(risk string, pct float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
