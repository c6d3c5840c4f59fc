package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	pkgch "InsiderSignals/pkg/clickhouse"
	applogger "InsiderSignals/pkg/logger"
)

// ArchiveSchema creates the analytics tables in the connection's database.
// Both tables are append-only; ReplacingMergeTree collapses trades replayed
// by at-least-once delivery.
var ArchiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS trades_archive (
        dedup_key String,
        ticker LowCardinality(String),
        filer_id String,
        trade_date Date,
        reported_date Nullable(Date),
        transaction_type LowCardinality(String),
        amount_usd Nullable(Decimal(20, 2)),
        source LowCardinality(String),
        archived_at DateTime64(3)
    ) ENGINE = ReplacingMergeTree(archived_at)
    ORDER BY (ticker, trade_date, dedup_key)`,
	`CREATE TABLE IF NOT EXISTS signal_runs (
        run_id String,
        as_of DateTime64(3),
        scope LowCardinality(String),
        ticker LowCardinality(String),
        signal_type LowCardinality(String),
        strength Float64,
        conviction LowCardinality(String),
        position_pct Float64,
        position_value Decimal(20, 2),
        cash_pct Float64,
        risk_tolerance LowCardinality(String),
        patterns UInt32,
        created_at DateTime64(3)
    ) ENGINE = MergeTree
    ORDER BY (as_of, run_id, ticker)`,
}

// CHArchive implements Archive backed by ClickHouse.
type CHArchive struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHArchive(ch *pkgch.Client) *CHArchive {
	return &CHArchive{ch: ch, db: ch.DB(), l: applogger.Nop()}
}

func (s *CHArchive) exec(ctx context.Context, q string, args []interface{}) error {
	wctx, cancel := s.ch.WriteContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(wctx, q, args...)
	return err
}

// SetLogger injects a structured logger.
func (s *CHArchive) SetLogger(l *applogger.Logger) { s.l = l }

const chunkSize = 2000

func (s *CHArchive) ArchiveTrades(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	start := time.Now()
	now := time.Now().UTC()
	for lo := 0; lo < len(trades); lo += chunkSize {
		hi := min(lo+chunkSize, len(trades))

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*9)
		for _, t := range trades[lo:hi] {
			var amount interface{}
			if t.AmountUSD != nil {
				amount = t.AmountUSD.StringFixed(2)
			}
			var reported interface{}
			if t.ReportedDate != nil {
				reported = *t.ReportedDate
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.DedupKey,
				t.Ticker,
				t.FilerID,
				t.TradeDate,
				reported,
				string(t.TransactionType),
				amount,
				t.Source,
				now,
			)
		}
		q := fmt.Sprintf(`INSERT INTO trades_archive
            (dedup_key, ticker, filer_id, trade_date, reported_date, transaction_type, amount_usd, source, archived_at)
            VALUES %s`, strings.Join(values, ","))
		if err := s.exec(ctx, q, args); err != nil {
			s.l.Error("clickhouse archive_trades insert error",
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("archive trades: %w", err)
		}
	}
	s.l.Debug("clickhouse archive_trades ok",
		applogger.Int("rows", len(trades)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// ArchiveRun writes one row per signal. A run without signals still leaves
// a row with an empty ticker so its cash position is recorded.
func (s *CHArchive) ArchiveRun(ctx context.Context, run *models.RunResult) error {
	start := time.Now()
	now := time.Now().UTC()
	risk := string(run.Allocation.RiskTolerance)
	patterns := uint32(len(run.Patterns))

	values := make([]string, 0, len(run.Signals)+1)
	args := make([]interface{}, 0, (len(run.Signals)+1)*13)
	add := func(ticker, typ string, strength float64, conviction string, pct float64, value string) {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			run.RunID, run.AsOf, run.Scope, ticker, typ, strength, conviction,
			pct, value, run.Allocation.CashPct, risk, patterns, now,
		)
	}
	for _, sig := range run.Signals {
		add(sig.Ticker, string(sig.SignalType), sig.Strength, string(sig.Conviction),
			sig.PositionPct, sig.PositionValue.StringFixed(2))
	}
	if len(run.Signals) == 0 {
		add("", "", 0, "", 0, "0")
	}

	q := fmt.Sprintf(`INSERT INTO signal_runs
        (run_id, as_of, scope, ticker, signal_type, strength, conviction, position_pct, position_value, cash_pct, risk_tolerance, patterns, created_at)
        VALUES %s`, strings.Join(values, ","))
	if err := s.exec(ctx, q, args); err != nil {
		s.l.Error("clickhouse archive_run insert error",
			applogger.RunID(run.RunID),
			applogger.Error(err),
		)
		return fmt.Errorf("archive run: %w", err)
	}
	s.l.Info("clickhouse archive_run ok",
		applogger.RunID(run.RunID),
		applogger.Int("rows", len(values)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to pkg/clickhouse.
func (s *CHArchive) Close() error { return nil }

var _ domrepo.Archive = (*CHArchive)(nil)
