package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	applogger "InsiderSignals/pkg/logger"
	pkgpg "InsiderSignals/pkg/postgres"
)

const insertChunk = 500

// GormStore implements Store on PostgreSQL.
type GormStore struct {
	client *pkgpg.Client
	db     *gorm.DB
	l      *applogger.Logger
}

var _ domrepo.Store = (*GormStore)(nil)

func NewGormStore(client *pkgpg.Client) *GormStore {
	return &GormStore{client: client, db: client.Gorm()}
}

// SetLogger injects a structured logger.
func (s *GormStore) SetLogger(l *applogger.Logger) { s.l = l }

// Migrate ensures every table exists.
func (s *GormStore) Migrate() error {
	return s.client.Migrate(&models.Filer{}, &models.Security{}, &models.Trade{}, &models.Signal{})
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *GormStore) UpsertFilers(ctx context.Context, filers []models.Filer) error {
	if len(filers) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category", "role", "party", "state", "chamber", "company", "updated_at"}),
	}).CreateInBatches(&filers, insertChunk).Error
	if err != nil {
		s.logError("upsert filers", err, applogger.Int("rows", len(filers)))
		return fmt.Errorf("upsert filers: %w", err)
	}
	return nil
}

func (s *GormStore) UpsertSecurities(ctx context.Context, securities []models.Security) error {
	if len(securities) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "sector", "market_cap_usd", "updated_at"}),
	}).CreateInBatches(&securities, insertChunk).Error
	if err != nil {
		s.logError("upsert securities", err, applogger.Int("rows", len(securities)))
		return fmt.Errorf("upsert securities: %w", err)
	}
	return nil
}

func (s *GormStore) InsertTrades(ctx context.Context, trades []models.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	for i := range trades {
		if trades[i].DedupKey == "" {
			trades[i].DedupKey = trades[i].Key()
		}
	}
	var inserted int64
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		for start := 0; start < len(trades); start += insertChunk {
			end := start + insertChunk
			if end > len(trades) {
				end = len(trades)
			}
			chunk := trades[start:end]
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "dedup_key"}},
				DoNothing: true,
			}).Create(&chunk)
			if res.Error != nil {
				return res.Error
			}
			inserted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		s.logError("insert trades", err, applogger.Int("rows", len(trades)))
		return 0, fmt.Errorf("insert trades: %w", err)
	}
	return int(inserted), nil
}

func (s *GormStore) tradeQuery(ctx context.Context, f models.TradeFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Trade{})
	if f.Ticker != "" {
		q = q.Where("ticker = ?", f.Ticker)
	}
	if f.FilerID != "" {
		q = q.Where("filer_id = ?", f.FilerID)
	}
	if len(f.Types) > 0 {
		q = q.Where("transaction_type IN ?", f.Types)
	}
	if !f.From.IsZero() {
		q = q.Where("trade_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("trade_date <= ?", f.To)
	}
	if f.MinAmount != nil {
		q = q.Where("amount_usd >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount_usd <= ?", *f.MaxAmount)
	}
	return q
}

func (s *GormStore) ListTrades(ctx context.Context, f models.TradeFilter) ([]models.Trade, error) {
	q := s.tradeQuery(ctx, f)
	if f.Desc {
		q = q.Order("trade_date DESC").Order("id DESC")
	} else {
		q = q.Order("trade_date ASC").Order("id ASC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var out []models.Trade
	if err := q.Find(&out).Error; err != nil {
		s.logError("list trades", err, applogger.Ticker(f.Ticker))
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return out, nil
}

func (s *GormStore) CountTrades(ctx context.Context, f models.TradeFilter) (int64, error) {
	var n int64
	if err := s.tradeQuery(ctx, f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

func (s *GormStore) ListFilers(ctx context.Context, ids []string) ([]models.Filer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Filer
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		s.logError("list filers", err, applogger.Int("ids", len(ids)))
		return nil, fmt.Errorf("list filers: %w", err)
	}
	return out, nil
}

func (s *GormStore) GetSecurities(ctx context.Context, tickers []string) (map[string]models.Security, error) {
	out := make(map[string]models.Security, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}
	var rows []models.Security
	if err := s.db.WithContext(ctx).Where("ticker IN ?", tickers).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get securities: %w", err)
	}
	for _, r := range rows {
		out[r.Ticker] = r
	}
	return out, nil
}

func (s *GormStore) ReplaceSignals(ctx context.Context, scope models.SignalScope, signals []models.Signal, resize []models.SignalSize) error {
	start := time.Now()
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		q := tx.Model(&models.Signal{}).Where("is_active = ?", true)
		if scope.Ticker != "" {
			q = q.Where("ticker = ?", scope.Ticker)
		}
		if err := q.Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
		for _, r := range resize {
			err := tx.Model(&models.Signal{}).
				Where("id = ? AND is_active = ?", r.ID, true).
				Updates(map[string]interface{}{"position_pct": r.Pct, "position_value": r.Value}).Error
			if err != nil {
				return fmt.Errorf("resize signal %d: %w", r.ID, err)
			}
		}
		if len(signals) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&signals, insertChunk).Error; err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logError("replace signals", err, applogger.String("scope", scope.Label()), applogger.Int("rows", len(signals)), applogger.Int("resized", len(resize)))
		return fmt.Errorf("replace signals: %w", err)
	}
	if s.l != nil {
		s.l.Debug("signals replaced",
			applogger.String("scope", scope.Label()),
			applogger.Int("rows", len(signals)),
			applogger.Duration("took", time.Since(start)),
		)
	}
	return nil
}

func (s *GormStore) ListSignals(ctx context.Context, f models.SignalFilter) ([]models.Signal, error) {
	q := s.db.WithContext(ctx).Model(&models.Signal{})
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
		if !f.ActiveAt.IsZero() {
			q = q.Where("(expires_at IS NULL OR expires_at > ?)", f.ActiveAt)
		}
	}
	if f.Ticker != "" {
		q = q.Where("ticker = ?", f.Ticker)
	}
	if f.Type != "" {
		q = q.Where("signal_type = ?", f.Type)
	}
	q = q.Order("strength DESC").Order("ticker ASC").Order("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.Signal
	if err := q.Find(&out).Error; err != nil {
		s.logError("list signals", err)
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return out, nil
}

func (s *GormStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *GormStore) Close() error { return s.client.Close() }

func (s *GormStore) logError(op string, err error, fields ...applogger.Field) {
	if s.l == nil {
		return
	}
	s.l.Error("postgres "+op+" error", append(fields, applogger.Error(err))...)
}
