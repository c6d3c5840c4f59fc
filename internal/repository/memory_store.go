package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
)

// MemoryStore is an in-process Store used for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	filers     map[string]models.Filer
	securities map[string]models.Security
	trades     []models.Trade
	keys       map[string]struct{}
	signals    []models.Signal
	nextTrade  uint64
	nextSignal uint64
	now        func() time.Time
}

var _ domrepo.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		filers:     make(map[string]models.Filer),
		securities: make(map[string]models.Security),
		keys:       make(map[string]struct{}),
		now:        time.Now,
	}
}

func (s *MemoryStore) UpsertFilers(_ context.Context, filers []models.Filer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, f := range filers {
		if f.ID == "" {
			return fmt.Errorf("upsert filer: empty id")
		}
		if old, ok := s.filers[f.ID]; ok {
			f.CreatedAt = old.CreatedAt
		} else {
			f.CreatedAt = now
		}
		f.UpdatedAt = now
		s.filers[f.ID] = f
	}
	return nil
}

func (s *MemoryStore) UpsertSecurities(_ context.Context, securities []models.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range securities {
		sec.UpdatedAt = s.now()
		s.securities[sec.Ticker] = sec
	}
	return nil
}

func (s *MemoryStore) InsertTrades(_ context.Context, trades []models.Trade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, t := range trades {
		if t.DedupKey == "" {
			t.DedupKey = t.Key()
		}
		if _, dup := s.keys[t.DedupKey]; dup {
			continue
		}
		s.nextTrade++
		t.ID = s.nextTrade
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		s.keys[t.DedupKey] = struct{}{}
		s.trades = append(s.trades, t)
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) ListTrades(_ context.Context, f models.TradeFilter) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Trade, 0)
	for _, t := range s.trades {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.TradeDate.Equal(b.TradeDate) {
			if f.Desc {
				return a.TradeDate.After(b.TradeDate)
			}
			return a.TradeDate.Before(b.TradeDate)
		}
		if f.Desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return page(out, f.Offset, f.Limit), nil
}

func (s *MemoryStore) CountTrades(_ context.Context, f models.TradeFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.trades {
		if f.Match(t) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListFilers(_ context.Context, ids []string) ([]models.Filer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Filer, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.filers[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetSecurities(_ context.Context, tickers []string) (map[string]models.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Security, len(tickers))
	for _, tk := range tickers {
		if sec, ok := s.securities[tk]; ok {
			out[tk] = sec
		}
	}
	return out, nil
}

// ReplaceSignals validates the whole set before touching state, so a
// rejected set leaves the previous signals active.
func (s *MemoryStore) ReplaceSignals(_ context.Context, scope models.SignalScope, signals []models.Signal, resize []models.SignalSize) error {
	for _, sig := range signals {
		if sig.Ticker == "" || !sig.SignalType.Valid() {
			return fmt.Errorf("replace signals: invalid signal %q/%q", sig.Ticker, sig.SignalType)
		}
		if scope.Ticker != "" && sig.Ticker != scope.Ticker {
			return fmt.Errorf("replace signals: %s outside scope %s", sig.Ticker, scope.Label())
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make(map[uint64]models.SignalSize, len(resize))
	for _, r := range resize {
		sizes[r.ID] = r
	}
	for i := range s.signals {
		if !s.signals[i].IsActive {
			continue
		}
		if scope.Ticker == "" || s.signals[i].Ticker == scope.Ticker {
			s.signals[i].IsActive = false
			continue
		}
		if r, ok := sizes[s.signals[i].ID]; ok {
			s.signals[i].PositionPct = r.Pct
			s.signals[i].PositionValue = r.Value
		}
	}
	for _, sig := range signals {
		s.nextSignal++
		sig.ID = s.nextSignal
		if sig.CreatedAt.IsZero() {
			sig.CreatedAt = s.now()
		}
		s.signals = append(s.signals, sig)
	}
	return nil
}

func (s *MemoryStore) ListSignals(_ context.Context, f models.SignalFilter) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, 0)
	for _, sig := range s.signals {
		if f.Match(sig) {
			out = append(out, sig)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].ID > out[j].ID
	})
	return page(out, 0, f.Limit), nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func page[T any](rows []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[offset:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
