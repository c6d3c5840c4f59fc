package usecase

import (
	"context"
	"fmt"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
)

// TradeStoreLockKey is the lock shared by every batch job writing or
// snapshotting the trade store.
const TradeStoreLockKey = "lock:trade-store"

// StoreLock serializes batch jobs on the trade store. It polls TryLock until
// wait elapses; ttl bounds how long a crashed holder blocks others.
type StoreLock struct {
	locker domrepo.Locker
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

func NewStoreLock(locker domrepo.Locker, ttl, wait time.Duration) *StoreLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StoreLock{locker: locker, ttl: ttl, wait: wait, poll: 100 * time.Millisecond}
}

// Acquire blocks until the lock is held, wait elapses or ctx is done. The
// returned release func must be called exactly once.
func (s *StoreLock) Acquire(ctx context.Context) (func(), error) {
	deadline := time.Now().Add(s.wait)
	for {
		ok, err := s.locker.TryLock(ctx, TradeStoreLockKey, s.ttl)
		if err != nil {
			return nil, fmt.Errorf("%w: acquire lock: %w", models.ErrDataUnavailable, err)
		}
		if ok {
			return func() {
				// the holder's ctx may already be cancelled
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = s.locker.Unlock(ctx, TradeStoreLockKey)
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: waited %s", models.ErrLockTimeout, s.wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}
