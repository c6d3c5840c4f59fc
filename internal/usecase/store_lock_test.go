package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"
	pkgcache "InsiderSignals/pkg/cache"
)

type brokenLocker struct{}

func (brokenLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (brokenLocker) Unlock(context.Context, string) error { return nil }

func TestStoreLock_WaitsForRelease(t *testing.T) {
	cache := pkgcache.NewMemoryCache()
	defer cache.Close()
	lock := NewStoreLock(cache, time.Minute, 2*time.Second)
	ctx := context.Background()

	release, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	go func() {
		time.Sleep(150 * time.Millisecond)
		release()
	}()

	start := time.Now()
	release2, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	defer release2()
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("second holder did not wait")
	}
}

func TestStoreLock_Timeout(t *testing.T) {
	cache := pkgcache.NewMemoryCache()
	defer cache.Close()
	lock := NewStoreLock(cache, time.Minute, 120*time.Millisecond)

	release, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := lock.Acquire(context.Background()); !errors.Is(err, models.ErrLockTimeout) {
		t.Fatalf("err=%v want ErrLockTimeout", err)
	}
}

func TestStoreLock_ContextCancelled(t *testing.T) {
	cache := pkgcache.NewMemoryCache()
	defer cache.Close()
	lock := NewStoreLock(cache, time.Minute, time.Minute)
	release, _ := lock.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := lock.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}
}

func TestStoreLock_LockerFailure(t *testing.T) {
	lock := NewStoreLock(brokenLocker{}, time.Minute, time.Second)
	if _, err := lock.Acquire(context.Background()); !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("err=%v want ErrDataUnavailable", err)
	}
}
