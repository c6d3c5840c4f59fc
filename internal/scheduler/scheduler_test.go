package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"
)

type countingRunner struct {
	calls atomic.Int32
	last  atomic.Value
	delay time.Duration
	err   error
}

func (r *countingRunner) Run(ctx context.Context, cfg models.RunConfig) (*models.RunResult, error) {
	r.calls.Add(1)
	r.last.Store(cfg)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &models.RunResult{RunID: "r"}, nil
}

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New(&countingRunner{}, models.DefaultRunConfig(), "every tuesday", time.Second, nil); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestRunNowStampsAsOf(t *testing.T) {
	r := &countingRunner{}
	s, err := New(r, models.DefaultRunConfig(), "0 0 6 * * *", time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fixed := time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.RunNow()
	if r.calls.Load() != 1 {
		t.Fatalf("calls=%d want=1", r.calls.Load())
	}
	cfg := r.last.Load().(models.RunConfig)
	if !cfg.AsOf.Equal(fixed) || cfg.Ticker != "" {
		t.Fatalf("cfg as_of=%v ticker=%q", cfg.AsOf, cfg.Ticker)
	}
}

func TestRunOnStartAndStop(t *testing.T) {
	r := &countingRunner{delay: 5 * time.Second}
	s, err := New(r, models.DefaultRunConfig(), "0 0 6 * * *", time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start(context.Background(), true)

	deadline := time.Now().Add(time.Second)
	for r.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("run on start did not fire")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not cancel the in-flight run")
	}
}

func TestScheduledTicks(t *testing.T) {
	r := &countingRunner{}
	s, err := New(r, models.DefaultRunConfig(), "* * * * * *", time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start(context.Background(), false)
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for r.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if r.calls.Load() == 0 {
		t.Fatalf("cron never fired")
	}
}

type countingDigest struct {
	calls atomic.Int32
}

func (d *countingDigest) Send(ctx context.Context) (*models.Digest, error) {
	d.calls.Add(1)
	return &models.Digest{}, nil
}

func TestDigestJob(t *testing.T) {
	s, err := New(&countingRunner{}, models.DefaultRunConfig(), "0 0 6 * * *", time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.AddDigest("not a cron", &countingDigest{}); err == nil {
		t.Fatalf("expected error for invalid digest spec")
	}

	d := &countingDigest{}
	if err := s.AddDigest("* * * * * *", d); err != nil {
		t.Fatalf("add digest: %v", err)
	}
	s.Start(context.Background(), false)
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for d.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if d.calls.Load() == 0 {
		t.Fatalf("digest never fired")
	}
}
