package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	applogger "InsiderSignals/pkg/logger"
)

// Ingester is the minimal downstream the pipeline needs.
type Ingester interface {
	Ingest(ctx context.Context, batch models.TradeBatch) (*models.IngestResult, error)
}

// IngestPipeline sits between the Kafka consumer and trade ingestion. It
// groups single-trade messages that arrive together into one ingest call and
// answers every submitter with the outcome of that call, so a message is
// acknowledged only once its trades are stored. Dedup keys make redelivery
// of a failed batch safe.
type IngestPipeline struct {
	ing      Ingester
	metrics  domrepo.Metrics
	l        *applogger.Logger
	batchSz  int
	linger   time.Duration
	attempts int
	bufCh    chan *submission
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

type submission struct {
	batch models.TradeBatch
	done  chan error
}

var errPipelineStopped = errors.New("ingest pipeline stopped")

type PipelineOption func(*IngestPipeline)

// WithBatchSize sets the number of trades that closes a batch early.
func WithBatchSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.batchSz = n
		}
	}
}

// WithFlushInterval sets how long the first message of a batch waits for
// others to join it.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *IngestPipeline) {
		if d >= 0 {
			p.linger = d
		}
	}
}

// WithBufferSize sets how many pending messages may queue before Submit
// reports back-pressure.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufCh = make(chan *submission, n)
		}
	}
}

// WithFlushAttempts sets how many times one batch is tried before its
// submitters get the error back.
func WithFlushAttempts(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *applogger.Logger) PipelineOption {
	return func(p *IngestPipeline) { p.l = l }
}

func NewIngestPipeline(ing Ingester, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		ing:      ing,
		metrics:  metrics,
		l:        applogger.Nop(),
		batchSz:  500,
		linger:   20 * time.Millisecond,
		attempts: 3,
		bufCh:    make(chan *submission, 1000),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the background flusher.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()
	go p.run(ctx)
}

// Stop flushes what is queued and stops the flusher.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Submit queues one message and waits until the batch carrying it has been
// ingested. A nil error means the trades are stored; any error leaves the
// message unacknowledged so the consumer retries or dead-letters it. A full
// buffer fails fast.
func (p *IngestPipeline) Submit(ctx context.Context, b models.TradeBatch) error {
	if len(b.Trades) == 0 && len(b.Filers) == 0 && len(b.Securities) == 0 {
		p.metrics.RecordError("pipeline_empty")
		return fmt.Errorf("empty message")
	}
	sub := &submission{batch: b, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.doneCh:
		return errPipelineStopped
	case p.bufCh <- sub:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("ingest buffer full (%d pending)", len(p.bufCh))
	}

	select {
	case err := <-sub.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.doneCh:
		// the flusher answers everything it drained before closing doneCh
		select {
		case err := <-sub.done:
			return err
		default:
			return errPipelineStopped
		}
	}
}

func (p *IngestPipeline) run(ctx context.Context) {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			for {
				select {
				case sub := <-p.bufCh:
					p.flush(ctx, p.collect(sub, 0))
				default:
					return
				}
			}
		case sub := <-p.bufCh:
			p.flush(ctx, p.collect(sub, p.linger))
		}
	}
}

// collect gathers the submissions queued behind first until the batch is
// full or linger has passed.
func (p *IngestPipeline) collect(first *submission, linger time.Duration) []*submission {
	subs := []*submission{first}
	trades := len(first.batch.Trades)
	timer := time.NewTimer(linger)
	defer timer.Stop()
	for trades < p.batchSz {
		select {
		case sub := <-p.bufCh:
			subs = append(subs, sub)
			trades += len(sub.batch.Trades)
		case <-timer.C:
			return subs
		case <-p.stopCh:
			// drain what is already queued without waiting
			for trades < p.batchSz {
				select {
				case sub := <-p.bufCh:
					subs = append(subs, sub)
					trades += len(sub.batch.Trades)
				default:
					return subs
				}
			}
			return subs
		}
	}
	return subs
}

func (p *IngestPipeline) flush(ctx context.Context, subs []*submission) {
	var b models.TradeBatch
	for _, sub := range subs {
		b = merge(b, sub.batch)
	}

	err := p.ingest(ctx, b)
	if err != nil {
		p.metrics.RecordError("pipeline_nack")
		p.l.Error("ingest batch not stored, messages left unacknowledged",
			applogger.Int("trades", len(b.Trades)),
			applogger.Int("messages", len(subs)),
			applogger.Error(err),
		)
	}
	for _, sub := range subs {
		sub.done <- err
	}
}

func (p *IngestPipeline) ingest(ctx context.Context, b models.TradeBatch) error {
	backoff := 50 * time.Millisecond
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		start := time.Now()
		var res *models.IngestResult
		res, err = p.ing.Ingest(context.WithoutCancel(ctx), b)
		if err == nil {
			p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
			for _, r := range res.Rejected {
				p.l.Warn("trade message rejected",
					applogger.Ticker(r.Ticker),
					applogger.String("reason", r.Reason),
				)
			}
			return nil
		}
		p.metrics.RecordError("pipeline_flush")
		p.l.Warn("ingest flush failed",
			applogger.Int("trades", len(b.Trades)),
			applogger.Int("attempt", attempt),
			applogger.Error(err),
		)
		if attempt == p.attempts {
			break
		}
		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
		}
	}
	return err
}

func merge(dst, src models.TradeBatch) models.TradeBatch {
	dst.Filers = append(dst.Filers, src.Filers...)
	dst.Securities = append(dst.Securities, src.Securities...)
	dst.Trades = append(dst.Trades, src.Trades...)
	return dst
}
