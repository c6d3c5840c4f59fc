package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"InsiderSignals/internal/domain/models"
	"InsiderSignals/internal/middleware"
	pkgkafka "InsiderSignals/pkg/kafka"
	"InsiderSignals/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

type countingMetrics struct {
	metrics.Nop
	mu        sync.Mutex
	errors    map[string]int
	latencies map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, latencies: map[string]int{}}
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[op]++
}

func TestTradesConsumerHookRejectsEmptyPayload(t *testing.T) {
	hook := NewTradesConsumerHook(newCountingMetrics(), nil)
	_, _, _, err := hook.BeforeHandle(context.Background(), "insider.trades", kafka.Message{}, []byte("  \n"))
	var he *pkgkafka.HookError
	if !errors.As(err, &he) || he.Code != "ERR_EMPTY_PAYLOAD" {
		t.Fatalf("err=%v want ERR_EMPTY_PAYLOAD", err)
	}
}

func TestTradesConsumerHookCarriesTraceAndLatency(t *testing.T) {
	m := newCountingMetrics()
	hook := NewTradesConsumerHook(m, nil)
	km := kafka.Message{Headers: []kafka.Header{{Key: "X-Request-ID", Value: []byte("req-7")}}}

	ctx, _, data, err := hook.BeforeHandle(context.Background(), "insider.trades", km, []byte(`{}`))
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if got := pkgkafka.TraceID(ctx); got != "req-7" {
		t.Fatalf("trace id=%q", got)
	}
	if _, ok := pkgkafka.StartTime(ctx); !ok {
		t.Fatalf("start time missing")
	}

	hook.AfterHandle(ctx, "insider.trades", km, data, nil)
	hook.OnError(ctx, "insider.trades", km, data, errors.New("boom"))
	if m.latencies["consume_insider.trades"] != 1 {
		t.Fatalf("latencies=%v", m.latencies)
	}
	if m.errors["consumer_attempt"] != 1 {
		t.Fatalf("errors=%v", m.errors)
	}
}

func TestKafkaTradesHandlerRejectsMalformedJSON(t *testing.T) {
	m := newCountingMetrics()
	pipe := middleware.NewIngestPipeline(nil, m)
	h := NewKafkaTradesHandler("insider.trades", pipe, m)

	if err := h.Handle(context.Background(), []byte(`{"ticker":`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if m.errors["consumer_unmarshal"] != 1 {
		t.Fatalf("errors=%v", m.errors)
	}
}

type downIngester struct{ calls int }

func (d *downIngester) Ingest(context.Context, models.TradeBatch) (*models.IngestResult, error) {
	d.calls++
	return nil, errStoreDown
}

func TestKafkaTradesHandlerFailsUntilStored(t *testing.T) {
	m := newCountingMetrics()
	ing := &downIngester{}
	pipe := middleware.NewIngestPipeline(ing, m, middleware.WithFlushInterval(time.Millisecond), middleware.WithFlushAttempts(2))
	pipe.Start(context.Background())
	defer pipe.Stop()
	h := NewKafkaTradesHandler("insider.trades", pipe, m)

	msg := []byte(`{"ticker":"ACME","filer_id":"f1","trade_date":"2024-06-25","transaction_type":"BUY","amount_usd":100000,"source":"sec_form4"}`)
	if err := h.Handle(context.Background(), msg); !errors.Is(err, errStoreDown) {
		t.Fatalf("err=%v want the store error so the offset stays uncommitted", err)
	}
	if ing.calls != 2 || m.errors["consumer_submit"] != 1 {
		t.Fatalf("calls=%d errors=%v", ing.calls, m.errors)
	}
}
