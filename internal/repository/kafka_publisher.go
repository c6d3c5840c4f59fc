package repository

import (
	"context"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	pkgkafka "InsiderSignals/pkg/kafka"
)

// SignalEvent is the record written to the signals topic, one per signal.
type SignalEvent struct {
	RunID       string            `json:"run_id"`
	AsOf        time.Time         `json:"as_of"`
	Scope       string            `json:"scope"`
	Ticker      string            `json:"ticker"`
	SignalType  models.SignalType `json:"signal_type"`
	Strength    float64           `json:"strength"`
	Conviction  models.Conviction `json:"conviction"`
	PositionPct float64           `json:"position_pct"`
	Position    string            `json:"position_value"`
	Reasoning   string            `json:"reasoning"`
	CashPct     float64           `json:"cash_pct"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// RunSummaryEvent closes a run on the topic so consumers can tell an empty
// run from a missing one. Its key is the scope label.
type RunSummaryEvent struct {
	RunID    string    `json:"run_id"`
	AsOf     time.Time `json:"as_of"`
	Scope    string    `json:"scope"`
	Signals  int       `json:"signals"`
	Patterns int       `json:"patterns"`
	CashPct  float64   `json:"cash_pct"`
	Summary  bool      `json:"summary"`
}

// KafkaEventPublisher implements EventPublisher for Kafka.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishSignals(ctx context.Context, run *models.RunResult) error {
	msgs := make([]pkgkafka.Message, 0, len(run.Signals)+1)
	for _, s := range run.Signals {
		msgs = append(msgs, pkgkafka.Message{
			Key:     []byte(s.Ticker),
			Headers: eventHeaders("signal", run.RunID),
			Value:   SignalEvent{
				RunID:       run.RunID,
				AsOf:        run.AsOf,
				Scope:       run.Scope,
				Ticker:      s.Ticker,
				SignalType:  s.SignalType,
				Strength:    s.Strength,
				Conviction:  s.Conviction,
				PositionPct: s.PositionPct,
				Position:    s.PositionValue.StringFixed(2),
				Reasoning:   s.Reasoning,
				CashPct:     run.Allocation.CashPct,
				ExpiresAt:   s.ExpiresAt,
			},
		})
	}
	msgs = append(msgs, pkgkafka.Message{
		Key:     []byte(run.Scope),
		Headers: eventHeaders("run_summary", run.RunID),
		Value:   RunSummaryEvent{
			RunID:    run.RunID,
			AsOf:     run.AsOf,
			Scope:    run.Scope,
			Signals:  len(run.Signals),
			Patterns: len(run.Patterns),
			CashPct:  run.Allocation.CashPct,
			Summary:  true,
		},
	})
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// DigestEvent is the daily summary record on the signals topic.
type DigestEvent struct {
	AsOf     time.Time     `json:"as_of"`
	Active   int           `json:"active_signals"`
	Top      []SignalEvent `json:"top_signals"`
	Invested string        `json:"invested_value"`
	CashPct  float64       `json:"cash_pct"`
	Risk     string        `json:"risk_tolerance"`
	Digest   bool          `json:"digest"`
}

// PublishDigest writes the digest as one record keyed "digest".
func (p *KafkaEventPublisher) PublishDigest(ctx context.Context, d *models.Digest) error {
	ev := DigestEvent{
		AsOf:     d.AsOf,
		Active:   d.Active,
		Top:      make([]SignalEvent, 0, len(d.Top)),
		Invested: d.Allocation.InvestedValue.StringFixed(2),
		CashPct:  d.Allocation.CashPct,
		Risk:     string(d.Allocation.RiskTolerance),
		Digest:   true,
	}
	for _, s := range d.Top {
		ev.Top = append(ev.Top, SignalEvent{
			RunID:       s.RunID,
			AsOf:        s.CreatedAt,
			Ticker:      s.Ticker,
			SignalType:  s.SignalType,
			Strength:    s.Strength,
			Conviction:  s.Conviction,
			PositionPct: s.PositionPct,
			Position:    s.PositionValue.StringFixed(2),
			Reasoning:   s.Reasoning,
			ExpiresAt:   s.ExpiresAt,
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:     []byte("digest"),
		Headers: map[string]string{"event_type": "daily_digest"},
		Value:   ev,
	}})
}

func eventHeaders(kind, runID string) map[string]string {
	return map[string]string{"event_type": kind, "run_id": runID}
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaLogPublisher forwards aggregated log batches from the logger
// collector. The payload is keyed by topic so one partition keeps order.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogPublisher(producer *pkgkafka.Producer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, []byte(topic), payload)
}

var (
	_ domrepo.EventPublisher  = (*KafkaEventPublisher)(nil)
	_ domrepo.DigestPublisher = (*KafkaEventPublisher)(nil)
)
