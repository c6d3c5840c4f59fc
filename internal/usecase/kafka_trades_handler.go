package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	"InsiderSignals/internal/middleware"
	pkgkafka "InsiderSignals/pkg/kafka"
	applogger "InsiderSignals/pkg/logger"

	"github.com/segmentio/kafka-go"
)

var errEmptyPayload = errors.New("empty payload")

// TradeMessage is the payload on the trades topic: one disclosure with its
// filer and, optionally, security metadata embedded.
type TradeMessage struct {
	models.TradeInput
	Filer    *models.FilerInput    `json:"filer,omitempty"`
	Security *models.SecurityInput `json:"security,omitempty"`
}

// KafkaTradesHandler decodes trade messages and hands them to the ingest
// pipeline. Handle returns only after the trade is stored or its batch has
// failed, so the consumer never commits an offset ahead of the store.
type KafkaTradesHandler struct {
	topic   string
	pipe    *middleware.IngestPipeline
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, pipe *middleware.IngestPipeline, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var m TradeMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode trade message: %w", err)
	}

	batch := models.TradeBatch{Trades: []models.Trade{TradeFromInput(m.TradeInput)}}
	if m.Filer != nil {
		batch.Filers = append(batch.Filers, FilerFromInput(*m.Filer))
	}
	if m.Security != nil {
		batch.Securities = append(batch.Securities, models.Security{
			Ticker:       m.Security.Ticker,
			Name:         m.Security.Name,
			Sector:       m.Security.Sector,
			MarketCapUSD: m.Security.MarketCapUSD,
		})
	}

	// disclosure lag from trade date to consumption
	if t := batch.Trades[0].TradeDate; !t.IsZero() {
		h.metrics.RecordLatency("disclosure_lag_seconds", time.Since(t).Seconds())
	}
	if err := h.pipe.Submit(ctx, batch); err != nil {
		h.metrics.RecordError("consumer_submit")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)

// NewTradesConsumerHook stamps each trades message with its start time and
// trace id, rejects empty payloads before they are retried, and reports
// handling latency and failed attempts.
func NewTradesConsumerHook(metrics domrepo.Metrics, l *applogger.Logger) pkgkafka.ConsumerHook {
	if l == nil {
		l = applogger.Nop()
	}
	return pkgkafka.NewHookChain(pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			ctx = pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km))
			if len(bytes.TrimSpace(data)) == 0 {
				return ctx, km, data, &pkgkafka.HookError{Code: "ERR_EMPTY_PAYLOAD", Err: errEmptyPayload}
			}
			return ctx, km, data, nil
		},
		After: func(ctx context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
			if start, ok := pkgkafka.StartTime(ctx); ok {
				metrics.RecordLatency("consume_"+topic, time.Since(start).Seconds())
			}
		},
		Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
			metrics.RecordError("consumer_attempt")
			l.Warn("trade message attempt failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.String("trace_id", pkgkafka.TraceID(ctx)),
				applogger.Error(err),
			)
		},
	})
}
