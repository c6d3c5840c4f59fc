package queue

import (
	"testing"
	"time"

	"InsiderSignals/pkg/logger"
)

func TestRetryDelayBacksOff(t *testing.T) {
	q := NewRedisQueue(logger.Nop(), &QueueConfig{RetryDelay: 10 * time.Second}, nil, ModeConsumerOnly)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{4, 80 * time.Second},
		{20, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := q.retryDelay(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: delay=%s want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRedisQueueKeysAndMode(t *testing.T) {
	q := NewRedisQueue(logger.Nop(), nil, nil, ModeProducerOnly, WithKeyPrefix("insider:queue"))
	if q.queueKey() != "insider:queue:messages" || q.retryKey() != "insider:queue:retry" || q.deadLetterKey() != "insider:queue:dlq" {
		t.Fatalf("unexpected keys %s %s %s", q.queueKey(), q.retryKey(), q.deadLetterKey())
	}
	if q.modeString() != "producer-only" {
		t.Fatalf("mode=%s", q.modeString())
	}
}
