package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	min, max := 50*time.Millisecond, 400*time.Millisecond
	for attempt := 1; attempt <= 8; attempt++ {
		exp := min << uint(attempt-1)
		if exp > max {
			exp = max
		}
		for i := 0; i < 20; i++ {
			d := backoffWithJitter(min, max, attempt)
			if d <= exp/2 || d > exp {
				t.Fatalf("attempt %d: backoff %s outside (%s, %s]", attempt, d, exp/2, exp)
			}
		}
	}
}

func TestDLQHeadersKeepOriginals(t *testing.T) {
	km := kafka.Message{
		Offset:  42,
		Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}},
	}
	h := dlqHeaders(km, "insider.trades", errors.New("decode trade: bad ticker"))
	got := map[string]string{}
	for _, kv := range h {
		got[kv.Key] = string(kv.Value)
	}
	want := map[string]string{
		"trace_id":      "t-1",
		"source_topic":  "insider.trades",
		"source_offset": "42",
		"error":         "decode trade: bad ticker",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("header %s=%q want %q", k, got[k], v)
		}
	}
}
