package logger

import (
	"context"
	"testing"
	"time"
)

type chanPublisher struct {
	got chan []AggregatedLogEntry
}

func (p *chanPublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.got <- payload.([]AggregatedLogEntry)
	return nil
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &chanPublisher{got: make(chan []AggregatedLogEntry, 1)}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "store down", map[string]interface{}{"op": "list"}, "a.go:1")
	c.AddLog("error", "store down", map[string]interface{}{"op": "list"}, "a.go:1")
	c.AddLog("error", "lock timeout", nil, "b.go:2")

	select {
	case logs := <-pub.got:
		if len(logs) != 2 {
			t.Fatalf("entries=%d want=2", len(logs))
		}
		for _, e := range logs {
			if e.Message == "store down" && e.Count != 2 {
				t.Fatalf("count=%d want=2", e.Count)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("threshold flush not published")
	}
}

func TestLoggerCollectsErrorsOnly(t *testing.T) {
	pub := &chanPublisher{got: make(chan []AggregatedLogEntry, 1)}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	defer l.RemoveCollector()

	l.Warn("ignored")
	l.Error("counted", String("ticker", "ACME"), Error(nil))

	select {
	case logs := <-pub.got:
		if len(logs) != 1 || logs[0].Level != "error" {
			t.Fatalf("unexpected logs %+v", logs)
		}
		if logs[0].Fields["ticker"] != "ACME" {
			t.Fatalf("fields=%v", logs[0].Fields)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error entry not published")
	}
}

func TestCollectorIgnoresVolatileFields(t *testing.T) {
	pub := &chanPublisher{got: make(chan []AggregatedLogEntry, 1)}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	c.AddLog("error", "publish failed", map[string]interface{}{"topic": "signals", "trace_id": "a"}, "p.go:9")
	c.AddLog("error", "publish failed", map[string]interface{}{"topic": "signals", "trace_id": "b"}, "p.go:9")
	c.AddLog("error", "publish failed", map[string]interface{}{"topic": "runs", "trace_id": "c"}, "p.go:9")
	c.Close()

	select {
	case logs := <-pub.got:
		if len(logs) != 2 {
			t.Fatalf("entries=%d want=2", len(logs))
		}
		for _, e := range logs {
			if e.Fields["topic"] == "signals" && e.Count != 2 {
				t.Fatalf("signals entry=%+v want count 2", e)
			}
		}
	default:
		t.Fatalf("close should flush pending entries")
	}

	// entries after close are ignored
	c.AddLog("error", "late", nil, "p.go:10")
}
