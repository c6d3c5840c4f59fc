package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordTradesIngested("house", 3)
	r.RecordTradesIngested("house", 2)
	r.RecordTradesRejected(1)
	r.RecordSignals("moderate", 4)
	r.RecordSignals("moderate", 2)

	if got := testutil.ToFloat64(r.tradesIngested.WithLabelValues("house")); got != 5 {
		t.Fatalf("ingested=%v want=5", got)
	}
	if got := testutil.ToFloat64(r.tradesRejected); got != 1 {
		t.Fatalf("rejected=%v want=1", got)
	}
	if got := testutil.ToFloat64(r.signals.WithLabelValues("moderate")); got != 2 {
		t.Fatalf("signals gauge=%v want=2", got)
	}
}
