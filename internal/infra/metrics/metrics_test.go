package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordOutcome(OutcomeSuccess)
	m.RecordOutcome(OutcomeSuccess)
	m.RecordOutcome(OutcomeConversion)
	m.ObserveConvert(150 * time.Millisecond)
	m.ObserveInput(1 << 20)
	m.RecordCleanupFailure()
	m.RecordSwept(3)

	if got := testutil.ToFloat64(m.conversions.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.conversions.WithLabelValues(OutcomeConversion)); got != 1 {
		t.Fatalf("expected 1 conversion failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.cleanupFailures); got != 1 {
		t.Fatalf("expected 1 cleanup failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.swept); got != 3 {
		t.Fatalf("expected 3 swept, got %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Fatalf("expected duration histogram collected, got %d", n)
	}
}

func TestBeginTracksInflight(t *testing.T) {
	m := New(prometheus.NewRegistry())
	end1 := m.Begin()
	end2 := m.Begin()
	if got := testutil.ToFloat64(m.inflight); got != 2 {
		t.Fatalf("expected 2 in flight, got %v", got)
	}
	end1()
	end2()
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
}

func TestNew_PanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
