package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/codetango/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
}

func TestBarrierMetricsCountEvents(t *testing.T) {
	testlog.Start(t)
	m := NewBarrierMetrics()

	arrivals := testutil.ToFloat64(barrierArrivals.WithLabelValues("program1"))
	matched := testutil.ToFloat64(barrierCompletions.WithLabelValues(ResultMatch))
	differed := testutil.ToFloat64(barrierCompletions.WithLabelValues(ResultDiffer))
	diffs := testutil.ToFloat64(barrierDifferences)
	malformed := testutil.ToFloat64(malformedMessages.WithLabelValues("program2"))

	m.Arrived("program1", "init")
	m.Arrived("program1", "check")
	m.Completed("init", 0)
	m.Completed("check", 3)
	m.Malformed("program2")

	if got := testutil.ToFloat64(barrierArrivals.WithLabelValues("program1")); got != arrivals+2 {
		t.Fatalf("arrivals got=%v want=%v", got, arrivals+2)
	}
	if got := testutil.ToFloat64(barrierCompletions.WithLabelValues(ResultMatch)); got != matched+1 {
		t.Fatalf("match completions got=%v want=%v", got, matched+1)
	}
	if got := testutil.ToFloat64(barrierCompletions.WithLabelValues(ResultDiffer)); got != differed+1 {
		t.Fatalf("differ completions got=%v want=%v", got, differed+1)
	}
	if got := testutil.ToFloat64(barrierDifferences); got != diffs+3 {
		t.Fatalf("differences got=%v want=%v", got, diffs+3)
	}
	if got := testutil.ToFloat64(malformedMessages.WithLabelValues("program2")); got != malformed+1 {
		t.Fatalf("malformed got=%v want=%v", got, malformed+1)
	}
}
