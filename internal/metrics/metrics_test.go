package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObserveObjectPredictionFoldsUnknownOutcomes(t *testing.T) {
	before := testutil.ToFloat64(objectPredictionsTotal.WithLabelValues(OutcomeRejected))
	ObserveObjectPrediction("bogus")
	after := testutil.ToFloat64(objectPredictionsTotal.WithLabelValues(OutcomeRejected))
	if after-before != 1 {
		t.Fatalf("expected rejected counter to grow by 1, got %v", after-before)
	}
}

func TestObserveReportRenderClampsNegative(t *testing.T) {
	ObserveReportRender("csv", -time.Second)
	if n := testutil.CollectAndCount(reportRenderSeconds); n == 0 {
		t.Fatalf("expected histogram series to be collected")
	}
}
