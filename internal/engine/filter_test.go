package engine

import (
	"testing"

	"github.com/miradorstack/mirador-proctor/internal/signals"
)

func TestObjectFilterAccept(t *testing.T) {
	f := DefaultObjectFilter()
	cases := []struct {
		pred signals.Prediction
		want bool
	}{
		{signals.Prediction{Label: "chair", Confidence: 0.9}, false},
		{signals.Prediction{Label: "cell phone", Confidence: 0.61}, true},
		{signals.Prediction{Label: "cell phone", Confidence: 0.6}, false},
		{signals.Prediction{Label: "Cell Phone", Confidence: 0.8}, true},
		{signals.Prediction{Label: "book", Confidence: 0.99}, true},
		{signals.Prediction{Label: "laptop", Confidence: 0.7}, true},
		{signals.Prediction{Label: "tv", Confidence: 0.65}, true},
		{signals.Prediction{Label: "remote", Confidence: 0.601}, true},
		{signals.Prediction{Label: "person", Confidence: 1}, false},
	}
	for _, tc := range cases {
		if got := f.Accept(tc.pred); got != tc.want {
			t.Fatalf("%+v: got %v, want %v", tc.pred, got, tc.want)
		}
	}
}

func TestObserveObjectsForwardsEachQualifyingPrediction(t *testing.T) {
	d, sched, rec := newTestDebouncer(t)
	batch := signals.Objects{Predictions: []signals.Prediction{
		{Label: "cell phone", Confidence: 0.61},
		{Label: "chair", Confidence: 0.9},
		{Label: "book", Confidence: 0.95},
		{Label: "cell phone", Confidence: 0.6},
	}}

	if n := d.ObserveObjects(batch); n != 2 {
		t.Fatalf("expected 2 forwarded predictions, got %d", n)
	}
	// No deduplication across polls.
	if n := d.ObserveObjects(batch); n != 2 {
		t.Fatalf("expected repeated batch to forward again, got %d", n)
	}
	if len(rec.raws) != 4 {
		t.Fatalf("expected 4 raw records, got %d", len(rec.raws))
	}

	first, ok := rec.raws[0].(map[string]any)
	if !ok {
		t.Fatalf("expected object record, got %T", rec.raws[0])
	}
	if first["type"] != ObjectEventType || first["label"] != "cell phone" || first["confidence"] != 0.61 {
		t.Fatalf("unexpected record %v", first)
	}
	if first["time"] != sched.Now().UnixMilli() {
		t.Fatalf("expected record stamped with scheduler time, got %v", first["time"])
	}

	ev := Normalize(first, sched.Now())
	if ev.Kind != "object" || ev.Label != "cell phone" {
		t.Fatalf("object record did not normalize to an object event: %+v", ev)
	}
}

func TestCustomObjectFilter(t *testing.T) {
	f := NewObjectFilter(0.3, []string{" Bottle "})
	if !f.Accept(signals.Prediction{Label: "bottle", Confidence: 0.31}) {
		t.Fatalf("expected custom label to be accepted")
	}
	if f.Accept(signals.Prediction{Label: "book", Confidence: 0.9}) {
		t.Fatalf("expected default labels to be replaced")
	}
}
