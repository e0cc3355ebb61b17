package engine

import (
	"strings"

	"github.com/miradorstack/mirador-proctor/internal/signals"
)

// DefaultMinConfidence is the exclusive lower bound an object prediction must beat.
const DefaultMinConfidence = 0.6

// DefaultWatchLabels lists the object classes treated as prohibited.
var DefaultWatchLabels = []string{"cell phone", "book", "laptop", "tv", "remote"}

// ObjectFilter decides which object predictions become events.
type ObjectFilter struct {
	minConfidence float64
	labels        map[string]struct{}
}

// NewObjectFilter builds a filter accepting predictions whose confidence is
// strictly above minConfidence and whose label is in labels. Labels compare
// case-insensitively. An empty label list falls back to DefaultWatchLabels.
func NewObjectFilter(minConfidence float64, labels []string) *ObjectFilter {
	if len(labels) == 0 {
		labels = DefaultWatchLabels
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l = normaliseLabel(l); l != "" {
			set[l] = struct{}{}
		}
	}
	return &ObjectFilter{minConfidence: minConfidence, labels: set}
}

// DefaultObjectFilter returns the filter with the stock threshold and labels.
func DefaultObjectFilter() *ObjectFilter {
	return NewObjectFilter(DefaultMinConfidence, DefaultWatchLabels)
}

// Accept reports whether p should produce an event.
func (f *ObjectFilter) Accept(p signals.Prediction) bool {
	if p.Confidence <= f.minConfidence {
		return false
	}
	_, ok := f.labels[normaliseLabel(p.Label)]
	return ok
}

func normaliseLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
