package extractors

import (
	"strings"

	"github.com/miradorstack/mirador-proctor/internal/signals"
)

// DetectedObject is one prediction from an object detector.
type DetectedObject struct {
	Class string    `json:"class"`
	Score float64   `json:"score"`
	BBox  []float64 `json:"bbox,omitempty"`
}

// ObjectFrame is the result of one object detection pass.
type ObjectFrame []DetectedObject

// ObjectExtractor turns object detection output into object signals.
type ObjectExtractor struct{}

// NewObjectExtractor creates an object frame extractor.
func NewObjectExtractor() *ObjectExtractor {
	return &ObjectExtractor{}
}

// Extract lowercases class names and copies scores as confidences. No
// filtering happens here; the engine applies the watch-list.
func (e *ObjectExtractor) Extract(frame ObjectFrame) signals.Objects {
	preds := make([]signals.Prediction, 0, len(frame))
	for _, obj := range frame {
		preds = append(preds, signals.Prediction{
			Label:      strings.ToLower(strings.TrimSpace(obj.Class)),
			Confidence: obj.Score,
		})
	}
	return signals.Objects{Predictions: preds}
}
