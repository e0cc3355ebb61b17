package models

import "time"

// Kind classifies a canonical event. The set is closed.
type Kind string

const (
	KindFocus          Kind = "focus"
	KindObjectDetected Kind = "object"
	KindOther          Kind = "other"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFocus, KindObjectDetected, KindOther:
		return true
	default:
		return false
	}
}

// CanonicalEvent is the single normalized record every detector signal
// converges to. Empty strings mean the field was absent at the source.
type CanonicalEvent struct {
	Kind       Kind     `json:"type"`
	Label      string   `json:"label,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Message    string   `json:"message,omitempty"`
	Timestamp  int64    `json:"time"` // unix milliseconds, as reported by the source
}

// Time converts the millisecond timestamp into a time.Time.
func (e CanonicalEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// HasConfidence reports whether the event carries a confidence score.
func (e CanonicalEvent) HasConfidence() bool {
	return e.Confidence != nil
}

// Float returns a pointer to v, handy for building events with confidence.
func Float(v float64) *float64 {
	return &v
}
