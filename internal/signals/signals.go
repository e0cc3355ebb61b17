// Package signals defines the tagged union emitted by detection adapters and
// the one boundary function that maps free-form values onto it.
package signals

// Signal is implemented by Presence, Objects and Legacy only.
type Signal interface {
	isSignal()
}

// Face is one detected face, located by the center of its bounding box in
// relative frame coordinates. HasCenter is false when the detector reported
// the face without a usable box.
type Face struct {
	CenterX   float64 `json:"centerX"`
	CenterY   float64 `json:"centerY"`
	HasCenter bool    `json:"-"`
}

// Presence is a per-frame face detection result from the gaze/presence detector.
type Presence struct {
	FaceCount int    `json:"faceCount"`
	Faces     []Face `json:"faces"`
}

// Prediction is one labeled object reported by the object detector.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Objects is one polling batch from the object detector.
type Objects struct {
	Predictions []Prediction `json:"predictions"`
}

// Legacy carries any value that is not a recognised adapter shape. It is
// routed straight to the normalizer.
type Legacy struct {
	Value any
}

func (Presence) isSignal() {}
func (Objects) isSignal()  {}
func (Legacy) isSignal()   {}

// NewPresence builds a Presence whose count matches the faces supplied.
func NewPresence(faces ...Face) Presence {
	return Presence{FaceCount: len(faces), Faces: faces}
}

// Centered returns a face located at (x, y).
func Centered(x, y float64) Face {
	return Face{CenterX: x, CenterY: y, HasCenter: true}
}

// Value renders p in the map form Translate accepts, for transports that
// only carry JSON-like values.
func (p Presence) Value() map[string]any {
	faces := make([]any, 0, len(p.Faces))
	for _, f := range p.Faces {
		if f.HasCenter {
			faces = append(faces, map[string]any{"centerX": f.CenterX, "centerY": f.CenterY})
		} else {
			faces = append(faces, map[string]any{})
		}
	}
	return map[string]any{"faceCount": p.FaceCount, "faces": faces}
}

// Value renders o in the map form Translate accepts.
func (o Objects) Value() map[string]any {
	preds := make([]any, 0, len(o.Predictions))
	for _, pr := range o.Predictions {
		preds = append(preds, map[string]any{"label": pr.Label, "confidence": pr.Confidence})
	}
	return map[string]any{"predictions": preds}
}
