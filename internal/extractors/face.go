// Package extractors converts native detector frames into engine signals.
package extractors

import (
	"encoding/json"
	"fmt"

	"github.com/miradorstack/mirador-proctor/internal/signals"
)

// BoundingBox is a box in coordinates relative to the frame (0..1).
type BoundingBox struct {
	XMin   float64 `json:"xmin"`
	YMin   float64 `json:"ymin"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (float64, float64) {
	return b.XMin + b.Width/2, b.YMin + b.Height/2
}

// LocationData wraps the relative box reported by face detectors.
type LocationData struct {
	RelativeBoundingBox *BoundingBox `json:"relativeBoundingBox,omitempty"`
}

// FaceDetection is one detected face.
type FaceDetection struct {
	LocationData *LocationData `json:"locationData,omitempty"`
	BoundingBox  *BoundingBox  `json:"boundingBox,omitempty"`
	Score        []float64     `json:"score,omitempty"`
}

// box prefers the relative bounding box and falls back to boundingBox.
func (d FaceDetection) box() *BoundingBox {
	if d.LocationData != nil && d.LocationData.RelativeBoundingBox != nil {
		return d.LocationData.RelativeBoundingBox
	}
	return d.BoundingBox
}

// FaceFrame is the result of running face detection on one video frame.
type FaceFrame struct {
	Detections []FaceDetection `json:"detections"`
}

// FaceExtractor turns face detection frames into presence signals.
type FaceExtractor struct{}

// NewFaceExtractor creates a face frame extractor.
func NewFaceExtractor() *FaceExtractor {
	return &FaceExtractor{}
}

// Extract counts every detection; only detections with a box get a center.
func (e *FaceExtractor) Extract(frame FaceFrame) signals.Presence {
	faces := make([]signals.Face, 0, len(frame.Detections))
	for _, det := range frame.Detections {
		box := det.box()
		if box == nil {
			faces = append(faces, signals.Face{})
			continue
		}
		x, y := box.Center()
		faces = append(faces, signals.Centered(x, y))
	}
	return signals.Presence{FaceCount: len(faces), Faces: faces}
}

// ExtractJSON decodes a JSON face frame and extracts it.
func (e *FaceExtractor) ExtractJSON(data []byte) (signals.Presence, error) {
	var frame FaceFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return signals.Presence{}, fmt.Errorf("decode face frame: %w", err)
	}
	return e.Extract(frame), nil
}
