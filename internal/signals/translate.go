package signals

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Translate maps an arbitrary inbound value onto the Signal union. Typed
// variants pass through untouched, maps shaped like presence or object
// payloads are decoded, and everything else becomes Legacy. It never fails.
func Translate(v any) Signal {
	switch val := v.(type) {
	case Presence:
		return normalisePresence(val)
	case *Presence:
		if val == nil {
			return Legacy{Value: nil}
		}
		return normalisePresence(*val)
	case Objects:
		return val
	case *Objects:
		if val == nil {
			return Legacy{Value: nil}
		}
		return *val
	case []Prediction:
		return Objects{Predictions: val}
	case Legacy:
		return val
	case map[string]any:
		if sig, ok := presenceFromMap(val); ok {
			return sig
		}
		if list, ok := val["predictions"].([]any); ok {
			if preds, ok := predictionsFromList(list); ok {
				return Objects{Predictions: preds}
			}
		}
	case []any:
		if len(val) == 0 {
			break
		}
		if preds, ok := predictionsFromList(val); ok {
			return Objects{Predictions: preds}
		}
	}
	return Legacy{Value: v}
}

func normalisePresence(p Presence) Presence {
	if p.FaceCount < len(p.Faces) {
		p.FaceCount = len(p.Faces)
	}
	return p
}

func presenceFromMap(m map[string]any) (Presence, bool) {
	rawCount, hasCount := m["faceCount"]
	rawFaces, hasFaces := m["faces"]
	if !hasCount && !hasFaces {
		return Presence{}, false
	}

	var p Presence
	if list, ok := rawFaces.([]any); ok {
		for _, item := range list {
			face := Face{}
			if fm, ok := item.(map[string]any); ok {
				x, okX := number(fm["centerX"])
				y, okY := number(fm["centerY"])
				if okX && okY {
					face = Centered(x, y)
				}
			}
			p.Faces = append(p.Faces, face)
		}
	} else if hasFaces && rawFaces != nil {
		return Presence{}, false
	}

	if hasCount {
		count, ok := number(rawCount)
		if !ok || count < 0 || count != math.Trunc(count) {
			return Presence{}, false
		}
		p.FaceCount = int(count)
	}
	return normalisePresence(p), true
}

// predictionsFromList accepts a list only when every element is an object
// carrying a label (label or class) and a numeric confidence (confidence or
// score). An empty list is a valid, empty batch.
func predictionsFromList(list []any) ([]Prediction, bool) {
	preds := make([]Prediction, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		label, ok := firstString(m, "label", "class")
		if !ok {
			return nil, false
		}
		conf, ok := firstNumber(m, "confidence", "score")
		if !ok {
			return nil, false
		}
		preds = append(preds, Prediction{Label: strings.ToLower(label), Confidence: conf})
	}
	return preds, true
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return number(v)
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
