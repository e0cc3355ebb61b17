package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-proctor/internal/models"
)

var (
	objectHints = []string{"object", "detected", "phone", "book"}
	focusHints  = []string{"focus", "looking", "no face", "absent"}
)

// Normalize maps a value of unknown shape onto exactly one CanonicalEvent.
// It is pure and total: every input, including nil, yields a well-formed
// event whose timestamp defaults to now.
//
// Plain strings become focus events. Objects carrying a type, label or
// message are classified by substring hints on their type; a type matching
// both hint sets resolves to focus. Structs and other maps are read through
// their JSON form, so a struct tagged `json:"label"` counts as carrying a
// label. Anything else becomes an "other" event whose message is the JSON
// form of the input.
func Normalize(v any, now time.Time) models.CanonicalEvent {
	nowMs := now.UnixMilli()

	switch val := v.(type) {
	case string:
		return models.CanonicalEvent{Kind: models.KindFocus, Message: val, Timestamp: nowMs}
	case models.CanonicalEvent:
		return sanitize(val, nowMs)
	case *models.CanonicalEvent:
		if val != nil {
			return sanitize(*val, nowMs)
		}
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return Normalize(m, now)
	case map[string]any:
		if hasEventFields(val) {
			return fromFields(val, nowMs)
		}
	case nil, bool, float64, float32, int, int64, json.Number, []any:
	default:
		if m, ok := asObject(v); ok && hasEventFields(m) {
			return fromFields(m, nowMs)
		}
	}

	return models.CanonicalEvent{Kind: models.KindOther, Message: stringify(v), Timestamp: nowMs}
}

func hasEventFields(m map[string]any) bool {
	return truthy(m["type"]) || truthy(m["label"]) || truthy(m["message"])
}

// asObject decodes v through JSON and reports whether it encodes as an
// object.
func asObject(v any) (map[string]any, bool) {
	data, err := json.Marshal(v)
	if err != nil || len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}

func fromFields(m map[string]any, nowMs int64) models.CanonicalEvent {
	ev := models.CanonicalEvent{Kind: classify(m["type"]), Timestamp: nowMs}

	inner, _ := m["message"].(map[string]any)

	switch {
	case truthy(m["label"]):
		ev.Label = labelOf(m["label"])
	case truthy(m["class"]):
		ev.Label = labelOf(m["class"])
	case inner != nil && truthy(inner["label"]):
		ev.Label = labelOf(inner["label"])
	}

	var rawConf any
	switch {
	case m["confidence"] != nil:
		rawConf = m["confidence"]
	case m["score"] != nil:
		rawConf = m["score"]
	case inner != nil:
		rawConf = inner["confidence"]
	}
	ev.Confidence = coerceConfidence(rawConf)

	if s, ok := m["message"].(string); ok {
		ev.Message = s
	} else if truthy(m["msg"]) {
		ev.Message = scalarString(m["msg"])
	}

	rawTime := m["time"]
	if rawTime == nil {
		rawTime = m["timestamp"]
	}
	if ms, ok := coerceMillis(rawTime); ok {
		ev.Timestamp = ms
	}
	return ev
}

// classify applies the hint sets in order; the focus check runs last and
// overwrites an object match.
func classify(rawType any) models.Kind {
	typ := ""
	if truthy(rawType) {
		typ = strings.ToLower(scalarString(rawType))
	}
	kind := models.KindOther
	if containsAny(typ, objectHints) {
		kind = models.KindObjectDetected
	}
	if containsAny(typ, focusHints) {
		kind = models.KindFocus
	}
	return kind
}

func sanitize(ev models.CanonicalEvent, nowMs int64) models.CanonicalEvent {
	if !ev.Kind.Valid() {
		ev.Kind = models.KindOther
	}
	if ev.Confidence != nil {
		ev.Confidence = coerceConfidence(*ev.Confidence)
	}
	if ev.Timestamp <= 0 {
		ev.Timestamp = nowMs
	}
	return ev
}

func containsAny(s string, hints []string) bool {
	if s == "" {
		return false
	}
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// truthy follows loose truthiness: nil, empty strings, false, zero and NaN
// are all falsy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case float32:
		return val != 0 && !math.IsNaN(float64(val))
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func labelOf(v any) string {
	return strings.ToLower(strings.TrimSpace(scalarString(v)))
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	case bool, int, int64, float32, json.Number:
		return fmt.Sprint(val)
	default:
		return stringify(val)
	}
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// coerceConfidence converts a confidence-like value into a score in [0,1].
// Values that cannot be coerced, or fall outside the range, are dropped.
func coerceConfidence(v any) *float64 {
	f, ok := toFloat(v)
	if !ok || f < 0 || f > 1 {
		return nil
	}
	return &f
}

func coerceMillis(v any) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if val.IsZero() {
			return 0, false
		}
		return val.UnixMilli(), true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli(), true
			}
		}
	}
	f, ok := toFloat(v)
	if !ok || f <= 0 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
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
