package signals

import "testing"

func TestTranslatePresenceMap(t *testing.T) {
	sig := Translate(map[string]any{
		"faceCount": 1.0,
		"faces":     []any{map[string]any{"centerX": 0.2, "centerY": "0.5"}},
	})
	p, ok := sig.(Presence)
	if !ok {
		t.Fatalf("expected presence, got %T", sig)
	}
	if p.FaceCount != 1 || len(p.Faces) != 1 {
		t.Fatalf("unexpected presence %+v", p)
	}
	if !p.Faces[0].HasCenter || p.Faces[0].CenterX != 0.2 || p.Faces[0].CenterY != 0.5 {
		t.Fatalf("unexpected face %+v", p.Faces[0])
	}
}

func TestTranslatePresenceCountOnly(t *testing.T) {
	p, ok := Translate(map[string]any{"faceCount": 0.0}).(Presence)
	if !ok || p.FaceCount != 0 {
		t.Fatalf("expected empty presence, got %+v", p)
	}
	p, ok = Translate(map[string]any{"faces": []any{map[string]any{}, map[string]any{}}}).(Presence)
	if !ok || p.FaceCount != 2 || p.Faces[0].HasCenter {
		t.Fatalf("expected count from faces without centers, got %+v", p)
	}
}

func TestTranslateRejectsMalformedPresence(t *testing.T) {
	for _, in := range []map[string]any{
		{"faceCount": "many"},
		{"faceCount": -1.0},
		{"faceCount": 1.5},
		{"faces": "none"},
	} {
		if _, ok := Translate(in).(Legacy); !ok {
			t.Fatalf("expected legacy for %v", in)
		}
	}
}

func TestTranslateObjects(t *testing.T) {
	sig := Translate([]any{
		map[string]any{"class": "Cell Phone", "score": 0.9},
		map[string]any{"label": "book", "confidence": "0.7"},
	})
	o, ok := sig.(Objects)
	if !ok {
		t.Fatalf("expected objects, got %T", sig)
	}
	if len(o.Predictions) != 2 || o.Predictions[0].Label != "cell phone" || o.Predictions[1].Confidence != 0.7 {
		t.Fatalf("unexpected predictions %+v", o.Predictions)
	}

	wrapped, ok := Translate(map[string]any{"predictions": []any{}}).(Objects)
	if !ok || len(wrapped.Predictions) != 0 {
		t.Fatalf("expected empty batch, got %+v", wrapped)
	}
}

func TestTranslateLegacy(t *testing.T) {
	inputs := []any{
		"User looking away >5s",
		nil,
		[]any{},
		[]any{"a"},
		[]any{map[string]any{"label": "book"}},
		map[string]any{"type": "object-detected", "label": "book", "confidence": 0.9},
		(*Presence)(nil),
	}
	for _, in := range inputs {
		if _, ok := Translate(in).(Legacy); !ok {
			t.Fatalf("expected legacy for %#v", in)
		}
	}
}

func TestTranslateTypedPassThrough(t *testing.T) {
	p := Presence{FaceCount: 0, Faces: []Face{Centered(0.5, 0.5)}}
	got, ok := Translate(&p).(Presence)
	if !ok || got.FaceCount != 1 {
		t.Fatalf("expected face count raised to match faces, got %+v", got)
	}
	if _, ok := Translate([]Prediction{{Label: "tv", Confidence: 1}}).(Objects); !ok {
		t.Fatalf("expected typed predictions to become objects")
	}
}

func TestValueRoundTrip(t *testing.T) {
	p := NewPresence(Centered(0.2, 0.4), Face{})
	got, ok := Translate(p.Value()).(Presence)
	if !ok || got.FaceCount != 2 || !got.Faces[0].HasCenter || got.Faces[1].HasCenter {
		t.Fatalf("presence did not survive its map form: %+v", got)
	}

	o := Objects{Predictions: []Prediction{{Label: "book", Confidence: 0.7}}}
	gotObjects, ok := Translate(o.Value()).(Objects)
	if !ok || len(gotObjects.Predictions) != 1 || gotObjects.Predictions[0] != o.Predictions[0] {
		t.Fatalf("objects did not survive their map form: %+v", gotObjects)
	}
}
