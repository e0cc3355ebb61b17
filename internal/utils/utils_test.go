package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("session_id", "s1"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"session_id":"s1"`) {
		t.Fatalf("expected JSON attrs, got %s", out)
	}
}

func TestAppErrorMessage(t *testing.T) {
	base := errors.New("disk full")
	err := NewAppError("archive.append", "could not persist event", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected AppError to unwrap")
	}
	if Message(err) != "could not persist event" {
		t.Fatalf("unexpected message %q", Message(err))
	}
	if Message(base) != "disk full" || Message(nil) != "" {
		t.Fatalf("unexpected plain messages")
	}
}

func TestDurationMinutesOrderIndependent(t *testing.T) {
	a := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(90 * time.Second)
	if DurationMinutes(a, b) != 1.5 || DurationMinutes(b, a) != 1.5 {
		t.Fatalf("expected 1.5 minutes both ways")
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := LoadLocation(""); err != nil || loc != time.Local {
		t.Fatalf("expected local zone, got %v %v", loc, err)
	}
	if loc, err := LoadLocation("UTC"); err != nil || loc != time.UTC {
		t.Fatalf("expected UTC, got %v %v", loc, err)
	}
	if _, err := LoadLocation("Mars/Olympus"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}
