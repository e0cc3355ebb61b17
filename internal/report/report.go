// Package report derives summary metrics and tabular rows from a session's
// event sequence and renders them as downloadable artifacts.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/miradorstack/mirador-proctor/internal/models"
	"github.com/miradorstack/mirador-proctor/internal/utils"
)

// Title heads every rendered report.
const Title = "Proctoring Report"

// Placeholder fills cells with no value.
const Placeholder = "-"

// Scoring holds the integrity score formula.
type Scoring struct {
	Base          int `yaml:"base"`
	FocusPenalty  int `yaml:"focusPenalty"`
	ObjectPenalty int `yaml:"objectPenalty"`
}

// DefaultScoring returns 100 minus 5 per focus event and 10 per object event.
func DefaultScoring() Scoring {
	return Scoring{Base: 100, FocusPenalty: 5, ObjectPenalty: 10}
}

// Validate rejects formulas that could raise the score or start it outside
// (0, 100].
func (s Scoring) Validate() error {
	if s.Base <= 0 || s.Base > 100 {
		return fmt.Errorf("scoring base %d outside (0,100]", s.Base)
	}
	if s.FocusPenalty < 0 || s.ObjectPenalty < 0 {
		return fmt.Errorf("scoring penalties must not be negative (focus %d, object %d)", s.FocusPenalty, s.ObjectPenalty)
	}
	return nil
}

// Options control how events are projected into rows.
type Options struct {
	Scoring    Scoring
	TimeLayout string
	Location   *time.Location
}

// DefaultOptions returns the stock scoring with local wall-clock times.
func DefaultOptions() Options {
	return Options{Scoring: DefaultScoring(), TimeLayout: "15:04:05", Location: time.Local}
}

// Summary holds the three headline metrics of a report.
type Summary struct {
	FocusLost      int `json:"focusLost"`
	Suspicious     int `json:"suspicious"`
	IntegrityScore int `json:"integrityScore"`
}

// Row is one projected event.
type Row struct {
	Time       string `json:"time"`
	Kind       string `json:"type"`
	Text       string `json:"event"`
	Confidence string `json:"confidence"`
}

// Document is the single source both export formats render from.
type Document struct {
	Title           string
	Candidate       string
	DurationMinutes float64
	Duration        string
	Summary         Summary
	Rows            []Row
	GeneratedAt     time.Time
}

// Summarize counts focus and object events and derives the integrity score,
// clamped at zero.
func Summarize(events []models.CanonicalEvent, scoring Scoring) Summary {
	var s Summary
	for _, ev := range events {
		switch ev.Kind {
		case models.KindFocus:
			s.FocusLost++
		case models.KindObjectDetected:
			s.Suspicious++
		}
	}
	score := scoring.Base - scoring.FocusPenalty*s.FocusLost - scoring.ObjectPenalty*s.Suspicious
	if score < 0 {
		score = 0
	}
	s.IntegrityScore = score
	return s
}

// DurationMinutes returns the minutes between start and now rounded to one
// decimal place. A zero start yields zero.
func DurationMinutes(start, now time.Time) float64 {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return math.Round(utils.DurationMinutes(start, now)*10) / 10
}

// FormatDuration renders minutes the way reports display them.
func FormatDuration(minutes float64) string {
	return fmt.Sprintf("%.1f min", minutes)
}

// Project maps each event onto a display row without mutating the input.
func Project(events []models.CanonicalEvent, opts Options) []Row {
	layout := opts.TimeLayout
	if layout == "" {
		layout = DefaultOptions().TimeLayout
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		rows = append(rows, Row{
			Time:       ev.Time().In(loc).Format(layout),
			Kind:       string(ev.Kind),
			Text:       displayText(ev),
			Confidence: displayConfidence(ev),
		})
	}
	return rows
}

// Build assembles the report document for a session at time now.
func Build(info models.SessionInfo, events []models.CanonicalEvent, now time.Time, opts Options) Document {
	minutes := DurationMinutes(info.StartedAt, now)
	return Document{
		Title:           Title,
		Candidate:       info.Candidate,
		DurationMinutes: minutes,
		Duration:        FormatDuration(minutes),
		Summary:         Summarize(events, opts.Scoring),
		Rows:            Project(events, opts),
		GeneratedAt:     now,
	}
}

func displayText(ev models.CanonicalEvent) string {
	switch ev.Kind {
	case models.KindObjectDetected:
		label := ev.Label
		if label == "" {
			label = "unknown"
		}
		return "Object: " + label
	case models.KindFocus:
		if ev.Message == "" {
			return "focus event"
		}
		return ev.Message
	default:
		if ev.Message != "" {
			return ev.Message
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return Placeholder
		}
		return string(data)
	}
}

func displayConfidence(ev models.CanonicalEvent) string {
	if ev.Confidence == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.1f%%", *ev.Confidence*100)
}
