package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-proctor/internal/models"
	"github.com/miradorstack/mirador-proctor/internal/report"
)

// SummaryView is the wire shape of GetSummary and EndSession responses.
type SummaryView struct {
	SessionID       string
	Candidate       string
	Summary         report.Summary
	Duration        string
	DurationMinutes float64
	EventCount      int
	Ended           bool
	Channels        []ChannelView
}

// ChannelView reports one debounce channel of a session.
type ChannelView struct {
	Channel string
	State   string
	ArmedAt time.Time
}

// ExportRequest is a decoded ExportReport call.
type ExportRequest struct {
	SessionID string
	Format    string
	// Refresh drops any cached artifact for the session before rendering.
	Refresh bool
}

// EventPage is one ListEvents response. Next is the cursor for the
// following incremental call.
type EventPage struct {
	SessionID string
	Events    []models.CanonicalEvent
	Next      int
}

// Export is a rendered report artifact.
type Export struct {
	FileName    string
	ContentType string
	Format      string
	Content     []byte
}

// FromStartSessionRequest extracts the candidate name. An empty name is allowed.
func FromStartSessionRequest(in *structpb.Struct) (string, error) {
	if in == nil {
		return "", errors.New("request is nil")
	}
	return stringField(in, "candidate"), nil
}

// SessionIDFromRequest extracts the mandatory session_id.
func SessionIDFromRequest(in *structpb.Struct) (string, error) {
	if in == nil {
		return "", errors.New("request is nil")
	}
	id := stringField(in, "session_id")
	if id == "" {
		return "", errors.New("session_id is required")
	}
	return id, nil
}

// FromIngestRequest extracts the session id and the free-form signal.
func FromIngestRequest(in *structpb.Struct) (string, any, error) {
	id, err := SessionIDFromRequest(in)
	if err != nil {
		return "", nil, err
	}
	v, ok := in.GetFields()["signal"]
	if !ok {
		return "", nil, errors.New("signal is required")
	}
	return id, v.AsInterface(), nil
}

// FromListEventsRequest extracts the session id and the optional since
// cursor, which counts events the caller has already seen.
func FromListEventsRequest(in *structpb.Struct) (string, int, error) {
	id, err := SessionIDFromRequest(in)
	if err != nil {
		return "", 0, err
	}
	since := numberField(in, "since")
	if since < 0 || since != math.Trunc(since) {
		return "", 0, fmt.Errorf("since must be a non-negative integer, got %v", since)
	}
	return id, int(since), nil
}

// FromExportRequest extracts the export parameters, defaulting to pdf.
func FromExportRequest(in *structpb.Struct) (ExportRequest, error) {
	id, err := SessionIDFromRequest(in)
	if err != nil {
		return ExportRequest{}, err
	}
	format := stringField(in, "format")
	if format == "" {
		format = "pdf"
	}
	return ExportRequest{SessionID: id, Format: format, Refresh: in.GetFields()["refresh"].GetBoolValue()}, nil
}

// ToSessionStruct converts session metadata into its wire form.
func ToSessionStruct(info models.SessionInfo) (*structpb.Struct, error) {
	m := map[string]any{
		"session_id": info.ID,
		"candidate":  info.Candidate,
		"started_at": info.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if info.Ended() {
		m["ended_at"] = info.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(m)
}

// SessionFromStruct is the inverse of ToSessionStruct.
func SessionFromStruct(s *structpb.Struct) (models.SessionInfo, error) {
	info := models.SessionInfo{ID: stringField(s, "session_id"), Candidate: stringField(s, "candidate")}
	var err error
	if info.StartedAt, err = timeField(s, "started_at"); err != nil {
		return models.SessionInfo{}, err
	}
	if info.EndedAt, err = timeField(s, "ended_at"); err != nil {
		return models.SessionInfo{}, err
	}
	return info, nil
}

// ToEventValue converts a canonical event into a JSON-like map using the
// canonical field names.
func ToEventValue(ev models.CanonicalEvent) map[string]any {
	m := map[string]any{
		"type": string(ev.Kind),
		"time": ev.Timestamp,
	}
	if ev.Label != "" {
		m["label"] = ev.Label
	}
	if ev.Confidence != nil {
		m["confidence"] = *ev.Confidence
	}
	if ev.Message != "" {
		m["message"] = ev.Message
	}
	return m
}

// ToEventsStruct builds the ListEvents response.
func ToEventsStruct(page EventPage) (*structpb.Struct, error) {
	list := make([]any, 0, len(page.Events))
	for _, ev := range page.Events {
		list = append(list, ToEventValue(ev))
	}
	return structpb.NewStruct(map[string]any{"session_id": page.SessionID, "events": list, "next": page.Next})
}

// EventPageFromStruct decodes a ListEvents response with its cursor.
func EventPageFromStruct(s *structpb.Struct) (EventPage, error) {
	events, err := EventsFromStruct(s)
	if err != nil {
		return EventPage{}, err
	}
	return EventPage{SessionID: stringField(s, "session_id"), Events: events, Next: intField(s, "next")}, nil
}

// EventsFromStruct decodes a ListEvents response.
func EventsFromStruct(s *structpb.Struct) ([]models.CanonicalEvent, error) {
	list := s.GetFields()["events"].GetListValue()
	if list == nil {
		return nil, nil
	}
	out := make([]models.CanonicalEvent, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue()
		if fields == nil {
			return nil, fmt.Errorf("event %d is not an object", i)
		}
		ev := models.CanonicalEvent{
			Kind:      models.Kind(stringField(fields, "type")),
			Label:     stringField(fields, "label"),
			Message:   stringField(fields, "message"),
			Timestamp: int64(numberField(fields, "time")),
		}
		if c, ok := fields.GetFields()["confidence"]; ok {
			ev.Confidence = models.Float(c.GetNumberValue())
		}
		out = append(out, ev)
	}
	return out, nil
}

// ToSummaryStruct converts a summary view into its wire form.
func ToSummaryStruct(v SummaryView) (*structpb.Struct, error) {
	channels := make([]any, 0, len(v.Channels))
	for _, ch := range v.Channels {
		m := map[string]any{"channel": ch.Channel, "state": ch.State}
		if !ch.ArmedAt.IsZero() {
			m["armed_at"] = ch.ArmedAt.UTC().Format(time.RFC3339Nano)
		}
		channels = append(channels, m)
	}
	return structpb.NewStruct(map[string]any{
		"session_id":       v.SessionID,
		"candidate":        v.Candidate,
		"focus_lost":       v.Summary.FocusLost,
		"suspicious":       v.Summary.Suspicious,
		"integrity_score":  v.Summary.IntegrityScore,
		"duration":         v.Duration,
		"duration_minutes": v.DurationMinutes,
		"event_count":      v.EventCount,
		"ended":            v.Ended,
		"channels":         channels,
	})
}

// SummaryFromStruct is the inverse of ToSummaryStruct.
func SummaryFromStruct(s *structpb.Struct) SummaryView {
	var channels []ChannelView
	for _, v := range s.GetFields()["channels"].GetListValue().GetValues() {
		fields := v.GetStructValue()
		armed, _ := timeField(fields, "armed_at")
		channels = append(channels, ChannelView{
			Channel: stringField(fields, "channel"),
			State:   stringField(fields, "state"),
			ArmedAt: armed,
		})
	}
	return SummaryView{
		SessionID: stringField(s, "session_id"),
		Candidate: stringField(s, "candidate"),
		Summary: report.Summary{
			FocusLost:      intField(s, "focus_lost"),
			Suspicious:     intField(s, "suspicious"),
			IntegrityScore: intField(s, "integrity_score"),
		},
		Duration:        stringField(s, "duration"),
		DurationMinutes: numberField(s, "duration_minutes"),
		EventCount:      intField(s, "event_count"),
		Ended:           s.GetFields()["ended"].GetBoolValue(),
		Channels:        channels,
	}
}

// ToExportStruct converts a rendered artifact into its wire form. Content
// travels base64 encoded.
func ToExportStruct(e Export) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"file_name":    e.FileName,
		"content_type": e.ContentType,
		"format":       e.Format,
		"content":      base64.StdEncoding.EncodeToString(e.Content),
	})
}

// ExportFromStruct is the inverse of ToExportStruct.
func ExportFromStruct(s *structpb.Struct) (Export, error) {
	content, err := base64.StdEncoding.DecodeString(stringField(s, "content"))
	if err != nil {
		return Export{}, fmt.Errorf("decode report content: %w", err)
	}
	return Export{
		FileName:    stringField(s, "file_name"),
		ContentType: stringField(s, "content_type"),
		Format:      stringField(s, "format"),
		Content:     content,
	}, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func intField(s *structpb.Struct, key string) int {
	return int(math.Round(numberField(s, key)))
}

func timeField(s *structpb.Struct, key string) (time.Time, error) {
	v := stringField(s, key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return t, nil
}
