package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-proctor/internal/api"
	"github.com/miradorstack/mirador-proctor/internal/cache"
	"github.com/miradorstack/mirador-proctor/internal/clock"
	"github.com/miradorstack/mirador-proctor/internal/report"
	"github.com/miradorstack/mirador-proctor/internal/session"
)

var t0 = time.Date(2025, 9, 14, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, provider cache.Provider) (*ProctorService, *clock.Manual) {
	t.Helper()
	m := clock.NewManual(t0)
	mgr := session.NewManager(session.Options{
		Report:       report.Options{Scoring: report.DefaultScoring(), TimeLayout: "15:04:05", Location: time.UTC},
		NewScheduler: func(sync.Locker) clock.Scheduler { return m },
	})
	svc := NewProctorService(nil, mgr, provider, time.Minute)
	svc.now = m.Now
	return svc, m
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func startSession(t *testing.T, svc *ProctorService) string {
	t.Helper()
	out, err := svc.StartSession(context.Background(), mustStruct(t, map[string]any{"candidate": "Ada"}))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := out.GetFields()["session_id"].GetStringValue()
	if id == "" {
		t.Fatalf("missing session id in %v", out)
	}
	return id
}

func TestIngestAndSummary(t *testing.T) {
	svc, m := newTestService(t, nil)
	ctx := context.Background()
	id := startSession(t, svc)

	signals := []any{
		map[string]any{"faceCount": 0},
		map[string]any{"predictions": []any{map[string]any{"class": "book", "score": 0.8}}},
		"Tab switched",
	}
	total := 0
	for _, sig := range signals {
		out, err := svc.Ingest(ctx, mustStruct(t, map[string]any{"session_id": id, "signal": sig}))
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		total += int(out.GetFields()["appended"].GetNumberValue())
	}
	if total != 2 {
		t.Fatalf("expected two immediate events, got %d", total)
	}
	m.Advance(10 * time.Second)

	out, err := svc.GetSummary(ctx, mustStruct(t, map[string]any{"session_id": id}))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	view := api.SummaryFromStruct(out)
	if view.Summary.FocusLost != 2 || view.Summary.Suspicious != 1 || view.Summary.IntegrityScore != 80 {
		t.Fatalf("unexpected summary %+v", view)
	}
	if view.EventCount != 3 || view.Duration != "0.2 min" {
		t.Fatalf("unexpected view %+v", view)
	}

	listed, err := svc.ListEvents(ctx, mustStruct(t, map[string]any{"session_id": id}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	events, err := api.EventsFromStruct(listed)
	if err != nil || len(events) != 3 {
		t.Fatalf("unexpected events %v %v", events, err)
	}
	if events[0].Label != "book" || *events[0].Confidence != 0.8 {
		t.Fatalf("unexpected object event %+v", events[0])
	}
}

func TestErrorCodes(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, mustStruct(t, map[string]any{"signal": "x"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for missing id, got %v", err)
	}
	_, err = svc.GetSummary(ctx, mustStruct(t, map[string]any{"session_id": "missing"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	id := startSession(t, svc)
	_, err = svc.Ingest(ctx, mustStruct(t, map[string]any{"session_id": id}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for missing signal, got %v", err)
	}
	_, err = svc.ExportReport(ctx, mustStruct(t, map[string]any{"session_id": id, "format": "docx"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for format, got %v", err)
	}

	if _, err := svc.EndSession(ctx, mustStruct(t, map[string]any{"session_id": id})); err != nil {
		t.Fatalf("end: %v", err)
	}
	_, err = svc.Ingest(ctx, mustStruct(t, map[string]any{"session_id": id, "signal": "late"}))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition after end, got %v", err)
	}
}

func TestExportReportCSV(t *testing.T) {
	svc, m := newTestService(t, nil)
	ctx := context.Background()
	id := startSession(t, svc)
	_, _ = svc.Ingest(ctx, mustStruct(t, map[string]any{"session_id": id, "signal": "Tab switched"}))
	m.Advance(time.Minute)

	out, err := svc.ExportReport(ctx, mustStruct(t, map[string]any{"session_id": id, "format": "csv"}))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	export, err := api.ExportFromStruct(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if export.FileName != "Ada_Proctoring_Report.csv" || export.Format != "csv" {
		t.Fatalf("unexpected export %+v", export)
	}
	if !bytes.Contains(export.Content, []byte("Interview Duration,1.0 min")) {
		t.Fatalf("unexpected csv content:\n%s", export.Content)
	}
	if !bytes.Contains(export.Content, []byte("10:00:00,focus,Tab switched,-")) {
		t.Fatalf("missing event row:\n%s", export.Content)
	}
}

func TestExportReportCachesEndedSessions(t *testing.T) {
	provider := cache.NewMemoryProvider(nil)
	svc, m := newTestService(t, provider)
	ctx := context.Background()
	id := startSession(t, svc)

	req := mustStruct(t, map[string]any{"session_id": id, "format": "pdf"})
	if _, err := svc.ExportReport(ctx, req); err != nil {
		t.Fatalf("export live: %v", err)
	}
	if provider.Len() != 0 {
		t.Fatalf("live session reports must not be cached")
	}

	m.Advance(time.Minute)
	if _, err := svc.EndSession(ctx, mustStruct(t, map[string]any{"session_id": id})); err != nil {
		t.Fatalf("end: %v", err)
	}
	first, err := svc.ExportReport(ctx, req)
	if err != nil {
		t.Fatalf("export ended: %v", err)
	}
	if provider.Len() != 1 {
		t.Fatalf("expected cached artifact, got %d entries", provider.Len())
	}

	cached, _ := provider.Get(ctx, cacheKey(id, 0, "pdf"))
	content := first.GetFields()["content"].GetStringValue()
	if base64.StdEncoding.EncodeToString(cached) != content {
		t.Fatalf("cached bytes differ from served content")
	}
	second, _ := svc.ExportReport(ctx, req)
	if second.GetFields()["content"].GetStringValue() != content {
		t.Fatalf("second export should be served from cache")
	}
}

func TestListEventsSinceCursor(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	id := startSession(t, svc)
	for _, msg := range []string{"one", "two", "three"} {
		if _, err := svc.Ingest(ctx, mustStruct(t, map[string]any{"session_id": id, "signal": msg})); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	out, err := svc.ListEvents(ctx, mustStruct(t, map[string]any{"session_id": id, "since": 2}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	page, err := api.EventPageFromStruct(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].Message != "three" || page.Next != 3 {
		t.Fatalf("unexpected page %+v", page)
	}

	out, _ = svc.ListEvents(ctx, mustStruct(t, map[string]any{"session_id": id, "since": page.Next}))
	if page, _ = api.EventPageFromStruct(out); len(page.Events) != 0 || page.Next != 3 {
		t.Fatalf("expected an empty page at the cursor, got %+v", page)
	}

	_, err = svc.ListEvents(ctx, mustStruct(t, map[string]any{"session_id": id, "since": -1}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for negative cursor, got %v", err)
	}
}

func TestGetSummaryReportsChannels(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	id := startSession(t, svc)
	if _, err := svc.Ingest(ctx, mustStruct(t, map[string]any{"session_id": id, "signal": map[string]any{"faceCount": 0}})); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	out, err := svc.GetSummary(ctx, mustStruct(t, map[string]any{"session_id": id}))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	view := api.SummaryFromStruct(out)
	if len(view.Channels) != 3 {
		t.Fatalf("expected three channels, got %+v", view.Channels)
	}
	noFace := view.Channels[0]
	if noFace.Channel != "no-face" || noFace.State != "armed" || !noFace.ArmedAt.Equal(t0) {
		t.Fatalf("unexpected no-face channel %+v", noFace)
	}
	if view.Channels[1].State != "idle" || !view.Channels[1].ArmedAt.IsZero() {
		t.Fatalf("unexpected look-away channel %+v", view.Channels[1])
	}
}

func TestExportRefreshPurgesCachedArtifacts(t *testing.T) {
	provider := cache.NewMemoryProvider(nil)
	svc, _ := newTestService(t, provider)
	ctx := context.Background()
	id := startSession(t, svc)
	if _, err := svc.EndSession(ctx, mustStruct(t, map[string]any{"session_id": id})); err != nil {
		t.Fatalf("end: %v", err)
	}

	stale := []byte("stale")
	_ = provider.Set(ctx, cacheKey(id, 0, "csv"), stale, time.Minute)
	_ = provider.Set(ctx, cacheKey(id, 0, "pdf"), stale, time.Minute)

	out, err := svc.ExportReport(ctx, mustStruct(t, map[string]any{"session_id": id, "format": "csv"}))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export, _ := api.ExportFromStruct(out); !bytes.Equal(export.Content, stale) {
		t.Fatalf("expected cached artifact without refresh")
	}

	out, err = svc.ExportReport(ctx, mustStruct(t, map[string]any{"session_id": id, "format": "csv", "refresh": true}))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	export, _ := api.ExportFromStruct(out)
	if bytes.Equal(export.Content, stale) || !bytes.Contains(export.Content, []byte("Candidate,Ada")) {
		t.Fatalf("refresh served stale content %q", export.Content)
	}
	if provider.Len() != 1 {
		t.Fatalf("expected only the fresh csv to remain cached, got %d entries", provider.Len())
	}
}
