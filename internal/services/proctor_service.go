package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-proctor/internal/api"
	"github.com/miradorstack/mirador-proctor/internal/cache"
	"github.com/miradorstack/mirador-proctor/internal/engine"
	"github.com/miradorstack/mirador-proctor/internal/metrics"
	"github.com/miradorstack/mirador-proctor/internal/report"
	"github.com/miradorstack/mirador-proctor/internal/session"
	"github.com/miradorstack/mirador-proctor/internal/utils"
)

// ProctorService implements the gRPC ProctorEngine service.
type ProctorService struct {
	api.UnimplementedProctorEngineServer

	logger    *slog.Logger
	sessions  *session.Manager
	cache     cache.Provider
	cacheTTL  time.Duration
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewProctorService constructs the service facade. A nil provider disables
// report caching.
func NewProctorService(logger *slog.Logger, sessions *session.Manager, provider cache.Provider, cacheTTL time.Duration) *ProctorService {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &ProctorService{
		logger:    logger,
		sessions:  sessions,
		cache:     provider,
		cacheTTL:  cacheTTL,
		latencies: utils.NewLatencyTracker(256),
		now:       time.Now,
	}
}

// StartSession opens a new session.
func (s *ProctorService) StartSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	candidate, err := api.FromStartSessionRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.sessions.Create(candidate)
	if err != nil {
		s.logger.Error("start session failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to start session")
	}
	return encode(api.ToSessionStruct(sess.Info()))
}

// Ingest feeds one detector signal into a session.
func (s *ProctorService) Ingest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, signal, err := api.FromIngestRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	n, err := s.sessions.Ingest(id, signal)
	if err != nil {
		return nil, sessionStatus(err)
	}
	return encode(structpb.NewStruct(map[string]any{"appended": n}))
}

// ListEvents returns the session's event log, or only the events after a
// since cursor from an earlier call.
func (s *ProctorService) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, since, err := api.FromListEventsRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, sessionStatus(err)
	}
	events, next := sess.EventsSince(since)
	return encode(api.ToEventsStruct(api.EventPage{SessionID: id, Events: events, Next: next}))
}

// GetSummary returns the headline metrics of a session.
func (s *ProctorService) GetSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	return encode(api.ToSummaryStruct(s.summarize(sess)))
}

// ExportReport renders a session report as PDF or CSV.
func (s *ProctorService) ExportReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := api.FromExportRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id := in.SessionID
	renderer, err := report.ByFormat(in.Format)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, sessionStatus(err)
	}
	if in.Refresh {
		if err := s.cache.Del(ctx, cachePrefix(id)+"*"); err != nil {
			s.logger.Warn("report cache purge failed", slog.String("session", id), slog.Any("error", err))
		}
	}

	export, err := s.export(ctx, sess, renderer)
	if err != nil {
		s.logger.Error("export report failed", slog.String("session", id), slog.Any("error", err))
		return nil, status.Error(codes.Internal, utils.Message(err))
	}
	return encode(api.ToExportStruct(export))
}

// EndSession closes a session and returns its final summary.
func (s *ProctorService) EndSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := api.SessionIDFromRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.sessions.Close(id)
	if err != nil {
		return nil, sessionStatus(err)
	}
	return encode(api.ToSummaryStruct(s.summarize(sess)))
}

// RenderLatencyP95 returns the current p95 report render latency.
func (s *ProctorService) RenderLatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func (s *ProctorService) lookup(req *structpb.Struct) (*session.Session, error) {
	id, err := api.SessionIDFromRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, sessionStatus(err)
	}
	return sess, nil
}

func (s *ProctorService) summarize(sess *session.Session) api.SummaryView {
	doc := sess.Report(s.now())
	return api.SummaryView{
		SessionID:       sess.ID(),
		Candidate:       doc.Candidate,
		Summary:         doc.Summary,
		Duration:        doc.Duration,
		DurationMinutes: doc.DurationMinutes,
		EventCount:      len(doc.Rows),
		Ended:           sess.Closed(),
		Channels:        channelViews(sess.Snapshot()),
	}
}

func channelViews(states []engine.ChannelState) []api.ChannelView {
	out := make([]api.ChannelView, 0, len(states))
	for _, st := range states {
		view := api.ChannelView{Channel: string(st.ID), State: st.State.String()}
		if st.State == engine.StateArmed {
			view.ArmedAt = st.ArmedAt
		}
		out = append(out, view)
	}
	return out
}

// export renders the report. Ended sessions are immutable, so their
// artifacts are served from cache when possible.
func (s *ProctorService) export(ctx context.Context, sess *session.Session, renderer report.Renderer) (api.Export, error) {
	doc := sess.Report(s.now())
	out := api.Export{
		FileName:    report.FileName(doc.Candidate, renderer.Format()),
		ContentType: renderer.ContentType(),
		Format:      renderer.Format(),
	}

	closed := sess.Closed()
	key := cacheKey(sess.ID(), len(doc.Rows), renderer.Format())
	if closed {
		if data, err := s.cache.Get(ctx, key); err == nil {
			out.Content = data
			return out, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	var buf bytes.Buffer
	start := time.Now()
	if err := renderer.Render(&buf, doc); err != nil {
		return api.Export{}, utils.NewAppError("export report", fmt.Sprintf("failed to render %s report", renderer.Format()), err)
	}
	elapsed := time.Since(start)
	metrics.ObserveReportRender(renderer.Format(), elapsed)
	s.latencies.Observe(elapsed)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("report render latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	out.Content = buf.Bytes()
	if closed {
		if err := s.cache.Set(ctx, key, out.Content, s.cacheTTL); err != nil {
			s.logger.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	s.logger.Info("report exported",
		slog.String("session", sess.ID()),
		slog.String("format", renderer.Format()),
		slog.Int("bytes", len(out.Content)),
	)
	return out, nil
}

func cachePrefix(sessionID string) string {
	return "report:" + sessionID + ":"
}

func cacheKey(sessionID string, events int, ext string) string {
	return fmt.Sprintf("%s%d:%s", cachePrefix(sessionID), events, ext)
}

func sessionStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrClosed):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func encode(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
