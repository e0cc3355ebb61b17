// Package session binds one candidate's detector feed to its debouncer,
// event log and report.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-proctor/internal/clock"
	"github.com/miradorstack/mirador-proctor/internal/engine"
	"github.com/miradorstack/mirador-proctor/internal/metrics"
	"github.com/miradorstack/mirador-proctor/internal/models"
	"github.com/miradorstack/mirador-proctor/internal/report"
	"github.com/miradorstack/mirador-proctor/internal/signals"
	"github.com/miradorstack/mirador-proctor/internal/store"
)

// Archiver persists session lifecycle and events. Failures are logged and
// never interrupt the live session.
type Archiver interface {
	CreateSession(ctx context.Context, info models.SessionInfo) error
	AppendEvent(ctx context.Context, sessionID string, seq int, event models.CanonicalEvent) error
	EndSession(ctx context.Context, id string, endedAt time.Time) error
}

// Options configure a Session.
type Options struct {
	Policy engine.Policy
	Filter *engine.ObjectFilter
	Report report.Options
	// NewScheduler builds the session's scheduler around its lock. Nil uses
	// wall-clock timers.
	NewScheduler func(lock sync.Locker) clock.Scheduler
	Archive      Archiver
	// ArchiveBuffer bounds the archive writes queued per session. Zero
	// uses 1024.
	ArchiveBuffer int
	Logger        *slog.Logger
}

// Session is one live recording. Ingest, timer fires and Close are
// serialised by a single lock; Events and Info may be read concurrently.
type Session struct {
	mu        sync.Mutex
	info      models.SessionInfo
	log       *store.Log
	debouncer *engine.Debouncer
	scheduler clock.Scheduler
	reportOpt report.Options
	archive   Archiver
	writer    *archiveWriter
	logger    *slog.Logger
	closed    bool
}

// New starts a session for candidate.
func New(id, candidate string, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == (engine.Policy{}) {
		opts.Policy = engine.DefaultPolicy()
	}
	if err := opts.Report.Scoring.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		archive:   opts.Archive,
		reportOpt: opts.Report,
		logger:    logger.With(slog.String("session", id)),
	}
	if opts.NewScheduler != nil {
		s.scheduler = opts.NewScheduler(&s.mu)
	} else {
		s.scheduler = clock.NewRealScheduler(&s.mu)
	}
	s.info = models.SessionInfo{ID: id, Candidate: candidate, StartedAt: s.scheduler.Now()}
	s.log = store.NewLog(s.observe)

	d, err := engine.NewDebouncer(engine.Options{
		Policy:    opts.Policy,
		Filter:    opts.Filter,
		Scheduler: s.scheduler,
		Sink:      s.append,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.debouncer = d

	if s.archive != nil {
		s.writer = newArchiveWriter(opts.ArchiveBuffer, s.logger)
		info := s.info
		s.writer.Write(archiveOp{name: "create", run: func(ctx context.Context) error {
			return s.archive.CreateSession(ctx, info)
		}})
	}
	metrics.SessionStarted()
	s.logger.Info("session started", slog.String("candidate", candidate))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.info.ID }

// Info returns the session metadata.
func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Ingest routes one detector signal and returns the number of events it
// appended. Signals arriving after Close are ignored.
func (s *Session) Ingest(v any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	before := s.log.Len()
	switch sig := signals.Translate(v).(type) {
	case signals.Presence:
		s.debouncer.ObservePresence(sig)
	case signals.Objects:
		s.debouncer.ObserveObjects(sig)
	case signals.Legacy:
		s.append(sig.Value)
	}
	return s.log.Len() - before
}

// Events returns a copy of the event log.
func (s *Session) Events() []models.CanonicalEvent {
	return s.log.All()
}

// EventsSince returns the events after the first seq and the cursor to
// pass on the next call.
func (s *Session) EventsSince(seq int) ([]models.CanonicalEvent, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.log.Since(seq)
	return events, s.log.Len()
}

// Len returns the number of logged events.
func (s *Session) Len() int {
	return s.log.Len()
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot exposes the debounce channel states.
func (s *Session) Snapshot() []engine.ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debouncer.Snapshot()
}

// Summary computes the headline metrics over the current log.
func (s *Session) Summary() report.Summary {
	return report.Summarize(s.log.All(), s.reportOpt.Scoring)
}

// Report builds the export document as of now. A closed session reports
// its duration up to the close time.
func (s *Session) Report(now time.Time) report.Document {
	info := s.Info()
	if info.Ended() {
		now = info.EndedAt
	}
	return report.Build(info, s.log.All(), now, s.reportOpt)
}

// Close cancels pending timers and stops accepting signals, then waits for
// queued archive writes to land. It reports whether this call closed the
// session.
func (s *Session) Close(now time.Time) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.debouncer.CancelAll()
	s.info.EndedAt = now
	id := s.info.ID
	s.mu.Unlock()

	if s.writer != nil {
		s.writer.Write(archiveOp{name: "end", run: func(ctx context.Context) error {
			return s.archive.EndSession(ctx, id, now)
		}})
		s.writer.Close()
	}
	metrics.SessionEnded()
	s.logger.Info("session ended", slog.Int("events", s.log.Len()))
	return true
}

// append normalizes raw and stores it. Callers hold s.mu.
func (s *Session) append(raw any) {
	s.log.Append(engine.Normalize(raw, s.scheduler.Now()))
}

// observe runs under s.mu for every appended event; archive writes are
// queued, never performed inline.
func (s *Session) observe(seq int, event models.CanonicalEvent) {
	metrics.ObserveEvent(string(event.Kind))
	if s.writer == nil {
		return
	}
	id := s.info.ID
	s.writer.TryWrite(archiveOp{name: "append", seq: seq, run: func(ctx context.Context) error {
		return s.archive.AppendEvent(ctx, id, seq, event)
	}})
}
