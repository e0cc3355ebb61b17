package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-proctor/internal/metrics"
)

const (
	defaultArchiveBuffer = 1024
	archiveDrainTimeout  = 5 * time.Second
)

// archiveOp is one pending write against the Archiver.
type archiveOp struct {
	name string
	seq  int
	run  func(ctx context.Context) error
}

// archiveWriter moves archive calls off the session lock. A single
// goroutine applies operations in submission order, so a session's
// create, events and end reach the store in sequence.
type archiveWriter struct {
	mu     sync.RWMutex
	ch     chan archiveOp
	done   chan struct{}
	closed bool
	logger *slog.Logger
}

func newArchiveWriter(size int, logger *slog.Logger) *archiveWriter {
	if size <= 0 {
		size = defaultArchiveBuffer
	}
	w := &archiveWriter{
		ch:     make(chan archiveOp, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.drain()
	return w
}

// TryWrite queues op without blocking. It reports false when the buffer is
// full or the writer is closed; the op is then dropped.
func (w *archiveWriter) TryWrite(op archiveOp) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.ch <- op:
		return true
	default:
		metrics.ArchiveDropped()
		w.logger.Warn("archive buffer full, dropping write", slog.String("op", op.name), slog.Int("seq", op.seq))
		return false
	}
}

// Write queues op, waiting for buffer space. Callers must not hold the
// session lock.
func (w *archiveWriter) Write(op archiveOp) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.ch <- op
	return true
}

// Close stops accepting writes and waits for queued ones to finish.
func (w *archiveWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-time.After(archiveDrainTimeout):
		w.logger.Warn("archive drain timed out")
	}
}

func (w *archiveWriter) drain() {
	defer close(w.done)
	for op := range w.ch {
		if err := op.run(context.Background()); err != nil {
			w.logger.Warn("archive "+op.name+" failed", slog.Int("seq", op.seq), slog.Any("error", err))
		}
	}
}
