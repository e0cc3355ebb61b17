package extractors

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-proctor/internal/signals"
)

// DefaultPollInterval is how often object detection runs.
const DefaultPollInterval = time.Second

// ObjectDetector runs one object detection pass over the current frame.
type ObjectDetector interface {
	Detect(ctx context.Context) (ObjectFrame, error)
}

// DetectorFunc adapts a function to ObjectDetector.
type DetectorFunc func(ctx context.Context) (ObjectFrame, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context) (ObjectFrame, error) { return f(ctx) }

// Poller drives an ObjectDetector at a fixed interval and forwards each pass
// as an Objects signal.
type Poller struct {
	detector  ObjectDetector
	interval  time.Duration
	extractor *ObjectExtractor
	emit      func(signals.Objects)
	logger    *slog.Logger
}

// NewPoller validates its inputs and returns a poller. A non-positive
// interval uses DefaultPollInterval.
func NewPoller(detector ObjectDetector, interval time.Duration, emit func(signals.Objects), logger *slog.Logger) (*Poller, error) {
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if emit == nil {
		return nil, errors.New("emit callback is required")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		detector:  detector,
		interval:  interval,
		extractor: NewObjectExtractor(),
		emit:      emit,
		logger:    logger,
	}, nil
}

// Run polls until ctx is cancelled. Detector errors are logged and the next
// tick tries again.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	frame, err := p.detector.Detect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("object detection failed", slog.Any("error", err))
		}
		return
	}
	if len(frame) == 0 {
		return
	}
	p.emit(p.extractor.Extract(frame))
}
