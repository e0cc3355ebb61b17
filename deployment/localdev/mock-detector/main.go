package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/mirador-proctor/internal/api"
	"github.com/miradorstack/mirador-proctor/internal/config"
	"github.com/miradorstack/mirador-proctor/internal/extractors"
	"github.com/miradorstack/mirador-proctor/internal/signals"
	"github.com/miradorstack/mirador-proctor/internal/utils"
)

// phase is one stretch of scripted candidate behaviour.
type phase struct {
	name     string
	duration time.Duration
	faces    func() extractors.FaceFrame
	objects  extractors.ObjectFrame
}

func centered() extractors.FaceFrame {
	return frame(box(0.4, 0.35))
}

func frame(dets ...extractors.FaceDetection) extractors.FaceFrame {
	return extractors.FaceFrame{Detections: dets}
}

func box(xmin, ymin float64) extractors.FaceDetection {
	return extractors.FaceDetection{LocationData: &extractors.LocationData{
		RelativeBoundingBox: &extractors.BoundingBox{XMin: xmin, YMin: ymin, Width: 0.2, Height: 0.3},
	}}
}

var script = []phase{
	{name: "focused", duration: 4 * time.Second, faces: centered},
	{name: "looking away", duration: 6 * time.Second, faces: func() extractors.FaceFrame { return frame(box(0.75, 0.35)) }},
	{name: "absent", duration: 11 * time.Second, faces: func() extractors.FaceFrame { return frame() }},
	{name: "phone", duration: 3 * time.Second, faces: centered, objects: extractors.ObjectFrame{{Class: "Cell Phone", Score: 0.88}, {Class: "cup", Score: 0.95}}},
	{name: "second person", duration: time.Second, faces: func() extractors.FaceFrame { return frame(box(0.4, 0.35), box(0.05, 0.3)) }},
	{name: "focused", duration: 2 * time.Second, faces: centered},
}

// scriptedDetector replays the object frames of the current phase.
type scriptedDetector struct {
	mu      sync.Mutex
	current extractors.ObjectFrame
}

func (d *scriptedDetector) set(f extractors.ObjectFrame) {
	d.mu.Lock()
	d.current = f
	d.mu.Unlock()
}

func (d *scriptedDetector) Detect(context.Context) (extractors.ObjectFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func main() {
	addr := flag.String("addr", "localhost:50051", "proctor engine gRPC address")
	candidate := flag.String("candidate", "Demo Candidate", "candidate name")
	fps := flag.Int("fps", 10, "presence frames per second")
	outDir := flag.String("out", ".", "directory for exported reports")
	configPath := flag.String("config", "", "path to engine configuration (logging, object poll interval)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.Server.MaxMessageBytes > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.Server.MaxMessageBytes)))
	}
	conn, err := grpc.NewClient(*addr, dialOpts...)
	if err != nil {
		logger.Error("dial engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()
	client := api.NewClient(conn)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	info, err := client.StartSession(ctx, *candidate)
	if err != nil {
		logger.Error("start session", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("session started", slog.String("session", info.ID))

	send := func(sig map[string]any) {
		if _, err := client.Ingest(ctx, info.ID, sig); err != nil && ctx.Err() == nil {
			logger.Warn("ingest failed", slog.Any("error", err))
		}
	}

	// tail logs the events appended since the previous phase and the
	// current channel states.
	cursor := 0
	tail := func() {
		events, next, err := client.ListEventsSince(ctx, info.ID, cursor)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("list events failed", slog.Any("error", err))
			}
			return
		}
		cursor = next
		for _, ev := range events {
			logger.Info("event", slog.String("type", string(ev.Kind)), slog.String("label", ev.Label), slog.String("message", ev.Message))
		}
		summary, err := client.GetSummary(ctx, info.ID)
		if err != nil {
			return
		}
		for _, ch := range summary.Channels {
			logger.Debug("channel", slog.String("channel", ch.Channel), slog.String("state", ch.State))
		}
		logger.Info("running score", slog.Int("integrity_score", summary.Summary.IntegrityScore))
	}

	detector := &scriptedDetector{}
	poller, err := extractors.NewPoller(detector, cfg.Objects.PollInterval, func(o signals.Objects) { send(o.Value()) }, logger)
	if err != nil {
		logger.Error("create poller", slog.Any("error", err))
		os.Exit(1)
	}
	pollCtx, cancelPoll := context.WithCancel(ctx)
	go poller.Run(pollCtx)

	faces := extractors.NewFaceExtractor()
	ticker := time.NewTicker(time.Second / time.Duration(max(*fps, 1)))
	defer ticker.Stop()

run:
	for _, ph := range script {
		logger.Info("phase", slog.String("name", ph.name), slog.Duration("duration", ph.duration))
		detector.set(ph.objects)
		deadline := time.After(ph.duration)
		for {
			select {
			case <-ctx.Done():
				break run
			case <-deadline:
				tail()
				continue run
			case <-ticker.C:
				send(faces.Extract(ph.faces()).Value())
			}
		}
	}
	cancelPoll()

	// Reports are fetched even after an interrupt so partial runs still
	// leave artifacts behind.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := client.EndSession(finishCtx, info.ID)
	if err != nil {
		logger.Error("end session", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("session ended",
		slog.Int("focus_lost", summary.Summary.FocusLost),
		slog.Int("suspicious", summary.Summary.Suspicious),
		slog.Int("integrity_score", summary.Summary.IntegrityScore),
		slog.String("duration", summary.Duration),
	)

	for _, format := range []string{"pdf", "csv"} {
		export, err := client.ExportReport(finishCtx, info.ID, format)
		if err != nil {
			logger.Error("export report", slog.String("format", format), slog.Any("error", err))
			continue
		}
		path := filepath.Join(*outDir, export.FileName)
		if err := os.WriteFile(path, export.Content, 0o644); err != nil {
			logger.Error("write report", slog.String("path", path), slog.Any("error", err))
			continue
		}
		logger.Info("report written", slog.String("path", path))
	}
}
