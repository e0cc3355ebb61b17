package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/miradorstack/mirador-proctor/internal/archive"
	"github.com/miradorstack/mirador-proctor/internal/config"
	"github.com/miradorstack/mirador-proctor/internal/models"
	"github.com/miradorstack/mirador-proctor/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to engine configuration (scoring, timezone)")
	dbPath := flag.String("db", "", "path to the session archive")
	last := flag.Int("last", 20, "list N most recent sessions")
	sessionID := flag.String("session", "", "session to export")
	format := flag.String("format", "pdf", "export format: pdf, csv or json")
	outDir := flag.String("out", ".", "directory for exported reports")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath == "" {
		*dbPath = cfg.Archive.Path
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: proctor-report --db path/to/archive.db [--last N] [--session id --format pdf|csv|json --out dir]")
		os.Exit(2)
	}

	store, err := archive.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open archive: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if *sessionID == "" {
		err = runList(ctx, store, *last)
	} else {
		var opts report.Options
		if opts, err = cfg.ReportOptions(); err == nil {
			err = runExport(ctx, store, *sessionID, *format, *outDir, opts)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runList(ctx context.Context, store *archive.Store, last int) error {
	sessions, err := store.ListSessions(ctx, last)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-20s  %s\n", "Session", "Candidate", "Started", "Ended")
	for _, s := range sessions {
		ended := "-"
		if s.Ended() {
			ended = s.EndedAt.Local().Format(time.DateTime)
		}
		fmt.Printf("%-36s  %-20s  %-20s  %s\n", s.ID, s.Candidate, s.StartedAt.Local().Format(time.DateTime), ended)
	}
	return nil
}

func runExport(ctx context.Context, store *archive.Store, id, format, outDir string, opts report.Options) error {
	info, err := store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	events, err := store.Events(ctx, id)
	if err != nil {
		return err
	}

	end := info.EndedAt
	if !info.Ended() {
		end = time.Now()
	}
	doc := report.Build(info, events, end, opts)

	if format == "json" {
		return printJSON(info, doc)
	}

	renderer, err := report.ByFormat(format)
	if err != nil {
		return err
	}
	path := filepath.Join(outDir, report.FileName(info.Candidate, renderer.Format()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := renderer.Render(f, doc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func printJSON(info models.SessionInfo, doc report.Document) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"session_id": info.ID,
		"candidate":  doc.Candidate,
		"duration":   doc.Duration,
		"summary":    doc.Summary,
		"rows":       doc.Rows,
	})
}
