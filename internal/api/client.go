package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-proctor/internal/models"
)

// Client is a typed ProctorEngine client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// StartSession opens a session for candidate.
func (c *Client) StartSession(ctx context.Context, candidate string) (models.SessionInfo, error) {
	out, err := c.call(ctx, MethodStartSession, map[string]any{"candidate": candidate})
	if err != nil {
		return models.SessionInfo{}, err
	}
	return SessionFromStruct(out)
}

// Ingest sends one detector signal. signal must be representable as a
// google.protobuf.Value (maps, lists, strings, numbers, booleans, nil).
func (c *Client) Ingest(ctx context.Context, sessionID string, signal any) (int, error) {
	out, err := c.call(ctx, MethodIngest, map[string]any{"session_id": sessionID, "signal": signal})
	if err != nil {
		return 0, err
	}
	return intField(out, "appended"), nil
}

// ListEvents returns the session's canonical events in log order.
func (c *Client) ListEvents(ctx context.Context, sessionID string) ([]models.CanonicalEvent, error) {
	out, err := c.call(ctx, MethodListEvents, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, err
	}
	return EventsFromStruct(out)
}

// ListEventsSince returns the events after the first since and the cursor
// for the next call, so a caller can tail a live session.
func (c *Client) ListEventsSince(ctx context.Context, sessionID string, since int) ([]models.CanonicalEvent, int, error) {
	out, err := c.call(ctx, MethodListEvents, map[string]any{"session_id": sessionID, "since": since})
	if err != nil {
		return nil, 0, err
	}
	page, err := EventPageFromStruct(out)
	if err != nil {
		return nil, 0, err
	}
	return page.Events, page.Next, nil
}

// GetSummary returns the current headline metrics.
func (c *Client) GetSummary(ctx context.Context, sessionID string) (SummaryView, error) {
	out, err := c.call(ctx, MethodGetSummary, map[string]any{"session_id": sessionID})
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryFromStruct(out), nil
}

// ExportReport renders the session report in format ("pdf" or "csv").
func (c *Client) ExportReport(ctx context.Context, sessionID, format string) (Export, error) {
	return c.export(ctx, map[string]any{"session_id": sessionID, "format": format})
}

// RefreshReport re-renders the report, bypassing cached artifacts.
func (c *Client) RefreshReport(ctx context.Context, sessionID, format string) (Export, error) {
	return c.export(ctx, map[string]any{"session_id": sessionID, "format": format, "refresh": true})
}

func (c *Client) export(ctx context.Context, req map[string]any) (Export, error) {
	out, err := c.call(ctx, MethodExportReport, req)
	if err != nil {
		return Export{}, err
	}
	return ExportFromStruct(out)
}

// EndSession closes the session and returns its final summary.
func (c *Client) EndSession(ctx context.Context, sessionID string) (SummaryView, error) {
	out, err := c.call(ctx, MethodEndSession, map[string]any{"session_id": sessionID})
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryFromStruct(out), nil
}

func (c *Client) call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
