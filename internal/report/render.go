package report

import (
	"fmt"
	"io"
	"strings"
)

// Renderer writes a Document in one export format.
type Renderer interface {
	// Format is the short format name, also used as the file extension.
	Format() string
	ContentType() string
	Render(w io.Writer, doc Document) error
}

// FileName returns the artifact name for a candidate's report.
func FileName(candidate, ext string) string {
	return fmt.Sprintf("%s_Proctoring_Report.%s", candidate, ext)
}

// ByFormat returns the renderer for format ("pdf" or "csv").
func ByFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pdf":
		return NewPDFRenderer(), nil
	case "csv":
		return CSVRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}
