package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVRenderer writes a metadata block, a blank separator, a header row and
// one data row per event.
type CSVRenderer struct{}

// Format implements Renderer.
func (CSVRenderer) Format() string { return "csv" }

// ContentType implements Renderer.
func (CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }

// Render implements Renderer.
func (CSVRenderer) Render(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"Candidate", doc.Candidate},
		{"Interview Duration", doc.Duration},
		{"Focus Lost", strconv.Itoa(doc.Summary.FocusLost)},
		{"Suspicious Events", strconv.Itoa(doc.Summary.Suspicious)},
		{"Final Integrity Score", strconv.Itoa(doc.Summary.IntegrityScore)},
		{},
		{"Time", "Type", "Event", "Confidence"},
	}
	for _, row := range doc.Rows {
		records = append(records, []string{row.Time, row.Kind, row.Text, row.Confidence})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
