package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	pdfFont       = "Go"
	pdfLeft       = 14.0
	pdfLineHeight = 5.0
	pdfRowPadding = 1.0
	pdfHeadHeight = 8.0
)

// Column widths in millimetres for the Time / Event / Confidence table.
var pdfColumns = []float64{35, 115, 32}

// PDFRenderer lays the report out as an A4 document with a title,
// candidate metadata, summary lines and the event table. Text is set in
// an embedded UTF-8 font so candidate names and messages outside Latin-1
// survive, and long cells wrap onto as many lines as they need.
type PDFRenderer struct {
	// Compress toggles stream compression; tests disable it to inspect text.
	Compress bool
}

// NewPDFRenderer returns a renderer producing compressed output.
func NewPDFRenderer() PDFRenderer {
	return PDFRenderer{Compress: true}
}

// Format implements Renderer.
func (PDFRenderer) Format() string { return "pdf" }

// ContentType implements Renderer.
func (PDFRenderer) ContentType() string { return "application/pdf" }

// Render implements Renderer.
func (r PDFRenderer) Render(w io.Writer, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetTitle(doc.Title, true)
	if !doc.GeneratedAt.IsZero() {
		pdf.SetCreationDate(doc.GeneratedAt)
		pdf.SetModificationDate(doc.GeneratedAt)
	}
	pdf.AddUTF8FontFromBytes(pdfFont, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(pdfFont, "B", gobold.TTF)
	pdf.SetAutoPageBreak(false, 0)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("load pdf font: %w", err)
	}

	pdf.AddPage()
	pdf.SetFont(pdfFont, "B", 18)
	pdf.Text(pdfLeft, 20, doc.Title)

	pdf.SetFont(pdfFont, "", 12)
	lines := []string{
		"Candidate: " + doc.Candidate,
		"Interview Duration: " + doc.Duration,
		fmt.Sprintf("Focus Lost: %d", doc.Summary.FocusLost),
		fmt.Sprintf("Suspicious Events: %d", doc.Summary.Suspicious),
		fmt.Sprintf("Final Integrity Score: %d", doc.Summary.IntegrityScore),
	}
	_, pageHeight := pdf.GetPageSize()
	textWidth := sum(pdfColumns)
	y := 32.0
	for _, line := range lines {
		for _, part := range wrapText(pdf, line, textWidth) {
			pdf.Text(pdfLeft, y, part)
			y += 6
		}
		y += 2
	}

	bottom := pageHeight - 15
	y = tableHeader(pdf, y+2)
	margin := pdf.GetCellMargin()
	for _, row := range doc.Rows {
		cells := []string{row.Time, row.Text, row.Confidence}
		wrapped := make([][]string, len(cells))
		height := 0
		for i, cell := range cells {
			wrapped[i] = wrapText(pdf, cell, pdfColumns[i]-2*margin)
			height = max(height, len(wrapped[i]))
		}
		rowHeight := float64(height)*pdfLineHeight + 2*pdfRowPadding
		if y+rowHeight > bottom {
			pdf.AddPage()
			y = tableHeader(pdf, 15)
		}

		x := pdfLeft
		for i, parts := range wrapped {
			pdf.Rect(x, y, pdfColumns[i], rowHeight, "D")
			for j, part := range parts {
				pdf.SetXY(x, y+pdfRowPadding+float64(j)*pdfLineHeight)
				pdf.CellFormat(pdfColumns[i], pdfLineHeight, part, "", 0, "L", false, 0, "")
			}
			x += pdfColumns[i]
		}
		y += rowHeight
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// tableHeader draws the column headings at y and returns the y below them,
// leaving the regular font selected.
func tableHeader(pdf *fpdf.Fpdf, y float64) float64 {
	pdf.SetXY(pdfLeft, y)
	pdf.SetFont(pdfFont, "B", 10)
	pdf.SetFillColor(41, 128, 185)
	pdf.SetTextColor(255, 255, 255)
	for i, head := range []string{"Time", "Event", "Confidence"} {
		pdf.CellFormat(pdfColumns[i], pdfHeadHeight, head, "1", 0, "L", true, 0, "")
	}
	pdf.SetFont(pdfFont, "", 10)
	pdf.SetTextColor(0, 0, 0)
	return y + pdfHeadHeight
}

// wrapText splits s into lines no wider than width in the current font.
// Lines break after a space where one is available and inside a word
// otherwise; within a paragraph the lines concatenate back to the input.
func wrapText(pdf *fpdf.Fpdf, s string, width float64) []string {
	var out []string
	for _, para := range strings.Split(s, "\n") {
		runes := []rune(para)
		if len(runes) == 0 {
			out = append(out, "")
			continue
		}
		start, lastBreak := 0, -1
		used := 0.0
		for i := 0; i < len(runes); i++ {
			cw := pdf.GetStringWidth(string(runes[i]))
			for used+cw > width && i > start {
				cut := i
				if lastBreak > start {
					cut = lastBreak
				}
				out = append(out, string(runes[start:cut]))
				start, lastBreak = cut, -1
				used = pdf.GetStringWidth(string(runes[start:i]))
			}
			used += cw
			if runes[i] == ' ' {
				lastBreak = i + 1
			}
		}
		out = append(out, string(runes[start:]))
	}
	return out
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
