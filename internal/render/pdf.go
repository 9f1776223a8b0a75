// internal/render/pdf.go
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"report-worker/internal/archive"
	"report-worker/internal/common/config"
	"report-worker/internal/common/logger"
	"report-worker/internal/models"
)

const (
	pdfFont       = "Helvetica"
	headerStamp   = "02.01.2006 15:04:05"
	tableFontSize = 8.0
	tableRowH     = 6.0
)

// PDF renders report artifacts with go-pdf/fpdf. Output files land in the
// configured output directory under the payload's (already sanitized and
// timestamped) report name.
type PDF struct {
	cfg    config.ReportsConfig
	logger logger.Logger

	now func() time.Time
}

func NewPDF(cfg config.ReportsConfig, log logger.Logger) *PDF {
	return &PDF{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "render"}),
		now:    time.Now,
	}
}

// RenderTable writes a striped table of the result rows.
func (r *PDF) RenderTable(p *models.ReportPayload, rows []map[string]interface{}) (string, error) {
	doc := r.newDoc(p)

	columns := columnOrder(p, rows)
	if len(columns) == 0 {
		r.writeEmptyNotice(doc)
		return r.save(doc, p.ReportName)
	}

	pageW, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	colW := (pageW - left - right) / float64(len(columns))

	doc.SetFont(pdfFont, "B", tableFontSize)
	doc.SetFillColor(52, 73, 94)
	doc.SetTextColor(255, 255, 255)
	for _, col := range columns {
		doc.CellFormat(colW, tableRowH, col, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont(pdfFont, "", tableFontSize)
	doc.SetTextColor(0, 0, 0)
	for i, row := range rows {
		if i%2 == 1 {
			doc.SetFillColor(236, 240, 241)
		} else {
			doc.SetFillColor(255, 255, 255)
		}
		for _, col := range columns {
			doc.CellFormat(colW, tableRowH, formatCell(row[col]), "1", 0, "L", true, 0, "")
		}
		doc.Ln(-1)
	}

	return r.save(doc, p.ReportName)
}

// RenderChart writes a single-page chart of the extracted label/value series.
func (r *PDF) RenderChart(p *models.ReportPayload, labels []string, values []float64) (string, error) {
	doc := r.newDoc(p)

	if len(values) == 0 {
		r.writeEmptyNotice(doc)
		return r.save(doc, p.ReportName)
	}

	var buf bytes.Buffer
	var err error
	switch p.ChartType {
	case "pie":
		err = renderPiePNG(&buf, labels, values)
	default:
		err = renderBarPNG(&buf, labels, values)
	}
	if err != nil {
		return "", fmt.Errorf("chart image rendering failed: %w", err)
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader("chart", opts, &buf)

	pageW, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	imgW := pageW - left - right
	doc.ImageOptions("chart", left, doc.GetY()+4, imgW, 0, false, opts, 0, "")

	return r.save(doc, p.ReportName)
}

// newDoc creates a page with the shared header: generation timestamp in the
// top-right corner, optional logo in the top-left, title centered below.
func (r *PDF) newDoc(p *models.ReportPayload) *fpdf.Fpdf {
	orientation := "P"
	if p.IsLandscape.Bool() {
		orientation = "L"
	}

	doc := fpdf.New(orientation, "mm", "A4", r.cfg.FontDir)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()

	pageW, _ := doc.GetPageSize()
	left, top, right, _ := doc.GetMargins()

	doc.SetFont(pdfFont, "", 8)
	doc.SetTextColor(120, 120, 120)
	doc.SetXY(pageW-right-60, top)
	doc.CellFormat(60, 5, r.now().Format(headerStamp), "", 0, "R", false, 0, "")

	if logo := r.logoPath(p); logo != "" {
		doc.ImageOptions(logo, left, top, 0, 12, false, fpdf.ImageOptions{}, 0, "")
	}

	title := p.Title
	if title == "" {
		title = p.ReportName
	}
	doc.SetFont(pdfFont, "B", 14)
	doc.SetTextColor(0, 0, 0)
	doc.SetXY(left, top+14)
	doc.CellFormat(pageW-left-right, 10, title, "", 1, "C", false, 0, "")
	doc.Ln(4)

	return doc
}

// logoPath prefers the payload's logo and falls back to the configured one.
// A missing file is skipped rather than failing the whole artifact.
func (r *PDF) logoPath(p *models.ReportPayload) string {
	for _, candidate := range []string{p.Logo, r.cfg.LogoPath} {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		r.logger.Warn("logo file not found, skipping", map[string]interface{}{"path": candidate})
	}
	return ""
}

func (r *PDF) writeEmptyNotice(doc *fpdf.Fpdf) {
	doc.SetFont(pdfFont, "I", 10)
	doc.CellFormat(0, 10, "No records found for the requested period.", "", 1, "C", false, 0, "")
}

func (r *PDF) save(doc *fpdf.Fpdf, reportName string) (string, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, reportName+".pdf")
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write pdf: %w", err)
	}
	return path, nil
}

// columnOrder keeps the payload's column order when the SELECT was built from
// it, and falls back to sorted result keys for raw-query payloads.
func columnOrder(p *models.ReportPayload, rows []map[string]interface{}) []string {
	if len(p.Columns) > 0 {
		columns := make([]string, 0, len(p.Columns))
		for _, col := range p.Columns {
			columns = append(columns, archive.ColumnAlias(col))
		}
		return columns
	}
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, 0, len(rows[0]))
	for key := range rows[0] {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", val)
	}
}
