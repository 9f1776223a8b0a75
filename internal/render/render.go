// Package render turns archive query results into PDF artifacts.
package render

import (
	"report-worker/internal/models"
)

// Renderer produces a report artifact on disk and returns its path.
type Renderer interface {
	RenderTable(p *models.ReportPayload, rows []map[string]interface{}) (string, error)
	RenderChart(p *models.ReportPayload, labels []string, values []float64) (string, error)
}
