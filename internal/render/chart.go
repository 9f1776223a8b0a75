// internal/render/chart.go
package render

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
)

const (
	chartWidth  = 1024
	chartHeight = 512
)

func chartValues(labels []string, values []float64) []chart.Value {
	out := make([]chart.Value, 0, len(values))
	for i, v := range values {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		out = append(out, chart.Value{Label: label, Value: v})
	}
	return out
}

func renderBarPNG(w io.Writer, labels []string, values []float64) error {
	graph := chart.BarChart{
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: 40,
		Bars:     chartValues(labels, values),
		XAxis:    chart.Style{TextRotationDegrees: 45},
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("bar chart render failed: %w", err)
	}
	return nil
}

func renderPiePNG(w io.Writer, labels []string, values []float64) error {
	graph := chart.PieChart{
		Width:  chartHeight,
		Height: chartHeight,
		Values: chartValues(labels, values),
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("pie chart render failed: %w", err)
	}
	return nil
}
