// internal/poller/chart.go
package poller

import (
	"fmt"
	"strings"

	"report-worker/internal/archive"
	"report-worker/internal/common/errors"
	"report-worker/internal/models"
)

// ExtractChartSeries resolves the chart axes from the payload's column list:
// the first column whose expression mentions "count" supplies the values, the
// first that does not supplies the labels. Aggregated payloads follow this
// shape, so the convention holds without an explicit axis declaration.
func ExtractChartSeries(p *models.ReportPayload, rows []map[string]interface{}) ([]string, []float64, error) {
	var labelCol, valueCol string
	for _, col := range p.Columns {
		if strings.Contains(strings.ToLower(col), "count") {
			if valueCol == "" {
				valueCol = archive.ColumnAlias(col)
			}
		} else if labelCol == "" {
			labelCol = archive.ColumnAlias(col)
		}
	}

	if valueCol == "" {
		return nil, nil, errors.NewChartColumnError("no count column in payload columns")
	}
	if labelCol == "" {
		return nil, nil, errors.NewChartColumnError("no label column in payload columns")
	}

	labels := make([]string, 0, len(rows))
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		value, err := toFloat(row[valueCol])
		if err != nil {
			return nil, nil, errors.NewChartColumnError(
				fmt.Sprintf("column %s: %v", valueCol, err))
		}
		labels = append(labels, formatLabel(row[labelCol]))
		values = append(values, value)
	}
	return labels, values, nil
}

func formatLabel(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toFloat covers the numeric scan types the archive driver hands back;
// count() comes through as uint64.
func toFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("value %v is not numeric", val)
	}
}
