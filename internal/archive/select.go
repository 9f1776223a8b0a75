// internal/archive/select.go
package archive

import (
	"fmt"
	"regexp"
	"strings"

	"report-worker/internal/models"
)

// BuildSelectQuery turns a report payload into an executable query string.
// A non-empty Query field is a full override and is returned unchanged;
// otherwise clauses are appended in the fixed order
// FROM, WHERE, GROUP BY, ORDER BY, LIMIT. Column and table names are taken
// as-is; the caller owns payload correctness.
func BuildSelectQuery(p *models.ReportPayload) string {
	if p.Query != "" {
		return p.Query
	}

	query := fmt.Sprintf("SELECT %s FROM %s.%s", strings.Join(p.Columns, ", "), p.DBName, p.Table)

	if len(p.Conditions) > 0 {
		query += " WHERE " + BuildConditionString(p.Conditions, OpAnd)
	}

	if p.GroupBy != "" {
		query += " GROUP BY " + p.GroupBy
	}

	if p.OrderBy != "" {
		query += " ORDER BY " + p.OrderBy
	}

	if p.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", p.Limit)
	}

	return query
}

var aliasSplit = regexp.MustCompile(`(?i)\s+as\s+`)

// ColumnAlias returns the name a column expression surfaces in the result
// set: the part after the last AS, or the expression itself when there is
// no alias.
func ColumnAlias(column string) string {
	parts := aliasSplit.Split(strings.TrimSpace(column), -1)
	return strings.TrimSpace(parts[len(parts)-1])
}
