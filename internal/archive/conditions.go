// internal/archive/conditions.go
package archive

import (
	"fmt"
	"strconv"
	"strings"

	"report-worker/internal/models"
)

// Operator joins sibling conditions within one compile call.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// BuildConditionString compiles a filter tree into a predicate string for the
// archive store's SQL dialect. String values are single-quoted, everything
// else is rendered verbatim. No escaping is performed beyond the quoting, so
// field and operator names must be pre-sanitized by the caller.
func BuildConditionString(conditions []models.Condition, op Operator) string {
	parts := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		switch cond.Type {
		case models.ConditionBasic:
			parts = append(parts, fmt.Sprintf("%s %s %s", cond.Field, cond.Operator, renderLiteral(cond.Data)))
		case models.ConditionNestedAnd:
			parts = append(parts, "("+BuildConditionString(cond.Conditions, OpAnd)+")")
		case models.ConditionNestedOr:
			parts = append(parts, "("+BuildConditionString(cond.Conditions, OpOr)+")")
		}
	}
	return strings.Join(parts, " "+string(op)+" ")
}

func renderLiteral(data interface{}) string {
	switch v := data.(type) {
	case string:
		return "'" + v + "'"
	case float64:
		// JSON numbers decode as float64; keep integers free of a trailing .0
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", v)
	}
}
