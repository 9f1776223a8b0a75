// internal/models/condition.go
package models

// ConditionType tags the variant of a filter-tree node.
type ConditionType string

const (
	ConditionBasic     ConditionType = "basic"
	ConditionNestedAnd ConditionType = "nested_and"
	ConditionNestedOr  ConditionType = "nested_or"
)

// Condition is one node of a report filter tree. A "basic" node carries
// Field/Operator/Data; "nested_and" and "nested_or" carry child Conditions.
type Condition struct {
	Type       ConditionType `json:"type"`
	Field      string        `json:"field,omitempty"`
	Operator   string        `json:"operator,omitempty"`
	Data       interface{}   `json:"data,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty"`
}

// BasicCondition builds a leaf filter node.
func BasicCondition(field, operator string, data interface{}) Condition {
	return Condition{
		Type:     ConditionBasic,
		Field:    field,
		Operator: operator,
		Data:     data,
	}
}
