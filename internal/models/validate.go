// internal/models/validate.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchema is validated against every payload coming off the queue.
// A payload must name either a raw query or the db_name/table/columns triple.
const payloadSchema = `{
	"type": "object",
	"required": ["report_name"],
	"properties": {
		"database":      {"type": "string"},
		"db_name":       {"type": "string"},
		"table":         {"type": "string"},
		"columns":       {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"conditions":    {"type": "array"},
		"group_by":      {"type": "string"},
		"order_by":      {"type": "string"},
		"limit":         {"type": "integer", "minimum": 1},
		"query":         {"type": "string", "minLength": 1},
		"report_name":   {"type": "string", "minLength": 1},
		"title":         {"type": "string"},
		"is_landscape":  {"type": ["boolean", "integer"]},
		"creator":       {"type": "string"},
		"logo":          {"type": "string"},
		"is_charted":    {"type": ["boolean", "integer"]},
		"chart_type":    {"type": "string", "enum": ["bar", "pie"]},
		"smtp_settings": {"type": "object"},
		"mail_to":       {"type": "array", "items": {"type": "string"}},
		"result_id":     {"type": "integer"}
	},
	"anyOf": [
		{"required": ["query"]},
		{"required": ["db_name", "table", "columns"]}
	]
}`

// ValidatePayload checks a raw queue payload against the payload schema.
func ValidatePayload(raw json.RawMessage) error {
	schemaLoader := gojsonschema.NewStringLoader(payloadSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("payload validation failed: %s", strings.Join(msgs, "; "))
}
