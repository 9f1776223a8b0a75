// internal/models/payload.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Flag accepts JSON booleans and the 0/1 numbers legacy payloads use.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value: %s", string(b))
	}
	return nil
}

func (f Flag) Bool() bool { return bool(f) }

// SMTPSettings carries per-report mail routing.
type SMTPSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	UseTLS   bool   `json:"use_tls,omitempty"`
	From     string `json:"from,omitempty"`
}

// ReportPayload is the JSON body of a queue item and of a schedule template.
// Either Query is set (full override) or DBName/Table/Columns describe the
// SELECT to build.
type ReportPayload struct {
	Database   string      `json:"database,omitempty"` // target store name
	DBName     string      `json:"db_name,omitempty"`
	Table      string      `json:"table,omitempty"`
	Columns    []string    `json:"columns,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	GroupBy    string      `json:"group_by,omitempty"`
	OrderBy    string      `json:"order_by,omitempty"`
	Limit      int         `json:"limit,omitempty"`
	Query      string      `json:"query,omitempty"`

	ReportName  string        `json:"report_name"`
	Title       string        `json:"title,omitempty"`
	IsLandscape Flag          `json:"is_landscape,omitempty"`
	Creator     string        `json:"creator,omitempty"`
	Logo        string        `json:"logo,omitempty"`
	IsCharted   Flag          `json:"is_charted,omitempty"`
	ChartType   string        `json:"chart_type,omitempty"`
	SMTP        *SMTPSettings `json:"smtp_settings,omitempty"`
	MailTo      []string      `json:"mail_to,omitempty"`
	ResultID    int64         `json:"result_id,omitempty"`
}

// ParsePayload decodes a queue item's raw payload.
func ParsePayload(raw json.RawMessage) (*ReportPayload, error) {
	var p ReportPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return &p, nil
}

// Encode serializes the payload back to JSON for storage.
func (p *ReportPayload) Encode() (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return b, nil
}
