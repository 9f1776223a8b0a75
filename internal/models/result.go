// internal/models/result.go
package models

import (
	"encoding/json"
	"time"
)

// ResultStatus is the lifecycle state of an individual rendered artifact.
// "error occured" keeps the historical spelling of the schema CHECK constraint.
type ResultStatus string

const (
	ResultProcessing ResultStatus = "processing"
	ResultCompleted  ResultStatus = "completed"
	ResultError      ResultStatus = "error occured"
)

// ReportResult is one logical report run, manual or scheduled.
type ReportResult struct {
	ID               int64     `json:"id" db:"id"`
	ReportName       string    `json:"reportName" db:"report_name"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	StartDate        time.Time `json:"startDate" db:"start_date"`
	EndDate          time.Time `json:"endDate" db:"end_date"`
	IsScheduled      bool      `json:"isScheduled" db:"is_scheduled"`
	ScheduleReportID *int64    `json:"scheduleReportId,omitempty" db:"schedule_report_id"`
}

// IndividualReportResult is one rendered artifact belonging to a ReportResult.
// Its status is the atomic unit of success/failure reporting.
type IndividualReportResult struct {
	ID             int64           `json:"id" db:"id"`
	ReportResultID int64           `json:"reportResultId" db:"report_result_id"`
	Result         json.RawMessage `json:"result,omitempty" db:"result"`
	Path           string          `json:"path" db:"path"`
	Status         ResultStatus    `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}
