// internal/models/schedule.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleType is the recurrence cadence of a scheduled report.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleYearly  ScheduleType = "yearly"
)

// ScheduleStatus marks whether a schedule is eligible to fire.
type ScheduleStatus string

const (
	ScheduleActive   ScheduleStatus = "active"
	ScheduleInactive ScheduleStatus = "inactive"
)

// ScheduledReportItem is a recurring report definition. Payload is the
// template request reused on each firing; LastRun is stamped by the
// evaluator after a firing.
type ScheduledReportItem struct {
	ID           int64           `json:"id" db:"id"`
	ReportName   string          `json:"reportName" db:"report_name"`
	ScheduleType ScheduleType    `json:"scheduleType" db:"schedule_type"`
	ScheduleTime string          `json:"scheduleTime" db:"schedule_time"` // HH:MM:SS
	LastRun      *time.Time      `json:"lastRun,omitempty" db:"last_run"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	Status       ScheduleStatus  `json:"status" db:"status"`
}

// TimeOfDay parses ScheduleTime into clock components.
func (s *ScheduledReportItem) TimeOfDay() (hour, min, sec int, err error) {
	t, err := time.Parse("15:04:05", s.ScheduleTime)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid schedule_time %q: %w", s.ScheduleTime, err)
	}
	return t.Hour(), t.Minute(), t.Second(), nil
}
