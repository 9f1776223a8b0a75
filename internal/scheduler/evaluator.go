// internal/scheduler/evaluator.go
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"report-worker/internal/common/logger"
	"report-worker/internal/common/metrics"
	"report-worker/internal/models"
)

// Store is the subset of the queue store the evaluator needs.
type Store interface {
	ActiveSchedules(ctx context.Context) ([]models.ScheduledReportItem, error)
	StampLastRun(ctx context.Context, id int64, firedAt time.Time) error
	InsertReportResult(ctx context.Context, r *models.ReportResult) (int64, error)
	InsertIndividualResult(ctx context.Context, reportResultID int64) (int64, error)
	Enqueue(ctx context.Context, payload json.RawMessage) (int64, error)
}

// Evaluator is the recurring-schedule loop. On every tick it checks each
// active schedule against the wall clock and materializes a one-shot queue
// item for the ones that are due.
type Evaluator struct {
	store    Store
	logger   logger.Logger
	interval time.Duration
	loc      *time.Location

	now func() time.Time // swapped out in tests
}

func NewEvaluator(store Store, log logger.Logger, interval time.Duration, loc *time.Location) *Evaluator {
	return &Evaluator{
		store:    store,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
		interval: interval,
		loc:      loc,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled. Store errors are logged and
// swallowed: the next tick retries.
func (e *Evaluator) Run(ctx context.Context) {
	e.logger.Info("schedule evaluator started", map[string]interface{}{
		"interval": e.interval.String(),
		"timezone": e.loc.String(),
	})

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("schedule evaluator stopped", nil)
			return
		case <-ticker.C:
			e.Tick(ctx, e.now().In(e.loc))
		}
	}
}

// Tick evaluates every active schedule once against "now".
func (e *Evaluator) Tick(ctx context.Context, now time.Time) {
	schedules, err := e.store.ActiveSchedules(ctx)
	if err != nil {
		e.logger.WithError(err).Error("failed to fetch schedules", nil)
		return
	}

	for i := range schedules {
		s := &schedules[i]

		due, err := IsDue(s, now)
		if err != nil {
			e.logger.WithError(err).Warn("skipping schedule with invalid definition", map[string]interface{}{
				"scheduleId": s.ID,
			})
			continue
		}
		if !due {
			continue
		}

		if err := e.Fire(ctx, s, now); err != nil {
			e.logger.WithError(err).Error("schedule firing failed", map[string]interface{}{
				"scheduleId": s.ID,
				"reportName": s.ReportName,
			})
			continue
		}

		metrics.SchedulesFired.WithLabelValues(string(s.ScheduleType)).Inc()
		e.logger.Info("schedule fired", map[string]interface{}{
			"scheduleId":   s.ID,
			"reportName":   s.ReportName,
			"scheduleType": s.ScheduleType,
		})
	}
}

// Fire materializes one schedule into a pending queue item. last_run is
// stamped before the enqueue is attempted: a failure further down fires the
// schedule again on its next matching tick instead of losing the stamp, so
// firing is at-least-once rather than transactional.
func (e *Evaluator) Fire(ctx context.Context, s *models.ScheduledReportItem, now time.Time) error {
	if err := e.store.StampLastRun(ctx, s.ID, now); err != nil {
		return err
	}

	payload, err := e.Materialize(ctx, s, now)
	if err != nil {
		return fmt.Errorf("failed to materialize schedule %d: %w", s.ID, err)
	}

	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	if _, err := e.store.Enqueue(ctx, raw); err != nil {
		return err
	}
	return nil
}

// Materialize turns a schedule template into a concrete one-shot request:
// period bounds swapped into the condition tree and any raw query, the report
// name timestamped, and the result-tracking rows created with the child id
// wired back into the payload.
func (e *Evaluator) Materialize(ctx context.Context, s *models.ScheduledReportItem, now time.Time) (*models.ReportPayload, error) {
	payload, err := models.ParsePayload(s.Payload)
	if err != nil {
		return nil, err
	}

	start, end := PeriodBounds(s.ScheduleType, now)

	payload.Conditions = RewriteConditions(payload.Conditions, start, end)
	if payload.Query != "" {
		payload.Query = SubstitutePeriod(payload.Query, start, end)
	}

	name := payload.ReportName
	if name == "" {
		name = s.ReportName
	}
	payload.ReportName = TimestampedName(name, now)

	resultID, err := e.store.InsertReportResult(ctx, &models.ReportResult{
		ReportName:       payload.ReportName,
		StartDate:        start,
		EndDate:          end,
		IsScheduled:      true,
		ScheduleReportID: &s.ID,
	})
	if err != nil {
		return nil, err
	}

	individualID, err := e.store.InsertIndividualResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	payload.ResultID = individualID

	return payload, nil
}
