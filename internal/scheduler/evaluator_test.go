// internal/scheduler/evaluator_test.go
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-worker/internal/common/logger"
	"report-worker/internal/models"
)

type fakeStore struct {
	schedules    []models.ScheduledReportItem
	schedulesErr error

	stamped  []int64
	stampErr error

	reportResults []models.ReportResult
	individuals   []int64

	enqueued   []json.RawMessage
	enqueueErr error
}

func (f *fakeStore) ActiveSchedules(ctx context.Context) ([]models.ScheduledReportItem, error) {
	return f.schedules, f.schedulesErr
}

func (f *fakeStore) StampLastRun(ctx context.Context, id int64, firedAt time.Time) error {
	if f.stampErr != nil {
		return f.stampErr
	}
	f.stamped = append(f.stamped, id)
	return nil
}

func (f *fakeStore) InsertReportResult(ctx context.Context, r *models.ReportResult) (int64, error) {
	f.reportResults = append(f.reportResults, *r)
	return int64(100 + len(f.reportResults)), nil
}

func (f *fakeStore) InsertIndividualResult(ctx context.Context, reportResultID int64) (int64, error) {
	f.individuals = append(f.individuals, reportResultID)
	return int64(200 + len(f.individuals)), nil
}

func (f *fakeStore) Enqueue(ctx context.Context, payload json.RawMessage) (int64, error) {
	if f.enqueueErr != nil {
		return 0, f.enqueueErr
	}
	f.enqueued = append(f.enqueued, payload)
	return int64(len(f.enqueued)), nil
}

func newTestEvaluator(t *testing.T, store Store) *Evaluator {
	return NewEvaluator(store, logger.NewTestLogger(t), time.Second, time.UTC)
}

func monthlyTemplate(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(models.ReportPayload{
		DBName:     "archive",
		Table:      "events",
		Columns:    []string{"region", "count(*) as cnt"},
		Conditions: []models.Condition{models.BasicCondition("archive_date", ">", "stale")},
		GroupBy:    "region",
		ReportName: "monthly events",
	})
	require.NoError(t, err)
	return raw
}

func TestEvaluator_Tick_FiresDueSchedule(t *testing.T) {
	store := &fakeStore{
		schedules: []models.ScheduledReportItem{{
			ID:           9,
			ReportName:   "monthly events",
			ScheduleType: models.ScheduleMonthly,
			ScheduleTime: "07:30:00",
			Payload:      monthlyTemplate(t),
			Status:       models.ScheduleActive,
		}},
	}
	e := newTestEvaluator(t, store)

	now := date(2024, 3, 15, 7, 30, 0)
	e.Tick(context.Background(), now)

	require.Equal(t, []int64{9}, store.stamped)
	require.Len(t, store.reportResults, 1)
	rr := store.reportResults[0]
	assert.True(t, rr.IsScheduled)
	require.NotNil(t, rr.ScheduleReportID)
	assert.Equal(t, int64(9), *rr.ScheduleReportID)
	assert.Equal(t, date(2024, 2, 1, 0, 0, 0), rr.StartDate)
	assert.Equal(t, date(2024, 2, 29, 23, 59, 59), rr.EndDate)

	require.Equal(t, []int64{101}, store.individuals)

	require.Len(t, store.enqueued, 1)
	payload, err := models.ParsePayload(store.enqueued[0])
	require.NoError(t, err)
	assert.Equal(t, int64(201), payload.ResultID)
	assert.Equal(t, "monthly_events_20240315_073000", payload.ReportName)

	// Stale archive_date condition replaced with the computed period bounds.
	require.Len(t, payload.Conditions, 2)
	assert.Equal(t, models.BasicCondition("archive_date", ">", "2024-02-01 00:00:00"), payload.Conditions[0])
	assert.Equal(t, models.BasicCondition("archive_date", "<", "2024-02-29 23:59:59"), payload.Conditions[1])
}

func TestEvaluator_Tick_SkipsNotDue(t *testing.T) {
	store := &fakeStore{
		schedules: []models.ScheduledReportItem{{
			ID:           1,
			ScheduleType: models.ScheduleDaily,
			ScheduleTime: "07:30:00",
			Payload:      monthlyTemplate(t),
			Status:       models.ScheduleActive,
		}},
	}
	e := newTestEvaluator(t, store)

	e.Tick(context.Background(), date(2024, 3, 15, 7, 31, 0))

	assert.Empty(t, store.stamped)
	assert.Empty(t, store.enqueued)
}

func TestEvaluator_Tick_StampSurvivesEnqueueFailure(t *testing.T) {
	store := &fakeStore{
		schedules: []models.ScheduledReportItem{{
			ID:           4,
			ScheduleType: models.ScheduleDaily,
			ScheduleTime: "07:30:00",
			Payload:      monthlyTemplate(t),
			Status:       models.ScheduleActive,
		}},
		enqueueErr: errors.New("connection refused"),
	}
	e := newTestEvaluator(t, store)

	e.Tick(context.Background(), date(2024, 3, 15, 7, 30, 0))

	// last_run is stamped even though the enqueue failed: at-least-once firing.
	assert.Equal(t, []int64{4}, store.stamped)
	assert.Empty(t, store.enqueued)
}

func TestEvaluator_Tick_FetchErrorIsSwallowed(t *testing.T) {
	store := &fakeStore{schedulesErr: errors.New("store down")}
	e := newTestEvaluator(t, store)

	e.Tick(context.Background(), date(2024, 3, 15, 7, 30, 0))

	assert.Empty(t, store.stamped)
}

func TestEvaluator_Materialize_RawQueryTemplate(t *testing.T) {
	raw, err := json.Marshal(models.ReportPayload{
		Query:      "SELECT region FROM archive.events WHERE archive_date BETWEEN '1' AND '2'",
		ReportName: "raw weekly",
	})
	require.NoError(t, err)

	store := &fakeStore{}
	e := newTestEvaluator(t, store)

	s := &models.ScheduledReportItem{
		ID:           2,
		ReportName:   "raw weekly",
		ScheduleType: models.ScheduleWeekly,
		ScheduleTime: "08:00:00",
		Payload:      raw,
		Status:       models.ScheduleActive,
	}

	payload, err := e.Materialize(context.Background(), s, date(2024, 3, 15, 8, 0, 0))
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT region FROM archive.events WHERE archive_date BETWEEN '2024-03-04 00:00:00' AND '2024-03-10 23:59:59'",
		payload.Query)
	assert.Equal(t, "raw_weekly_20240315_080000", payload.ReportName)
}
