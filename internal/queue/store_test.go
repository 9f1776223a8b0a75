// internal/queue/store_test.go
package queue

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-worker/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_CreateTables(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS queue_items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS report_results").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS individual_report_results").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scheduled_report_items").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.CreateTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchPending_NoWatermark(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "status", "payload", "created_at"}).
		AddRow(int64(5), "pending", []byte(`{"report_name":"a"}`), now).
		AddRow(int64(6), "pending", []byte(`{"report_name":"b"}`), now)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, status, payload, created_at FROM queue_items WHERE status = $1 ORDER BY id`)).
		WithArgs(models.QueuePending).
		WillReturnRows(rows)

	items, err := store.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(5), items[0].ID)
	assert.Equal(t, models.QueuePending, items[0].Status)
	assert.JSONEq(t, `{"report_name":"b"}`, string(items[1].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchPending_WithWatermark(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "status", "payload", "created_at"}).
		AddRow(int64(8), "pending", []byte(`{}`), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, status, payload, created_at FROM queue_items WHERE id > $1 AND status = $2 ORDER BY id`)).
		WithArgs(int64(7), models.QueuePending).
		WillReturnRows(rows)

	items, err := store.FetchPending(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(8), items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Enqueue(t *testing.T) {
	store, mock := newMockStore(t)

	payload := json.RawMessage(`{"report_name":"weekly_summary"}`)
	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO queue_items (status, payload) VALUES ($1, $2) RETURNING id`)).
		WithArgs(models.QueuePending, []byte(payload)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.Enqueue(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateQueueItemStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE queue_items SET status = $2 WHERE id = $1`)).
		WithArgs(int64(3), models.QueueDone).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateQueueItemStatus(context.Background(), 3, models.QueueDone))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertReportResult(t *testing.T) {
	store, mock := newMockStore(t)

	scheduleID := int64(11)
	r := &models.ReportResult{
		ReportName:       "monthly_archive",
		StartDate:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		IsScheduled:      true,
		ScheduleReportID: &scheduleID,
	}

	mock.ExpectQuery("INSERT INTO report_results").
		WithArgs(r.ReportName, r.StartDate, r.EndDate, true, int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.InsertReportResult(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_IndividualResultLifecycle(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO individual_report_results").
		WithArgs(int64(7), models.ResultProcessing).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))

	id, err := store.InsertIndividualResult(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(21), id)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE individual_report_results SET result = $2, path = $3, status = $4 WHERE id = $1`)).
		WithArgs(int64(21), []byte(`[{"region":"eu"}]`), "reports/r.pdf", models.ResultCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CompleteIndividualResult(ctx, 21, "reports/r.pdf", json.RawMessage(`[{"region":"eu"}]`)))

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE individual_report_results SET status = $2 WHERE id = $1`)).
		WithArgs(int64(21), models.ResultError).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateIndividualResultStatus(ctx, 21, models.ResultError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ActiveSchedules(t *testing.T) {
	store, mock := newMockStore(t)

	lastRun := time.Date(2024, 3, 14, 7, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "report_name", "schedule_type", "schedule_time", "last_run", "payload", "status"}).
		AddRow(int64(1), "daily_events", "daily", "07:30:00", lastRun, []byte(`{}`), "active").
		AddRow(int64(2), "never_ran", "weekly", "08:00:00", nil, []byte(`{}`), "active")

	mock.ExpectQuery("SELECT id, report_name, schedule_type, schedule_time, last_run, payload, status").
		WithArgs(models.ScheduleActive).
		WillReturnRows(rows)

	items, err := store.ActiveSchedules(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.NotNil(t, items[0].LastRun)
	assert.Equal(t, lastRun, *items[0].LastRun)
	assert.Nil(t, items[1].LastRun)
	assert.Equal(t, models.ScheduleWeekly, items[1].ScheduleType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_StampLastRun(t *testing.T) {
	store, mock := newMockStore(t)

	firedAt := time.Date(2024, 3, 15, 7, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE scheduled_report_items SET last_run = $2 WHERE id = $1`)).
		WithArgs(int64(9), firedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.StampLastRun(context.Background(), 9, firedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
