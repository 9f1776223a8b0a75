// internal/queue/store.go
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"report-worker/internal/models"
)

// Store is the Postgres persistence layer shared by the poller and the
// schedule evaluator. The queue table is the only hand-off point between the
// two loops: the evaluator appends, the poller reads and updates.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const createQueueItemsTable = `
	CREATE TABLE IF NOT EXISTS queue_items (
		id SERIAL PRIMARY KEY,
		status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'processing', 'done', 'error')),
		payload JSON NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

const createReportResultsTable = `
	CREATE TABLE IF NOT EXISTS report_results (
		id SERIAL PRIMARY KEY,
		report_name TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		start_date TIMESTAMP,
		end_date TIMESTAMP,
		is_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
		schedule_report_id INTEGER
	)`

const createIndividualReportResultsTable = `
	CREATE TABLE IF NOT EXISTS individual_report_results (
		id SERIAL PRIMARY KEY,
		report_result_id INTEGER NOT NULL REFERENCES report_results(id),
		result JSON,
		path TEXT NOT NULL DEFAULT '',
		status VARCHAR(50) NOT NULL CHECK (status IN ('processing', 'completed', 'error occured')),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

const createScheduledReportItemsTable = `
	CREATE TABLE IF NOT EXISTS scheduled_report_items (
		id SERIAL PRIMARY KEY,
		report_name TEXT NOT NULL,
		schedule_type VARCHAR(20) NOT NULL CHECK (schedule_type IN ('daily', 'weekly', 'monthly', 'yearly')),
		schedule_time VARCHAR(8) NOT NULL,
		last_run TIMESTAMP,
		payload JSON NOT NULL,
		status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'inactive'))
	)`

// CreateTables creates the four worker tables if they do not exist.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, stmt := range []string{
		createQueueItemsTable,
		createReportResultsTable,
		createIndividualReportResultsTable,
		createScheduledReportItemsTable,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// FetchPending returns pending queue items, restricted to ids above the
// watermark once one exists, in insertion order.
func (s *Store) FetchPending(ctx context.Context, lastProcessedID int64) ([]models.QueueItem, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if lastProcessedID > 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, status, payload, created_at FROM queue_items WHERE id > $1 AND status = $2 ORDER BY id`,
			lastProcessedID, models.QueuePending)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, status, payload, created_at FROM queue_items WHERE status = $1 ORDER BY id`,
			models.QueuePending)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending queue items: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		if err := rows.Scan(&item.ID, &item.Status, &item.Payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue item iteration failed: %w", err)
	}
	return items, nil
}

// Enqueue inserts a new pending queue item and returns its id.
func (s *Store) Enqueue(ctx context.Context, payload json.RawMessage) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO queue_items (status, payload) VALUES ($1, $2) RETURNING id`,
		models.QueuePending, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue item: %w", err)
	}
	return id, nil
}

// UpdateQueueItemStatus flips a queue item to its next lifecycle state.
func (s *Store) UpdateQueueItemStatus(ctx context.Context, id int64, status models.QueueStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update queue item %d: %w", id, err)
	}
	return nil
}

// InsertReportResult records a logical report run and returns its id.
func (s *Store) InsertReportResult(ctx context.Context, r *models.ReportResult) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO report_results (report_name, start_date, end_date, is_scheduled, schedule_report_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		r.ReportName, r.StartDate, r.EndDate, r.IsScheduled, r.ScheduleReportID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert report result: %w", err)
	}
	return id, nil
}

// InsertIndividualResult creates the artifact-tracking row in processing state.
func (s *Store) InsertIndividualResult(ctx context.Context, reportResultID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO individual_report_results (report_result_id, status) VALUES ($1, $2) RETURNING id`,
		reportResultID, models.ResultProcessing).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert individual report result: %w", err)
	}
	return id, nil
}

// UpdateIndividualResultStatus flips an artifact row to a terminal state.
func (s *Store) UpdateIndividualResultStatus(ctx context.Context, id int64, status models.ResultStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE individual_report_results SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update individual report result %d: %w", id, err)
	}
	return nil
}

// CompleteIndividualResult records the rendered artifact and serialized rows
// alongside the completed status.
func (s *Store) CompleteIndividualResult(ctx context.Context, id int64, path string, result json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE individual_report_results SET result = $2, path = $3, status = $4 WHERE id = $1`,
		id, result, path, models.ResultCompleted)
	if err != nil {
		return fmt.Errorf("failed to complete individual report result %d: %w", id, err)
	}
	return nil
}

// ActiveSchedules returns every active recurring report definition.
func (s *Store) ActiveSchedules(ctx context.Context) ([]models.ScheduledReportItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, report_name, schedule_type, schedule_time, last_run, payload, status
		 FROM scheduled_report_items WHERE status = $1 ORDER BY id`,
		models.ScheduleActive)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active schedules: %w", err)
	}
	defer rows.Close()

	var items []models.ScheduledReportItem
	for rows.Next() {
		var (
			item    models.ScheduledReportItem
			lastRun sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.ReportName, &item.ScheduleType, &item.ScheduleTime,
			&lastRun, &item.Payload, &item.Status); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if lastRun.Valid {
			t := lastRun.Time
			item.LastRun = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule iteration failed: %w", err)
	}
	return items, nil
}

// StampLastRun records a firing. Stamped before the enqueue is known to have
// succeeded: firing is at-least-once, not transactional with the enqueue.
func (s *Store) StampLastRun(ctx context.Context, id int64, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_report_items SET last_run = $2 WHERE id = $1`, id, firedAt)
	if err != nil {
		return fmt.Errorf("failed to stamp last_run for schedule %d: %w", id, err)
	}
	return nil
}
