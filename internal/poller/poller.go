// Package poller is the queue-draining loop: it picks up pending report
// requests, runs them against the archive store, renders the artifacts and
// hands the finished batch to the notifier.
package poller

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"report-worker/internal/archive"
	"report-worker/internal/common/errors"
	"report-worker/internal/common/logger"
	"report-worker/internal/common/metrics"
	"report-worker/internal/models"
	"report-worker/internal/notify"
	"report-worker/internal/render"
)

// Store is the subset of the queue store the poller needs.
type Store interface {
	FetchPending(ctx context.Context, lastProcessedID int64) ([]models.QueueItem, error)
	UpdateQueueItemStatus(ctx context.Context, id int64, status models.QueueStatus) error
	UpdateIndividualResultStatus(ctx context.Context, id int64, status models.ResultStatus) error
	CompleteIndividualResult(ctx context.Context, id int64, path string, result json.RawMessage) error
}

// Archive runs a query against the analytical store and returns its rows.
type Archive interface {
	ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error)
}

// Poller drains the queue on a fixed interval. Items are processed strictly
// sequentially within a batch, and a tick that arrives while a batch is still
// in flight is skipped rather than queued.
type Poller struct {
	store    Store
	querier  Archive
	renderer render.Renderer
	notifier notify.Notifier
	logger   logger.Logger

	interval     time.Duration
	queryTimeout time.Duration // 0 disables the per-item timeout

	busy atomic.Bool

	// lastProcessedID is the fetch watermark. It advances to the highest id of
	// every fetched batch before any item is processed, so a failing item is
	// never re-fetched.
	lastProcessedID int64
}

func New(store Store, querier Archive, renderer render.Renderer, notifier notify.Notifier,
	log logger.Logger, interval, queryTimeout time.Duration) *Poller {
	return &Poller{
		store:        store,
		querier:      querier,
		renderer:     renderer,
		notifier:     notifier,
		logger:       log.WithFields(map[string]interface{}{"component": "poller"}),
		interval:     interval,
		queryTimeout: queryTimeout,
	}
}

// Run ticks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("queue poller started", map[string]interface{}{
		"interval": p.interval.String(),
	})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue poller stopped", nil)
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick drains one batch of pending queue items. At most one batch runs at a
// time; overlapping ticks are counted and dropped.
func (p *Poller) Tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		metrics.TicksSkipped.Inc()
		p.logger.Debug("batch still in flight, skipping tick", nil)
		return
	}
	defer p.busy.Store(false)

	items, err := p.store.FetchPending(ctx, p.lastProcessedID)
	if err != nil {
		p.logger.WithError(err).Error("failed to fetch pending queue items", nil)
		return
	}
	if len(items) == 0 {
		return
	}

	batchID := uuid.NewString()
	start := time.Now()
	metrics.BatchSize.Observe(float64(len(items)))
	p.logger.Info("processing batch", map[string]interface{}{
		"batchId": batchID,
		"items":   len(items),
	})

	// Advance the watermark before touching any item: a poisoned payload must
	// not be fetched again on the next tick.
	p.lastProcessedID = items[len(items)-1].ID

	var completed []notify.CompletedReport
	for _, item := range items {
		report, err := p.processItem(ctx, &item)
		if err != nil {
			metrics.ReportsFailed.WithLabelValues(string(errors.CodeOf(err))).Inc()
			p.logger.WithError(err).Error("queue item failed", map[string]interface{}{
				"batchId":     batchID,
				"queueItemId": item.ID,
			})
			continue
		}
		completed = append(completed, *report)
	}

	p.sendBatchMail(ctx, batchID, completed)

	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("batch finished", map[string]interface{}{
		"batchId":   batchID,
		"items":     len(items),
		"completed": len(completed),
	})
}

// sendBatchMail delivers one message for the whole batch. A mail failure is
// logged, not propagated: the artifacts already exist on disk and the result
// rows are already completed.
func (p *Poller) sendBatchMail(ctx context.Context, batchID string, completed []notify.CompletedReport) {
	if len(completed) == 0 {
		return
	}
	if err := p.notifier.SendBatch(ctx, completed); err != nil {
		metrics.MailBatchesSent.WithLabelValues("error").Inc()
		p.logger.WithError(errors.NewNotificationError(err)).Error("batch mail failed", map[string]interface{}{
			"batchId": batchID,
			"reports": len(completed),
		})
		return
	}
	metrics.MailBatchesSent.WithLabelValues("ok").Inc()
}

// processItem runs one queue item end to end and flips its lifecycle states.
// Failures mark the item's individual result row; sibling items and the
// parent report run are untouched.
func (p *Poller) processItem(ctx context.Context, item *models.QueueItem) (*notify.CompletedReport, error) {
	if err := p.store.UpdateQueueItemStatus(ctx, item.ID, models.QueueProcessing); err != nil {
		return nil, err
	}

	payload, report, err := p.runItem(ctx, item)
	if err != nil {
		if statusErr := p.store.UpdateQueueItemStatus(ctx, item.ID, models.QueueError); statusErr != nil {
			p.logger.WithError(statusErr).Error("failed to mark queue item errored", map[string]interface{}{
				"queueItemId": item.ID,
			})
		}
		if payload != nil && payload.ResultID > 0 {
			if statusErr := p.store.UpdateIndividualResultStatus(ctx, payload.ResultID, models.ResultError); statusErr != nil {
				p.logger.WithError(statusErr).Error("failed to mark individual result errored", map[string]interface{}{
					"resultId": payload.ResultID,
				})
			}
		}
		return nil, err
	}

	if err := p.store.UpdateQueueItemStatus(ctx, item.ID, models.QueueDone); err != nil {
		return nil, err
	}
	return report, nil
}

func (p *Poller) runItem(ctx context.Context, item *models.QueueItem) (*models.ReportPayload, *notify.CompletedReport, error) {
	payload, err := models.ParsePayload(item.Payload)
	if err != nil {
		return nil, nil, errors.NewPayloadInvalidError(err.Error())
	}
	if err := models.ValidatePayload(item.Payload); err != nil {
		return payload, nil, errors.NewPayloadInvalidError(err.Error())
	}

	rows, err := p.query(ctx, payload)
	if err != nil {
		return payload, nil, err
	}

	var path string
	if payload.IsCharted.Bool() {
		labels, values, err := ExtractChartSeries(payload, rows)
		if err != nil {
			return payload, nil, err
		}
		if path, err = p.renderer.RenderChart(payload, labels, values); err != nil {
			return payload, nil, errors.NewRenderError(err)
		}
	} else {
		if path, err = p.renderer.RenderTable(payload, rows); err != nil {
			return payload, nil, errors.NewRenderError(err)
		}
	}

	if payload.ResultID > 0 {
		result, err := json.Marshal(rows)
		if err != nil {
			return payload, nil, errors.NewRenderError(err)
		}
		if err := p.store.CompleteIndividualResult(ctx, payload.ResultID, path, result); err != nil {
			return payload, nil, err
		}
	}

	metrics.ReportsProcessed.WithLabelValues(chartedLabel(payload)).Inc()
	p.logger.Info("report rendered", map[string]interface{}{
		"queueItemId": item.ID,
		"reportName":  payload.ReportName,
		"path":        path,
		"rows":        len(rows),
	})

	return payload, &notify.CompletedReport{
		ReportName: payload.ReportName,
		Path:       path,
		MailTo:     payload.MailTo,
		SMTP:       payload.SMTP,
	}, nil
}

func (p *Poller) query(ctx context.Context, payload *models.ReportPayload) ([]map[string]interface{}, error) {
	queryText := archive.BuildSelectQuery(payload)

	queryCtx := ctx
	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}

	rows, err := p.querier.ExecuteQuery(queryCtx, queryText)
	if err != nil {
		if stderrors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			return nil, &errors.StandardError{
				Code:      errors.ErrCodeQueryTimeout,
				Message:   "Archive query exceeded the configured timeout",
				Details:   err.Error(),
				Retryable: true,
				Timestamp: time.Now().UTC(),
			}
		}
		return nil, errors.NewQueryExecutionError(err)
	}
	return rows, nil
}

func chartedLabel(p *models.ReportPayload) string {
	if p.IsCharted.Bool() {
		return "true"
	}
	return "false"
}
