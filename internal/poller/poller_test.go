// internal/poller/poller_test.go
package poller

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-worker/internal/common/logger"
	"report-worker/internal/models"
	"report-worker/internal/notify"
)

type fakeQueueStore struct {
	items    []models.QueueItem
	fetchErr error

	fetchWatermarks []int64
	queueStatus     map[int64][]models.QueueStatus
	resultStatus    map[int64]models.ResultStatus
	completedPaths  map[int64]string
}

func newFakeQueueStore(items ...models.QueueItem) *fakeQueueStore {
	return &fakeQueueStore{
		items:          items,
		queueStatus:    make(map[int64][]models.QueueStatus),
		resultStatus:   make(map[int64]models.ResultStatus),
		completedPaths: make(map[int64]string),
	}
}

func (f *fakeQueueStore) FetchPending(ctx context.Context, lastProcessedID int64) ([]models.QueueItem, error) {
	f.fetchWatermarks = append(f.fetchWatermarks, lastProcessedID)
	return f.items, f.fetchErr
}

func (f *fakeQueueStore) UpdateQueueItemStatus(ctx context.Context, id int64, status models.QueueStatus) error {
	f.queueStatus[id] = append(f.queueStatus[id], status)
	return nil
}

func (f *fakeQueueStore) UpdateIndividualResultStatus(ctx context.Context, id int64, status models.ResultStatus) error {
	f.resultStatus[id] = status
	return nil
}

func (f *fakeQueueStore) CompleteIndividualResult(ctx context.Context, id int64, path string, result json.RawMessage) error {
	f.resultStatus[id] = models.ResultCompleted
	f.completedPaths[id] = path
	return nil
}

type fakeArchive struct {
	rows    []map[string]interface{}
	err     error
	queries []string
}

func (f *fakeArchive) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	f.queries = append(f.queries, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.rows, f.err
}

type fakeRenderer struct {
	err         error
	tableCalls  []string
	chartCalls  []string
	chartLabels []string
	chartValues []float64
}

func (f *fakeRenderer) RenderTable(p *models.ReportPayload, rows []map[string]interface{}) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.tableCalls = append(f.tableCalls, p.ReportName)
	return "/reports/" + p.ReportName + ".pdf", nil
}

func (f *fakeRenderer) RenderChart(p *models.ReportPayload, labels []string, values []float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.chartCalls = append(f.chartCalls, p.ReportName)
	f.chartLabels = labels
	f.chartValues = values
	return "/reports/" + p.ReportName + ".pdf", nil
}

type fakeNotifier struct {
	err     error
	batches [][]notify.CompletedReport
}

func (f *fakeNotifier) SendBatch(ctx context.Context, reports []notify.CompletedReport) error {
	f.batches = append(f.batches, reports)
	return f.err
}

func newTestPoller(t *testing.T, store Store, querier Archive, renderer *fakeRenderer, notifier *fakeNotifier) *Poller {
	t.Helper()
	return New(store, querier, renderer, notifier, logger.NewTestLogger(t), time.Second, 0)
}

func encodePayload(t *testing.T, p models.ReportPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func tablePayload(t *testing.T, name string, resultID int64) json.RawMessage {
	return encodePayload(t, models.ReportPayload{
		DBName:     "archive",
		Table:      "events",
		Columns:    []string{"region", "count(*) as cnt"},
		GroupBy:    "region",
		ReportName: name,
		MailTo:     []string{"ops@example.com"},
		ResultID:   resultID,
	})
}

func TestTick_ProcessesBatchAndSendsOneMail(t *testing.T) {
	store := newFakeQueueStore(
		models.QueueItem{ID: 5, Status: models.QueuePending, Payload: tablePayload(t, "r5", 51)},
		models.QueueItem{ID: 7, Status: models.QueuePending, Payload: tablePayload(t, "r7", 71)},
	)
	querier := &fakeArchive{rows: []map[string]interface{}{{"region": "eu-west", "cnt": uint64(3)}}}
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{}
	p := newTestPoller(t, store, querier, renderer, notifier)

	p.Tick(context.Background())

	assert.Equal(t, int64(7), p.lastProcessedID)
	assert.Equal(t,
		[]models.QueueStatus{models.QueueProcessing, models.QueueDone}, store.queueStatus[5])
	assert.Equal(t,
		[]models.QueueStatus{models.QueueProcessing, models.QueueDone}, store.queueStatus[7])
	assert.Equal(t, models.ResultCompleted, store.resultStatus[51])
	assert.Equal(t, "/reports/r5.pdf", store.completedPaths[51])
	assert.Len(t, querier.queries, 2)

	// One batch mail for the whole tick, carrying both artifacts.
	require.Len(t, notifier.batches, 1)
	require.Len(t, notifier.batches[0], 2)
	assert.Equal(t, "r5", notifier.batches[0][0].ReportName)
	assert.Equal(t, []string{"ops@example.com"}, notifier.batches[0][0].MailTo)
}

func TestTick_NextFetchUsesWatermark(t *testing.T) {
	store := newFakeQueueStore(
		models.QueueItem{ID: 9, Status: models.QueuePending, Payload: tablePayload(t, "r9", 91)},
	)
	p := newTestPoller(t, store, &fakeArchive{}, &fakeRenderer{}, &fakeNotifier{})

	p.Tick(context.Background())
	p.Tick(context.Background())

	assert.Equal(t, []int64{0, 9}, store.fetchWatermarks)
}

func TestTick_RowFailureMarksOnlyItsResult(t *testing.T) {
	store := newFakeQueueStore(
		models.QueueItem{ID: 3, Status: models.QueuePending, Payload: tablePayload(t, "bad", 31)},
		models.QueueItem{ID: 4, Status: models.QueuePending, Payload: tablePayload(t, "good", 41)},
	)
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{}

	// First query fails, second succeeds.
	seq := &sequencedArchive{errs: []error{stderrors.New("clickhouse: connection refused"), nil}}
	p := newTestPoller(t, store, seq, renderer, notifier)
	p.Tick(context.Background())

	// The failed item flips to error and its result row is marked; the
	// sibling still completes and the watermark covers both.
	assert.Equal(t,
		[]models.QueueStatus{models.QueueProcessing, models.QueueError}, store.queueStatus[3])
	assert.Equal(t, models.ResultError, store.resultStatus[31])
	assert.Equal(t,
		[]models.QueueStatus{models.QueueProcessing, models.QueueDone}, store.queueStatus[4])
	assert.Equal(t, models.ResultCompleted, store.resultStatus[41])
	assert.Equal(t, int64(4), p.lastProcessedID)

	require.Len(t, notifier.batches, 1)
	require.Len(t, notifier.batches[0], 1)
	assert.Equal(t, "good", notifier.batches[0][0].ReportName)
}

type sequencedArchive struct {
	errs []error
	call int
}

func (s *sequencedArchive) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	err := error(nil)
	if s.call < len(s.errs) {
		err = s.errs[s.call]
	}
	s.call++
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"region": "eu-west", "cnt": uint64(1)}}, nil
}

func TestTick_InvalidPayloadNeverQueries(t *testing.T) {
	store := newFakeQueueStore(
		models.QueueItem{ID: 2, Status: models.QueuePending, Payload: json.RawMessage(`{"report_name": ""}`)},
	)
	querier := &fakeArchive{}
	notifier := &fakeNotifier{}
	p := newTestPoller(t, store, querier, &fakeRenderer{}, notifier)

	p.Tick(context.Background())

	assert.Empty(t, querier.queries)
	assert.Equal(t,
		[]models.QueueStatus{models.QueueProcessing, models.QueueError}, store.queueStatus[2])
	assert.Empty(t, notifier.batches)
	assert.Equal(t, int64(2), p.lastProcessedID)
}

func TestTick_ChartedItemUsesChartRenderer(t *testing.T) {
	payload := encodePayload(t, models.ReportPayload{
		DBName:     "archive",
		Table:      "events",
		Columns:    []string{"region", "count(*) as cnt"},
		GroupBy:    "region",
		ReportName: "charted",
		IsCharted:  true,
		ChartType:  "bar",
		ResultID:   61,
	})
	store := newFakeQueueStore(models.QueueItem{ID: 6, Status: models.QueuePending, Payload: payload})
	querier := &fakeArchive{rows: []map[string]interface{}{
		{"region": "eu-west", "cnt": uint64(3)},
		{"region": "us-east", "cnt": uint64(5)},
	}}
	renderer := &fakeRenderer{}
	p := newTestPoller(t, store, querier, renderer, &fakeNotifier{})

	p.Tick(context.Background())

	assert.Empty(t, renderer.tableCalls)
	require.Equal(t, []string{"charted"}, renderer.chartCalls)
	assert.Equal(t, []string{"eu-west", "us-east"}, renderer.chartLabels)
	assert.Equal(t, []float64{3, 5}, renderer.chartValues)
	assert.Equal(t, models.ResultCompleted, store.resultStatus[61])
}

func TestTick_SkipsWhileBusy(t *testing.T) {
	store := newFakeQueueStore(
		models.QueueItem{ID: 1, Status: models.QueuePending, Payload: tablePayload(t, "r1", 11)},
	)
	p := newTestPoller(t, store, &fakeArchive{}, &fakeRenderer{}, &fakeNotifier{})

	p.busy.Store(true)
	p.Tick(context.Background())

	assert.Empty(t, store.fetchWatermarks)
}

func TestTick_MailFailureDoesNotFailBatch(t *testing.T) {
	store := newFakeQueueStore(
		models.QueueItem{ID: 8, Status: models.QueuePending, Payload: tablePayload(t, "r8", 81)},
	)
	notifier := &fakeNotifier{err: stderrors.New("smtp: 451 try again later")}
	p := newTestPoller(t, store, &fakeArchive{}, &fakeRenderer{}, notifier)

	p.Tick(context.Background())

	// Artifact and result row stay completed even though delivery failed.
	assert.Equal(t, models.ResultCompleted, store.resultStatus[81])
	assert.Equal(t,
		[]models.QueueStatus{models.QueueProcessing, models.QueueDone}, store.queueStatus[8])
}
