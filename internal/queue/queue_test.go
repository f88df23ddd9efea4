package queue_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cargo-backoffice/internal/queue"
)

type fakeInspector struct {
	info     map[string]*asynq.QueueInfo
	archived map[string][]*asynq.TaskInfo
	ran      []string
	runAll   int
}

func (f *fakeInspector) GetQueueInfo(name string) (*asynq.QueueInfo, error) {
	info, ok := f.info[name]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (f *fakeInspector) ListArchivedTasks(name string, _ ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.archived[name], nil
}

func (f *fakeInspector) RunTask(name, id string) error {
	for _, t := range f.archived[name] {
		if t.ID == id {
			f.ran = append(f.ran, id)
			return nil
		}
	}
	return fmt.Errorf("task %s: %w", id, asynq.ErrTaskNotFound)
}

func (f *fakeInspector) RunAllArchivedTasks(name string) (int, error) {
	f.runAll = len(f.archived[name])
	return f.runAll, nil
}

func newAdminRouter(insp queue.Inspector) http.Handler {
	h := &queue.AdminHandler{Inspector: insp, Queues: []string{"reports"}, Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Get("/queues", h.Stats)
	r.Get("/queues/{queue}/archived", h.Archived)
	r.Post("/queues/{queue}/replay", h.Replay)
	return r
}

func TestInstrumentRecordsResults(t *testing.T) {
	queue.MustRegisterMetrics("cargo", prometheus.NewRegistry())
	queue.TasksProcessed.Reset()

	mw := queue.Instrument(zerolog.Nop())
	ok := mw(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	skip := mw(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	}))
	retry := mw(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return errors.New("db down") }))

	task := asynq.NewTask("report:goods_export", nil)
	require.NoError(t, ok.ProcessTask(context.Background(), task))
	require.ErrorIs(t, skip.ProcessTask(context.Background(), task), asynq.SkipRetry)
	require.Error(t, retry.ProcessTask(context.Background(), task))

	require.Equal(t, 1.0, testutil.ToFloat64(queue.TasksProcessed.WithLabelValues("report:goods_export", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(queue.TasksProcessed.WithLabelValues("report:goods_export", "skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(queue.TasksProcessed.WithLabelValues("report:goods_export", "retry")))
}

func TestStatsReportsKnownQueues(t *testing.T) {
	insp := &fakeInspector{info: map[string]*asynq.QueueInfo{
		"reports": {Queue: "reports", Pending: 3, Archived: 1, Latency: 1500 * time.Millisecond},
	}}
	rec := httptest.NewRecorder()
	newAdminRouter(insp).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.EqualValues(t, 3, body.Data[0]["pending"])
	require.EqualValues(t, 1500, body.Data[0]["latency_ms"])
}

func TestArchivedAndReplay(t *testing.T) {
	failedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	insp := &fakeInspector{archived: map[string][]*asynq.TaskInfo{
		"reports": {{ID: "exp-1", Type: "report:goods_export", Payload: []byte(`{"id":"exp-1"}`), LastErr: "boom", LastFailedAt: failedAt, MaxRetry: 3, Retried: 3}},
	}}
	router := newAdminRouter(insp)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues/reports/archived", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"last_error":"boom"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queues/reports/replay", bytes.NewBufferString(`{"ids":["exp-1","exp-1","missing"]}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"exp-1"}, insp.ran)
	require.Contains(t, rec.Body.String(), `"missing"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queues/reports/replay", bytes.NewBufferString(`{"all":true}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, insp.runAll)
}

func TestAdminRejectsUnknownQueueAndEmptyReplay(t *testing.T) {
	router := newAdminRouter(&fakeInspector{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues/default/archived", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queues/reports/replay", bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newAdminRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
