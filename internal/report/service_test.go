package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/cargo-backoffice/internal/cache"
	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

type fakeRepo struct {
	rows    []Row
	clauses []query.Clause
	err     error
}

func (f *fakeRepo) Rows(_ context.Context, clause query.Clause) ([]Row, error) {
	f.clauses = append(f.clauses, clause)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Queue: QueueReports, Type: task.Type()}, nil
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleRows() []Row {
	return []Row{
		{
			Number: "GR-00000001", CreatedAt: fixedNow, Branch: "North", Sender: "Acme", Recipient: "Globex",
			Weight: decimal.RequireFromString("12.5"), LineCount: 2, ProductCount: 1, BenefitKind: "discount",
			DiscountAmount: decimal.NewFromInt(20), Subtotal: decimal.NewFromInt(250), MarkupPercent: decimal.NewFromInt(10), Total: decimal.NewFromInt(253),
		},
		{
			Number: "GR-00000002", CreatedAt: fixedNow, Branch: "South", Sender: "Initech", Recipient: "Acme",
			Weight: decimal.NewFromInt(3), LineCount: 1, Subtotal: decimal.NewFromInt(300), Total: decimal.NewFromInt(300),
		},
	}
}

func newService(t *testing.T, repo *fakeRepo, queue *fakeQueue) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc := &Service{
		Repo:    repo,
		Store:   cache.New(rdb, time.Hour),
		MaxRows: 1000,
		TTL:     time.Hour,
		Now:     func() time.Time { return fixedNow },
	}
	if queue != nil {
		svc.Queue = queue
	}
	return svc, mr
}

func readSheet(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	return rows
}

func TestRenderXLSXWritesHeaderAndRows(t *testing.T) {
	data, err := RenderXLSX(sampleRows())
	require.NoError(t, err)

	rows := readSheet(t, data)
	require.Len(t, rows, 3)
	require.Equal(t, "Number", rows[0][0])
	require.Equal(t, "Total", rows[0][len(rows[0])-1])
	require.Equal(t, "GR-00000001", rows[1][0])
	require.Equal(t, "2026-03-01 09:30", rows[1][1])
	require.Equal(t, "12.5", rows[1][5])
	require.Equal(t, "253", rows[1][13])
	require.Equal(t, "South", rows[2][2])
}

func TestRenderXLSXEmpty(t *testing.T) {
	data, err := RenderXLSX(nil)
	require.NoError(t, err)
	require.Len(t, readSheet(t, data), 1)
}

func TestRowsIgnoresPaginationAndCapsRows(t *testing.T) {
	repo := &fakeRepo{rows: sampleRows()}
	svc, _ := newService(t, repo, nil)
	svc.MaxRows = 2

	p := query.Params{Filter: query.Eq("branch_id", 4), Page: 3, Limit: 25}
	rows, err := svc.Rows(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Len(t, repo.clauses, 1)
	c := repo.clauses[0]
	require.Equal(t, "g.branch_id = $1", c.Where)
	require.Equal(t, 2, c.Limit)
	require.Zero(t, c.Offset)
	require.Equal(t, "g.created_at DESC, g.id DESC", c.OrderBy)
}

func TestRowsRejectsUnknownField(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{}, nil)
	_, err := svc.Rows(context.Background(), query.Params{Filter: query.Eq("password", "x")})
	require.True(t, query.IsInvalid(err))
}

func TestExportLifecycle(t *testing.T) {
	repo := &fakeRepo{rows: sampleRows()}
	queue := &fakeQueue{}
	svc, _ := newService(t, repo, queue)
	ctx := context.Background()

	exp, err := svc.Enqueue(ctx, query.Params{Filter: query.Eq("branch_id", 4)}, "user-1")
	require.NoError(t, err)
	require.Equal(t, ExportPending, exp.Status)
	require.Equal(t, "user-1", exp.RequestedBy)
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TaskGoodsExport, queue.tasks[0].Type())

	_, _, err = svc.File(ctx, exp.ID)
	require.ErrorIs(t, err, ErrExportNotReady)

	require.NoError(t, svc.HandleExportTask(ctx, queue.tasks[0]))
	require.Equal(t, "g.branch_id = $1", repo.clauses[0].Where)

	data, done, err := svc.File(ctx, exp.ID)
	require.NoError(t, err)
	require.Equal(t, ExportReady, done.Status)
	require.Equal(t, 2, done.Rows)
	require.Equal(t, "user-1", done.RequestedBy)
	require.NotNil(t, done.FinishedAt)
	require.Len(t, readSheet(t, data), 3)
}

func TestExportExpires(t *testing.T) {
	queue := &fakeQueue{}
	svc, mr := newService(t, &fakeRepo{rows: sampleRows()}, queue)
	ctx := context.Background()

	exp, err := svc.Enqueue(ctx, query.Params{}, "")
	require.NoError(t, err)
	require.NoError(t, svc.HandleExportTask(ctx, queue.tasks[0]))

	mr.FastForward(2 * time.Hour)
	_, _, err = svc.File(ctx, exp.ID)
	require.ErrorIs(t, err, ErrExportNotFound)
}

func TestEnqueueFailureDropsStatus(t *testing.T) {
	svc, mr := newService(t, &fakeRepo{}, &fakeQueue{err: errors.New("redis down")})
	_, err := svc.Enqueue(context.Background(), query.Params{}, "")
	require.Error(t, err)
	require.Empty(t, mr.Keys())
}

func TestHandleExportTaskBadPayloadSkipsRetry(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{}, nil)
	err := svc.HandleExportTask(context.Background(), asynq.NewTask(TaskGoodsExport, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExportTaskInvalidQueryMarksFailed(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{}, nil)
	ctx := context.Background()
	task, err := NewExportTask(ExportPayload{ID: "exp-1", Query: "filter=%5B1%5D"})
	require.NoError(t, err)

	err = svc.HandleExportTask(ctx, task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	exp, found, err := svc.Status(ctx, "exp-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ExportFailed, exp.Status)
	require.NotEmpty(t, exp.Error)
}

func TestHandleExportTaskRetriesRepositoryErrors(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{err: errors.New("connection reset")}, nil)
	task, err := NewExportTask(ExportPayload{ID: "exp-2"})
	require.NoError(t, err)

	err = svc.HandleExportTask(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestNilServiceNotConfigured(t *testing.T) {
	var svc *Service
	_, err := svc.Rows(context.Background(), query.Params{})
	require.EqualError(t, err, "report service not configured")
}

func newRouter(svc *Service) http.Handler {
	h := &Handler{Svc: svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := common.WithPrincipal(r.Context(), common.Principal{UserID: "user-9", Role: "manager"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Get("/api/v1/reports/goods.xlsx", h.GoodsXLSX)
	r.Post("/api/v1/reports/goods/exports", h.CreateExport)
	r.Get("/api/v1/reports/exports/{id}", h.Download)
	return r
}

func TestHandlerSynchronousExport(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{rows: sampleRows()}, nil)
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/goods.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
	require.Len(t, readSheet(t, rec.Body.Bytes()), 3)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/goods.xlsx?filter=%5B%5D", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAsyncExport(t *testing.T) {
	queue := &fakeQueue{}
	svc, _ := newService(t, &fakeRepo{rows: sampleRows()}, queue)
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reports/goods/exports", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)
	require.Contains(t, rec.Body.String(), `"requested_by":"user-9"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, location, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "EXPORT_NOT_READY")

	require.NoError(t, svc.HandleExportTask(context.Background(), queue.tasks[0]))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, location, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/exports/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}
