package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/cache"
	"github.com/noah-isme/cargo-backoffice/internal/goods"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

const defaultMaxRows = 50000

// Service builds goods reports and runs asynchronous exports.
type Service struct {
	Repo    Repository
	Store   *cache.Cache
	Queue   Enqueuer
	MaxRows int
	TTL     time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (s *Service) ready() error {
	if s == nil || s.Repo == nil {
		return errors.New("report service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Rows returns report rows matching p. Pagination is ignored; at most
// MaxRows rows are returned.
func (s *Service) Rows(ctx context.Context, p query.Params) ([]Row, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	clause, err := p.Compile(goods.Columns, "g.created_at DESC, g.id DESC")
	if err != nil {
		return nil, err
	}
	clause.Limit = s.MaxRows
	if clause.Limit <= 0 {
		clause.Limit = defaultMaxRows
	}
	clause.Offset = 0
	return s.Repo.Rows(ctx, clause)
}

// Export renders the matching rows as XLSX.
func (s *Service) Export(ctx context.Context, p query.Params) ([]byte, int, error) {
	start := time.Now()
	rows, err := s.Rows(ctx, p)
	if err != nil {
		obs.ObserveReportExport("xlsx", "error", time.Since(start))
		return nil, 0, err
	}
	data, err := RenderXLSX(rows)
	if err != nil {
		obs.ObserveReportExport("xlsx", "error", time.Since(start))
		return nil, 0, fmt.Errorf("render report: %w", err)
	}
	obs.ObserveReportExport("xlsx", "ok", time.Since(start))
	return data, len(rows), nil
}

// Enqueue records a pending export and schedules it on the worker queue.
func (s *Service) Enqueue(ctx context.Context, p query.Params, requestedBy string) (Export, error) {
	if err := s.ready(); err != nil {
		return Export{}, err
	}
	if s.Queue == nil {
		return Export{}, errors.New("report queue not configured")
	}
	if _, err := p.Compile(goods.Columns, ""); err != nil {
		return Export{}, err
	}
	values, err := p.Values()
	if err != nil {
		return Export{}, err
	}
	exp := Export{
		ID:          uuid.NewString(),
		Status:      ExportPending,
		Query:       values.Encode(),
		RequestedBy: requestedBy,
		CreatedAt:   s.now(),
	}
	if err := s.saveStatus(ctx, exp); err != nil {
		return Export{}, err
	}
	task, err := NewExportTask(ExportPayload{ID: exp.ID, Query: exp.Query})
	if err != nil {
		return Export{}, err
	}
	if _, err := s.Queue.EnqueueContext(ctx, task, asynq.TaskID(exp.ID)); err != nil {
		_ = s.Store.Delete(ctx, cache.KeyReportExport(exp.ID))
		return Export{}, fmt.Errorf("enqueue export: %w", err)
	}
	s.Logger.Info().Str("export_id", exp.ID).Str("requested_by", requestedBy).Msg("report export queued")
	return exp, nil
}

// HandleExportTask is the asynq handler for TaskGoodsExport.
func (s *Service) HandleExportTask(ctx context.Context, t *asynq.Task) error {
	var p ExportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode export payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.ID == "" {
		return fmt.Errorf("export payload without id: %w", asynq.SkipRetry)
	}
	values, err := url.ParseQuery(p.Query)
	if err != nil {
		return s.fail(ctx, p.ID, fmt.Errorf("parse export query: %w", err))
	}
	params, err := query.ParseParams(values)
	if err != nil {
		return s.fail(ctx, p.ID, err)
	}

	exp, found, err := s.Status(ctx, p.ID)
	if err != nil {
		return err
	}
	if !found {
		exp = Export{ID: p.ID, Query: p.Query, CreatedAt: s.now()}
	}

	data, n, err := s.Export(ctx, params)
	if err != nil {
		if query.IsInvalid(err) {
			return s.fail(ctx, p.ID, err)
		}
		return err
	}
	if err := s.Store.SetBytes(ctx, cache.KeyReportExportFile(p.ID), data, s.TTL); err != nil {
		return fmt.Errorf("store export file: %w", err)
	}
	finished := s.now()
	exp.Status = ExportReady
	exp.Rows = n
	exp.Error = ""
	exp.FinishedAt = &finished
	if err := s.saveStatus(ctx, exp); err != nil {
		return err
	}
	s.Logger.Info().Str("export_id", p.ID).Int("rows", n).Int("bytes", len(data)).Msg("report export ready")
	return nil
}

// fail marks the export failed and stops retries.
func (s *Service) fail(ctx context.Context, id string, cause error) error {
	finished := s.now()
	exp, found, err := s.Status(ctx, id)
	if err != nil || !found {
		exp = Export{ID: id, CreatedAt: finished}
	}
	exp.Status = ExportFailed
	exp.Error = cause.Error()
	exp.FinishedAt = &finished
	if err := s.saveStatus(ctx, exp); err != nil {
		s.Logger.Error().Err(err).Str("export_id", id).Msg("save failed export status")
	}
	s.Logger.Warn().Err(cause).Str("export_id", id).Msg("report export failed")
	return fmt.Errorf("%v: %w", cause, asynq.SkipRetry)
}

// Status returns the stored export state.
func (s *Service) Status(ctx context.Context, id string) (Export, bool, error) {
	var exp Export
	found, err := s.Store.GetJSON(ctx, cache.KeyReportExport(id), &exp)
	if err != nil {
		return Export{}, false, fmt.Errorf("load export status: %w", err)
	}
	return exp, found, nil
}

// File returns the rendered workbook of a finished export.
func (s *Service) File(ctx context.Context, id string) ([]byte, Export, error) {
	exp, found, err := s.Status(ctx, id)
	if err != nil {
		return nil, Export{}, err
	}
	if !found {
		return nil, Export{}, ErrExportNotFound
	}
	if exp.Status != ExportReady {
		return nil, exp, ErrExportNotReady
	}
	data, found, err := s.Store.GetBytes(ctx, cache.KeyReportExportFile(id))
	if err != nil {
		return nil, exp, fmt.Errorf("load export file: %w", err)
	}
	if !found {
		return nil, exp, ErrExportNotFound
	}
	return data, exp, nil
}

func (s *Service) saveStatus(ctx context.Context, exp Export) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	if err := s.Store.SetBytes(ctx, cache.KeyReportExport(exp.ID), data, s.TTL); err != nil {
		return fmt.Errorf("save export status: %w", err)
	}
	return nil
}
