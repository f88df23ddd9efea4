package queue

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

// Inspector is the subset of *asynq.Inspector used by the admin endpoints.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunTask(queue, id string) error
	RunAllArchivedTasks(queue string) (int, error)
}

// AdminHandler exposes queue statistics and dead task replay.
type AdminHandler struct {
	Inspector Inspector
	// Queues lists the queue names an admin may inspect.
	Queues   []string
	PageSize int
	Logger   zerolog.Logger
}

type queueStats struct {
	Queue     string  `json:"queue"`
	Pending   int     `json:"pending"`
	Active    int     `json:"active"`
	Scheduled int     `json:"scheduled"`
	Retry     int     `json:"retry"`
	Archived  int     `json:"archived"`
	Completed int     `json:"completed"`
	Processed int     `json:"processed_today"`
	Failed    int     `json:"failed_today"`
	LatencyMS float64 `json:"latency_ms"`
	Paused    bool    `json:"paused"`
}

type archivedItem struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Payload      string     `json:"payload"`
	Retried      int        `json:"retried"`
	MaxRetry     int        `json:"max_retry"`
	LastError    string     `json:"last_error,omitempty"`
	LastFailedAt *time.Time `json:"last_failed_at,omitempty"`
}

type replayRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// Stats returns per-queue counters.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out := make([]queueStats, 0, len(h.Queues))
	for _, name := range h.Queues {
		info, err := h.Inspector.GetQueueInfo(name)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				out = append(out, queueStats{Queue: name})
				continue
			}
			h.Logger.Error().Err(err).Str("queue", name).Msg("queue_stats_failed")
			common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "queue backend unavailable", nil)
			return
		}
		if QueueSize != nil {
			QueueSize.WithLabelValues(name, "pending").Set(float64(info.Pending))
			QueueSize.WithLabelValues(name, "archived").Set(float64(info.Archived))
		}
		out = append(out, queueStats{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Completed: info.Completed,
			Processed: info.Processed,
			Failed:    info.Failed,
			LatencyMS: float64(info.Latency) / float64(time.Millisecond),
			Paused:    info.Paused,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Archived lists tasks that exhausted their retries.
func (h *AdminHandler) Archived(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	name, ok := h.queueParam(w, r)
	if !ok {
		return
	}
	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	tasks, err := h.Inspector.ListArchivedTasks(name, asynq.PageSize(h.pageSize()), asynq.Page(page))
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		h.Logger.Error().Err(err).Str("queue", name).Msg("queue_archived_failed")
		common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "queue backend unavailable", nil)
		return
	}
	items := make([]archivedItem, 0, len(tasks))
	for _, t := range tasks {
		item := archivedItem{
			ID:        t.ID,
			Type:      t.Type,
			Payload:   string(t.Payload),
			Retried:   t.Retried,
			MaxRetry:  t.MaxRetry,
			LastError: t.LastErr,
		}
		if !t.LastFailedAt.IsZero() {
			at := t.LastFailedAt.UTC()
			item.LastFailedAt = &at
		}
		items = append(items, item)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "queue": name, "page": page})
}

// Replay moves archived tasks back to pending, either by ID or all at once.
func (h *AdminHandler) Replay(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	name, ok := h.queueParam(w, r)
	if !ok {
		return
	}
	var req replayRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ids := uniqueStrings(req.IDs)
	if !req.All && len(ids) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids or all required", nil)
		return
	}

	if req.All {
		n, err := h.Inspector.RunAllArchivedTasks(name)
		if err != nil {
			common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", err.Error(), nil)
			return
		}
		h.Logger.Info().Str("queue", name).Int("count", n).Msg("queue_replayed_all")
		common.JSON(w, http.StatusOK, map[string]any{"replayed": n})
		return
	}

	replayed := make([]string, 0, len(ids))
	failed := make(map[string]string)
	for _, id := range ids {
		if err := h.Inspector.RunTask(name, id); err != nil {
			failed[id] = err.Error()
			continue
		}
		replayed = append(replayed, id)
	}
	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	h.Logger.Info().Str("queue", name).Int("count", len(replayed)).Msg("queue_replayed")
	common.JSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return false
	}
	return true
}

func (h *AdminHandler) queueParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(chi.URLParam(r, "queue"))
	for _, q := range h.Queues {
		if q == name {
			return name, true
		}
	}
	common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown queue", nil)
	return "", false
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
