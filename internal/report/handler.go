package report

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes report endpoints.
type Handler struct {
	Svc *Service
}

// GoodsXLSX streams a synchronous export.
func (h *Handler) GoodsXLSX(w http.ResponseWriter, r *http.Request) {
	p, err := query.FromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	data, n, err := h.Svc.Export(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(n))
	writeFile(w, "goods.xlsx", data)
}

// CreateExport queues an asynchronous export.
func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	p, err := query.FromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	actor, _ := common.PrincipalFrom(r.Context())
	exp, err := h.Svc.Enqueue(r.Context(), p, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/reports/exports/"+exp.ID)
	common.JSON(w, http.StatusAccepted, map[string]any{"data": exp})
}

// Download returns a finished export, or 404 while it is still running.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, exp, err := h.Svc.File(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrExportNotReady) {
			common.JSONError(w, http.StatusNotFound, "EXPORT_NOT_READY", "export is not ready", exp)
			return
		}
		writeError(w, err)
		return
	}
	writeFile(w, fmt.Sprintf("goods-%s.xlsx", exp.ID), data)
}

func writeFile(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrExportNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "export not found", nil)
	case query.IsInvalid(err):
		common.WriteError(w, query.InvalidError(err))
	default:
		common.WriteError(w, err)
	}
}
