package tariff

import (
	"errors"
	"net/http"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Handler exposes tariff endpoints.
type Handler struct {
	Svc *Service
}

type upsertRequest struct {
	Tariffs []UpsertInput `json:"tariffs" validate:"required,min=1,max=500,dive"`
}

// List returns tariffs matching the filter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, err := query.FromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	items, total, err := h.Svc.List(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []Tariff{}
	}
	common.WriteList(w, items, common.NewPagination(p.Page, p.Limit, p.EffectiveOffset(), total))
}

// Upsert creates or replaces tariff prices.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	saved, err := h.Svc.Upsert(r.Context(), req.Tariffs)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

// Delete removes a tariff by id.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := common.URLParamInt64(r, "id")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tariff id", nil)
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

// Lookup resolves the price for branch_id and product_type_id.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	branchID, ok := common.QueryInt64(r, "branch_id")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "branch_id is required", nil)
		return
	}
	productTypeID, ok := common.QueryInt64(r, "product_type_id")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "product_type_id is required", nil)
		return
	}
	res, err := h.Svc.Lookup(r.Context(), branchID, productTypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "tariff not found", nil)
	case errors.Is(err, ErrUnknownReference):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_REFERENCE", err.Error(), nil)
	case query.IsInvalid(err):
		common.WriteError(w, query.InvalidError(err))
	default:
		common.WriteError(w, err)
	}
}
