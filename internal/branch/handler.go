package branch

import (
	"errors"
	"net/http"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

type Handler struct {
	Svc *Service
}

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
		items = []Branch{}
	}
	common.WriteList(w, items, common.NewPagination(p.Page, p.Limit, p.EffectiveOffset(), total))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": b})
}

func (h *Handler) Nomenclature(w http.ResponseWriter, r *http.Request) {
	id, ok := common.URLParamInt64(r, "id")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid branch id", nil)
		return
	}
	if _, err := h.Svc.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	ids, err := h.Svc.NomenclatureIDs(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"branch_id": id, "nomenclature_ids": ids}})
}

func (h *Handler) SaveNomenclature(w http.ResponseWriter, r *http.Request) {
	id, ok := common.URLParamInt64(r, "id")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid branch id", nil)
		return
	}
	var in NomenclatureInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Svc.SaveNomenclature(r.Context(), id, in.NomenclatureIDs); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrDuplicateCode):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrUnknownNomenclature):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_REFERENCE", err.Error(), nil)
	case query.IsInvalid(err):
		common.WriteError(w, query.InvalidError(err))
	default:
		common.WriteError(w, err)
	}
}
