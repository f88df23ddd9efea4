package goods

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/lock"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Handler exposes goods endpoints.
type Handler struct {
	Svc *Service
}

// Quote prices a draft record without storing it.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.Svc.Quote(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	actor, _ := common.PrincipalFrom(r.Context())
	rec, err := h.Svc.Create(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/goods/"+rec.ID.String())
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	actor, _ := common.PrincipalFrom(r.Context())
	rec, err := h.Svc.Update(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
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
		items = []Record{}
	}
	common.WriteList(w, items, common.NewPagination(p.Page, p.Limit, p.EffectiveOffset(), total))
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid goods id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrVersionConflict):
		common.JSONError(w, http.StatusConflict, "VERSION_CONFLICT", err.Error(), nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "RECORD_LOCKED", "goods record is being edited", nil)
	case errors.Is(err, pricing.ErrProductUnavailable):
		common.JSONError(w, http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, pricing.ErrProductNotEditable):
		common.JSONError(w, http.StatusUnprocessableEntity, "PRODUCT_NOT_EDITABLE", err.Error(), nil)
	case errors.Is(err, pricing.ErrLineNotFound), errors.Is(err, pricing.ErrProductNotFound):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_LINE", err.Error(), nil)
	case errors.Is(err, pricing.ErrNegativeWeight), errors.Is(err, pricing.ErrNegativeQuantity):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, ErrUnknownNomenclature), errors.Is(err, ErrUnknownReference):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_REFERENCE", err.Error(), nil)
	case query.IsInvalid(err):
		common.WriteError(w, query.InvalidError(err))
	default:
		common.WriteError(w, err)
	}
}
