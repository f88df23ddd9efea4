package benefit

import (
	"errors"
	"net/http"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

// Handler exposes discount and cashback endpoints.
type Handler struct {
	Svc *Service
}

// Resolve returns the benefit that applies to sender_id and recipient_id.
// Either id may be omitted.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	senderID, _ := common.QueryInt64(r, "sender_id")
	recipientID, _ := common.QueryInt64(r, "recipient_id")
	b, err := h.Svc.Resolve(r.Context(), senderID, recipientID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

// CreateDiscount adds a discount for a counterparty.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var in CreateDiscountInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	d, err := h.Svc.CreateDiscount(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": d})
}

// CreateCashback adds a cashback for a counterparty.
func (h *Handler) CreateCashback(w http.ResponseWriter, r *http.Request) {
	var in CreateCashbackInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.CreateCashback(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// DeleteDiscount deactivates a discount.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := common.URLParamInt64(r, "id")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid discount id", nil)
		return
	}
	if err := h.Svc.DeleteDiscount(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

// DeleteCashback deactivates a cashback.
func (h *Handler) DeleteCashback(w http.ResponseWriter, r *http.Request) {
	id, ok := common.URLParamInt64(r, "id")
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cashback id", nil)
		return
	}
	if err := h.Svc.DeleteCashback(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrUnknownCounterparty):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_REFERENCE", err.Error(), nil)
	case errors.Is(err, ErrPercentRange):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]string{"percent": "lte"})
	default:
		common.WriteError(w, err)
	}
}
