package audit

import (
	"net/http"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Handler exposes HTTP endpoints for working with audit logs.
type Handler struct {
	Svc *Service
}

// List returns a filtered page of audit logs for administrators.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	p, err := query.FromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	items, total, err := h.Svc.List(r.Context(), p)
	if err != nil {
		if query.IsInvalid(err) {
			common.WriteError(w, query.InvalidError(err))
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	if items == nil {
		items = []Entry{}
	}
	common.WriteList(w, items, common.NewPagination(p.Page, p.Limit, p.EffectiveOffset(), total))
}
