package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
)

// Middleware writes one audit entry per handled request, after the handler
// ran so the entry carries the final status and matched route.
type Middleware struct {
	Service *Service
	// IncludeReads also audits GET, HEAD and OPTIONS.
	IncludeReads    bool
	ResourceIDParam string
	Metadata        func(*http.Request, int) map[string]any
	OnError         func(*http.Request, error)
}

// Handler wraps next.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if m.Service == nil || !m.Service.Enabled || (!m.IncludeReads && readOnly(req.Method)) {
			next.ServeHTTP(w, req)
			return
		}
		rec := obs.NewStatusRecorder(w)
		next.ServeHTTP(rec, req)

		route := obs.RoutePatternFromContext(req.Context())
		resourceID := ""
		if m.ResourceIDParam != "" {
			resourceID = chi.URLParam(req, m.ResourceIDParam)
		}
		var metadata []byte
		if m.Metadata != nil {
			if payload := m.Metadata(req, rec.Status()); payload != nil {
				metadata, _ = json.Marshal(payload)
			}
		}
		resource := buildResource("", route)
		action := resource + "." + verb(req.Method)

		err := m.Service.Record(req.Context(), actorOf(req), action, resource, resourceID, req, rec.Status(), metadata)
		if err != nil && m.OnError != nil {
			m.OnError(req, err)
		}
	})
}

func actorOf(req *http.Request) Actor {
	p, ok := common.PrincipalFrom(req.Context())
	if !ok {
		return Actor{Kind: ActorKindAnonymous}
	}
	id := p.UserID
	return Actor{Kind: ActorKindUser, UserID: &id, Role: p.Role}
}

func verb(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	case http.MethodGet, http.MethodHead:
		return "read"
	}
	return "call"
}

func readOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
