package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Service persists audit logs for back-office writes.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
	// Rand overrides the sampling source in tests.
	Rand func() float64
}

// Record persists an audit log entry when auditing is enabled. Sampling only
// drops successful requests.
func (s *Service) Record(ctx context.Context, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	if s == nil || !s.Enabled {
		return nil
	}
	if status < http.StatusBadRequest && s.SamplingRate > 0 && s.SamplingRate < 1 && s.sample() > s.SamplingRate {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if status == 0 {
		status = http.StatusOK
	}

	return s.Store.Insert(ctx, Entry{
		ActorKind:    string(normalizeActorKind(actor.Kind)),
		ActorUserID:  validUUID(actor.UserID),
		ActorRole:    actor.Role,
		Action:       buildAction(action, req.Method, route),
		ResourceType: buildResource(resourceType, route),
		ResourceID:   pointerOf(resourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Route:        pointerOf(route),
		Status:       status,
		IP:           pointerOf(common.ClientIP(req)),
		UserAgent:    pointerOf(req.Header.Get("User-Agent")),
		RequestID:    pointerOf(requestID(req)),
		Metadata:     toJSONB(metadata, req.URL.RawQuery),
	})
}

// List returns a filtered page of audit logs, newest first by default.
func (s *Service) List(ctx context.Context, p query.Params) ([]Entry, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("audit service not configured")
	}
	clause, err := p.Compile(Columns, "a.created_at DESC, a.id DESC")
	if err != nil {
		return nil, 0, err
	}
	return s.Store.List(ctx, clause)
}

func (s *Service) sample() float64 {
	if s.Rand != nil {
		return s.Rand()
	}
	return rand.Float64()
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	target := route
	if target == "" {
		target = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + target
}

// buildResource derives "tariffs" from /api/v1/tariffs/{id} and
// "branches.{id}.nomenclature" from nested routes.
func buildResource(resourceType, route string) string {
	trimmed := strings.TrimSpace(resourceType)
	if trimmed != "" {
		return trimmed
	}
	route = strings.TrimSpace(route)
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	if len(segments) > 1 && strings.HasPrefix(segments[len(segments)-1], "{") {
		segments = segments[:len(segments)-1]
	}
	return strings.Join(segments, ".")
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindUser, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func requestID(req *http.Request) string {
	if id := middleware.GetReqID(req.Context()); id != "" {
		return id
	}
	return req.Header.Get("X-Request-ID")
}

func pointerOf(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validUUID(value *string) *string {
	if value == nil {
		return nil
	}
	parsed, err := uuid.Parse(strings.TrimSpace(*value))
	if err != nil {
		return nil
	}
	s := parsed.String()
	return &s
}

func toJSONB(metadata []byte, rawQuery string) json.RawMessage {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(rawQuery) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": rawQuery})
	if err != nil {
		return nil
	}
	return data
}
