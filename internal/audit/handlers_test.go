package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestHandlerList(t *testing.T) {
	store := &stubStore{}
	h := Handler{Svc: &Service{Store: store}}
	req := httptest.NewRequest(http.MethodGet, "/audit-logs?limit=25&offset=10", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	sql, args := store.clause.Select("SELECT a.id FROM audit_logs a")
	if sql != "SELECT a.id FROM audit_logs a ORDER BY a.created_at DESC, a.id DESC LIMIT $1 OFFSET $2" {
		t.Fatalf("unexpected sql: %s", sql)
	}
	if len(args) != 2 || args[0] != 25 || args[1] != 10 {
		t.Fatalf("unexpected pagination args: %v", args)
	}
	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Data) != 1 {
		t.Fatalf("expected one log entry, got %d", len(payload.Data))
	}
}

func TestHandlerListRejectsUnknownField(t *testing.T) {
	h := Handler{Svc: &Service{Store: &stubStore{}}}
	q := url.Values{"filter": {`{"password":{"$eq":"x"}}`}}
	req := httptest.NewRequest(http.MethodGet, "/audit-logs?"+q.Encode(), nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
