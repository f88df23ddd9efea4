package goods

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := common.WithPrincipal(r.Context(), common.Principal{UserID: "op-1", Role: "operator"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Post("/goods/quote", h.Quote)
	r.Post("/goods", h.Create)
	r.Get("/goods", h.List)
	r.Get("/goods/{id}", h.Get)
	r.Put("/goods/{id}", h.Update)
	return r
}

const createBody = `{"sender_id":7,"recipient_id":8,"branch_id":1,
"lines":[{"product_type_id":10,"weight":"2"},{"product_type_id":11,"weight":"1","unit_price":"30","price_locked":true}]}`

func TestHandlerQuote(t *testing.T) {
	f := newFixture(t, nil, nil)
	router := newRouter(&Handler{Svc: f.svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/goods/quote", strings.NewReader(createBody)))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data struct {
			Total string `json:"total"`
			Lines []struct {
				UnitPrice string `json:"unit_price"`
			} `json:"lines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "253", body.Data.Total)
	require.Equal(t, "100", body.Data.Lines[0].UnitPrice)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/goods/quote", strings.NewReader(`{"branch_id":1}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
}

func TestHandlerCreateGetUpdate(t *testing.T) {
	f := newFixture(t, nil, nil)
	router := newRouter(&Handler{Svc: f.svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/goods", strings.NewReader(createBody)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created struct {
		Data Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "op-1", created.Data.CreatedBy)
	require.Equal(t, "/api/v1/goods/"+created.Data.ID.String(), rr.Header().Get("Location"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/goods/"+created.Data.ID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/goods/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	stored, err := f.svc.Get(context.Background(), created.Data.ID)
	require.NoError(t, err)
	in := editInput(stored)
	in.Version = 9
	payload, err := json.Marshal(in)
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/goods/"+created.Data.ID.String(), strings.NewReader(string(payload))))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "VERSION_CONFLICT")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/goods?sort=total,DESC", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-Total-Count"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/goods?sort=password,ASC", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
