package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestCSRFMiddlewareBlocksMissingToken(t *testing.T) {
	handler := CSRF{}.Middleware(okHandler(http.StatusOK))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "CSRF_MISSING")
}

func TestCSRFIssuedTokenIsAccepted(t *testing.T) {
	csrf := CSRF{}
	issued := httptest.NewRecorder()
	token, err := csrf.Issue(issued, time.Hour)
	require.NoError(t, err)
	cookies := issued.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "csrf_token", cookies[0].Name)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(cookies[0])
	rr := httptest.NewRecorder()
	csrf.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("X-CSRF-Token", token+"x")
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	csrf.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCSRFMiddlewareSkipsBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer abc.def")
	rr := httptest.NewRecorder()
	CSRF{}.Middleware(okHandler(http.StatusAccepted)).ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
}

func TestCSRFGuardedOnlyChecksCookieRequests(t *testing.T) {
	csrf := CSRF{Guarded: "refresh_token"}

	rr := httptest.NewRecorder()
	csrf.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "r1"})
	rr = httptest.NewRecorder()
	csrf.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}
