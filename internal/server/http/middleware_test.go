package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		origins     []string
		origin      string
		wantAllowed string
		wantStatus  int
	}{
		{name: "development allows any", environment: "development", origin: "http://localhost:3000", wantAllowed: "*", wantStatus: http.StatusNoContent},
		{name: "listed origin", environment: "production", origins: []string{"https://app.example.com"}, origin: "https://app.example.com", wantAllowed: "https://app.example.com", wantStatus: http.StatusNoContent},
		{name: "unlisted origin", environment: "production", origins: []string{"https://app.example.com"}, origin: "https://other.example.com", wantStatus: http.StatusForbidden},
		{name: "production without list", environment: "production", origin: "https://app.example.com", wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterDeps{Service: newStubService()}, RouterConfig{
				Environment:    tt.environment,
				AllowedOrigins: tt.origins,
			})
			req := httptest.NewRequest(http.MethodOptions, "/api/research", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	router := newTestRouter(newStubService(), 0)
	router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := serve(router, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
