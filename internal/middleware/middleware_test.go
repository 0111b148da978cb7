package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/resilience"
	"github.com/davido182/depositdigest/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recorder struct {
	mu      sync.Mutex
	metrics []models.PerformanceMetric
	actors  []string
}

func (r *recorder) RecordPerformance(m models.PerformanceMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

func (r *recorder) DetectSuspiciousActivity(userID, action string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors = append(r.actors, userID+":"+action)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestLoggerRecordsSampleAndActivity(t *testing.T) {
	rec := &recorder{}
	r := gin.New()
	r.Use(RequestLogger(rec, rec))
	r.GET("/api/tenants/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/42", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	w := serve(r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.metrics, 1)
	assert.Equal(t, "/api/tenants/:id", rec.metrics[0].Endpoint)
	assert.GreaterOrEqual(t, rec.metrics[0].ResponseTimeMs, 0.0)
	assert.Empty(t, rec.actors)
}

func TestRequestLoggerCountsOnlyRejectedRequests(t *testing.T) {
	rec := &recorder{}
	r := gin.New()
	r.Use(RequestLogger(rec, rec))
	r.GET("/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.POST("/api/audit", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })
	r.POST("/api/admin", func(c *gin.Context) { c.Status(http.StatusForbidden) })

	for _, target := range []struct{ method, path string }{
		{http.MethodGet, "/live"},
		{http.MethodGet, "/live"},
		{http.MethodGet, "/missing"},
		{http.MethodPost, "/api/audit"},
		{http.MethodPost, "/api/admin"},
	} {
		req := httptest.NewRequest(target.method, target.path, nil)
		req.RemoteAddr = "10.0.0.7:5555"
		serve(r, req)
	}

	assert.Len(t, rec.metrics, 5)
	assert.Equal(t, []string{"10.0.0.7:" + UnauthorizedAction, "10.0.0.7:" + UnauthorizedAction}, rec.actors)
}

func TestErrorHandlerRecoversPanics(t *testing.T) {
	handler := resilience.NewErrorHandler(resilience.HandlerConfig{}, clock.NewFake(time.Now()), &clock.SequentialIDs{Prefix: "err"}, nil)
	r := gin.New()
	r.Use(ErrorHandler(handler))
	r.GET("/boom", func(c *gin.Context) { panic("ledger offline") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	reports := handler.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, models.SeverityCritical, reports[0].Severity)
	assert.Equal(t, "api", reports[0].Context.Component)
}

func TestErrorHandlerRoutesErrors(t *testing.T) {
	handler := resilience.NewErrorHandler(resilience.HandlerConfig{}, clock.NewFake(time.Now()), &clock.SequentialIDs{Prefix: "err"}, nil)
	r := gin.New()
	r.Use(ErrorHandler(handler))
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(NewNotFoundError("Alert")) })
	r.GET("/db", func(c *gin.Context) { _ = c.Error(errors.New("database timeout")) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Alert not found")
	assert.Empty(t, handler.Reports())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/db", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, handler.Reports(), 1)
	assert.Equal(t, models.CategoryNetwork, handler.Reports()[0].Category)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 2)
	var denied []string
	rl.OnDenied(func(key string) { denied = append(denied, key) })

	r := gin.New()
	r.Use(RateLimitMiddleware(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		codes = append(codes, serve(r, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, []string{"192.0.2.1"}, denied)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "192.0.2.2:1234"
	assert.Equal(t, http.StatusOK, serve(r, other).Code)
	assert.Zero(t, rl.Cleanup())
}

func TestAuthMiddleware(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC))
	sessions := security.NewSessionManager(security.SessionConfig{Secret: []byte("k")}, clk, nil, nil)

	r := gin.New()
	r.Use(AuthMiddleware(sessions))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, GetUserID(c)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	session, err := sessions.Issue("user-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())
	assert.Empty(t, w.Header().Get(RenewedTokenHeader))

	clk.Advance(23 * time.Hour)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RenewedTokenHeader))

	clk.Advance(2 * time.Hour)
	w = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_EXPIRED")
}

func TestServiceAuthMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		presented string
		want      int
	}{
		{"valid", "s3cret", "s3cret", http.StatusOK},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "guess", http.StatusUnauthorized},
		{"not configured", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ServiceAuthMiddleware(tt.token))
			r.POST("/login-success", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/login-success", nil)
			if tt.presented != "" {
				req.Header.Set(ServiceTokenHeader, tt.presented)
			}
			assert.Equal(t, tt.want, serve(r, req).Code)
		})
	}
}
