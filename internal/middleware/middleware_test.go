package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/calcforest/calcforest/internal/logging"
	"github.com/calcforest/calcforest/internal/metrics"
	"github.com/calcforest/calcforest/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier map[string]services.Actor

func (s stubVerifier) VerifyToken(token string) (services.Actor, error) {
	actor, ok := s[token]
	if !ok {
		return services.Actor{}, apperr.Unauthorized("Invalid or expired token")
	}
	return actor, nil
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func newAuthEngine() *gin.Engine {
	r := gin.New()
	verifier := stubVerifier{"good": {UserID: "u1", Username: "alice"}}
	r.GET("/me", RequireAuth(verifier), func(ctx *gin.Context) {
		user, err := GetCurrentUser(ctx)
		if err != nil {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, user)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization token is required"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Authorization header format must be Bearer {token}"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "Authorization header format must be Bearer {token}"},
		{"invalid token", "Bearer bad", http.StatusUnauthorized, "Invalid or expired token"},
	}

	r := newAuthEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errorBody(t, rec))
		})
	}
}

func TestRequireAuth_SetsUser(t *testing.T) {
	r := newAuthEngine()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var user AuthenticatedUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, AuthenticatedUser{ID: "u1", Username: "alice"}, user)
	assert.Equal(t, services.Actor{UserID: "u1", Username: "alice"}, user.Actor())
}

func TestGetCurrentUser_Missing(t *testing.T) {
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, err := GetCurrentUser(ctx)
	assert.Error(t, err)

	ctx.Set(ContextUserKey, "not a user")
	_, err = GetCurrentUserID(ctx)
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.Discard())
	r := gin.New()
	r.POST("/login", rl.Handler(), func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "Too many requests", errorBody(t, rec))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0, logging.Discard())
	r := gin.New()
	r.POST("/login", rl.Handler(), func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 0, rl.size())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.Discard())
	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")
	require.Equal(t, 2, rl.size())

	rl.Cleanup(time.Hour)
	assert.Equal(t, 2, rl.size())

	rl.Cleanup(-time.Second)
	assert.Equal(t, 0, rl.size())
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithOutput(&buf, "info", "json")

	r := gin.New()
	r.Use(RequestLogger(log))
	r.GET("/api/calculations/:id", func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Calculation not found"})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calculations/abc", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "/api/calculations/:id", entry["route"])
	assert.Equal(t, "/api/calculations/abc", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/calculations/:id", func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calculations/"+id, nil))
	}

	count, err := testutil.GatherAndCount(m.Registry(), "calcforest_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "ids must not create separate series")
}
