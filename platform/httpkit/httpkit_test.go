package httpkit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ppob_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return testSecret }

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/admin", AuthRequired(testJWTConfig{}), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return engine
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestEngine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRoleChecksClaims(t *testing.T) {
	cases := []struct {
		name  string
		roles []interface{}
		want  int
	}{
		{name: "admin", roles: []interface{}{"user", "admin"}, want: http.StatusNoContent},
		{name: "non-admin", roles: []interface{}{"user"}, want: http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := signToken(t, jwt.MapClaims{
				"sub":   uuid.NewString(),
				"type":  "access",
				"roles": tc.roles,
				"exp":   time.Now().Add(time.Hour).Unix(),
			})
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			newTestEngine().ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestAuthRequiredRejectsRefreshTokens(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": uuid.NewString(), "type": "refresh"})
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	newTestEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{err: apperr.Conflict("sync already in progress"), want: http.StatusConflict},
		{err: fmt.Errorf("wrapped: %w", apperr.NotFound("provider not configured")), want: http.StatusNotFound},
		{err: apperr.Unavailable("fetch", nil), want: http.StatusBadGateway},
		{err: fmt.Errorf("pool closed"), want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)

		if !HandleError(c, tc.err) {
			t.Fatalf("expected %v to be handled", tc.err)
		}
		if rec.Code != tc.want {
			t.Fatalf("expected %d for %v, got %d", tc.want, tc.err, rec.Code)
		}
	}
}

func TestRequestIDKeepsValidCallerID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	callerID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, callerID)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != callerID {
		t.Fatalf("expected caller id %q, got %q", callerID, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got == "not-a-uuid" || got == "" {
		t.Fatalf("expected a generated id, got %q", got)
	}
}

func TestIPRateLimiterSweepsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, 1, nil)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("10.0.0.1") {
		t.Fatal("expected first request to pass")
	}
	if limiter.allow("10.0.0.1") {
		t.Fatal("expected burst of one to reject the second request")
	}

	now = now.Add(defaultVisitorIdle / 2)
	limiter.allow("10.0.0.2")
	now = now.Add(defaultVisitorIdle/2 + time.Second)

	if removed := limiter.Sweep(); removed != 1 {
		t.Fatalf("expected one idle visitor removed, got %d", removed)
	}
	if _, ok := limiter.visitors["10.0.0.2"]; !ok {
		t.Fatal("expected recent visitor to survive the sweep")
	}
}
