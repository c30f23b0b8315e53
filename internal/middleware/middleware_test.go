package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestRequireStudentJWT(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour})
	student, err := auth.GenerateStudentToken(11)
	require.NoError(t, err)
	admin, err := auth.GenerateAdminToken(1, nil)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireStudentJWT(auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetClaims(c).UserID})
	})

	cases := []struct {
		name   string
		header string
		query  string
		status int
		code   response.ErrCode
	}{
		{name: "missing", status: http.StatusUnauthorized, code: response.ErrTokenRequired},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized, code: response.ErrUnauthorized},
		{name: "admin token", header: "Bearer " + admin, status: http.StatusForbidden, code: response.ErrStudentAccessOnly},
		{name: "header", header: "Bearer " + student, status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + student, status: http.StatusOK},
		{name: "query", query: "?token=" + student, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, errorCode(t, w))
			} else {
				assert.JSONEq(t, `{"id":11}`, w.Body.String())
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour})
	reader, err := auth.GenerateAdminToken(1, []string{string(model.PermissionExamsRead)})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/results", RequireAdminJWT(auth), RequirePermission(model.PermissionExamsRead), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.PUT("/settings", RequireAdminJWT(auth), RequirePermission(model.PermissionSettingsWrite), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+reader)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "/results").Code)

	w := do(http.MethodPut, "/settings")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.ErrPermissionDenied, errorCode(t, w))
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per key")

	now = now.Add(59 * time.Second)
	assert.False(t, rl.Allow("10.0.0.1"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("10.0.0.1")
	now = now.Add(visitorTTL + time.Second)
	rl.Allow("10.0.0.2")
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "10.0.0.1")
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	r := gin.New()
	r.POST("/submit", rl.Middleware(ClientIPKey), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	w := send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response.ErrRateLimitExceeded, errorCode(t, w))
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat(`{"question_text":"Berapakah 2 x 3?"}`, 100)
	r := gin.New()
	r.Use(Brotli(0))
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	get := func(path, accept string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", accept)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("/big", "gzip, br")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)
	assert.Equal(t, big, string(plain))

	w = get("/small", "br")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	w = get("/big", "gzip")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, big, w.Body.String())
}

func TestCacheControl(t *testing.T) {
	r := gin.New()
	r.GET("/settings", CacheControl(30), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/settings", nil))
	assert.Equal(t, "public, max-age=30", w.Header().Get("Cache-Control"))
}

func TestRequireStudentJWT_Expired(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour})
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		TokenType:        service.TokenTypeStudent,
		UserID:           11,
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireStudentJWT(auth), func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenExpired, errorCode(t, w))
}

func TestRateLimiter_StudentRouteKey(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour})
	rl := NewRateLimiter(1, time.Hour)
	r := gin.New()
	limited := rl.Middleware(StudentRouteKey)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.POST("/submit", RequireStudentJWT(auth), limited, ok)
	r.POST("/violations", RequireStudentJWT(auth), limited, ok)

	send := func(path string, id int) int {
		token, err := auth.GenerateStudentToken(id)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.1.1.1:4000"
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("/violations", 1))
	assert.Equal(t, http.StatusOK, send("/submit", 1), "violations do not drain the submit budget")
	assert.Equal(t, http.StatusOK, send("/submit", 2), "classmates behind one NAT have their own budget")
	assert.Equal(t, http.StatusTooManyRequests, send("/submit", 1))
}
