package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSecurityConfig(t *testing.T) {
	config := DefaultSecurityConfig()

	assert.Equal(t, 20000, config.MaxTextLength)
	assert.Contains(t, config.AllowedOrigins, "http://localhost:3000")
	assert.Contains(t, config.AllowedOrigins, "http://localhost:5173")
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.False(t, config.EnableHSTS)

	sm := NewSecurityMiddleware(SecurityConfig{})
	assert.Equal(t, 20000, sm.Config().MaxTextLength)
	assert.Equal(t, 30*time.Second, sm.Config().RequestTimeout)
}

func TestSanitizeText(t *testing.T) {
	sm := NewSecurityMiddleware(SecurityConfig{MaxTextLength: 10})

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain", input: "on a boat", want: "on a boat"},
		{name: "trims", input: "  hi  ", want: "hi"},
		{name: "keeps newlines", input: "a\nb\tc", want: "a\nb\tc"},
		{name: "drops null bytes", input: "a\x00b", want: "ab"},
		{name: "drops invalid utf-8", input: "a\xff\xfeb", want: "ab"},
		{name: "counts runes", input: "ééééééééé", want: "ééééééééé"},
		{name: "too long", input: strings.Repeat("a", 11), wantErr: ErrTextTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sm.SanitizeText(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("3f2b8c1e-4d5a-4b6c-8d7e-9f0a1b2c3d4e"))
	assert.ErrorIs(t, ValidateID("3F2B8C1E-4D5A-4B6C-8D7E-9F0A1B2C3D4E"), ErrInvalidToken)
	assert.ErrorIs(t, ValidateID("not-a-uuid"), ErrInvalidToken)
	assert.ErrorIs(t, ValidateID("../etc/passwd"), ErrInvalidToken)
}

func TestValidateShareToken(t *testing.T) {
	assert.NoError(t, ValidateShareToken("eyJkIjpbMCwxOSwzMSwxOSwzMV19"))
	assert.NoError(t, ValidateShareToken("eyJkIjpbMCwxOSwzMSwxOSwzMV19=="))
	assert.NoError(t, ValidateShareToken("aaa.bbb.ccc"))
	assert.Error(t, ValidateShareToken(""))
	assert.Error(t, ValidateShareToken("a b"))
	assert.Error(t, ValidateShareToken("a.b.c.d"))
	assert.Error(t, ValidateShareToken(strings.Repeat("a", maxTokenLength+1)))
}

func TestSecurityHeaders(t *testing.T) {
	for _, hsts := range []bool{false, true} {
		r := gin.New()
		r.Use(SecurityHeadersMiddleware(hsts))
		r.GET("/api/dimensions", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dimensions", nil))

		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.Equal(t, hsts, w.Header().Get("Strict-Transport-Security") != "")
	}
}

func TestCSPMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CSPMiddleware("/swagger/"))
	r.GET("/api/dimensions", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/swagger/*any", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := httptest.NewRecorder()
	r.ServeHTTP(api, httptest.NewRequest(http.MethodGet, "/api/dimensions", nil))
	assert.Equal(t, apiPolicy, api.Header().Get("Content-Security-Policy"))

	docs := httptest.NewRecorder()
	r.ServeHTTP(docs, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, docsPolicy, docs.Header().Get("Content-Security-Policy"))

	assert.Equal(t, apiPolicy, PolicyFor("/swagger/index.html", ""))
}

func TestValidateContentType(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.ValidateContentType)
	r.POST("/api/sessions", func(c *gin.Context) { c.Status(http.StatusCreated) })

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{name: "json", contentType: "application/json", body: `{}`, want: http.StatusCreated},
		{name: "json with charset", contentType: "application/json; charset=utf-8", body: `{}`, want: http.StatusCreated},
		{name: "empty body", want: http.StatusCreated},
		{name: "form", contentType: "application/x-www-form-urlencoded", body: "a=b", want: http.StatusUnsupportedMediaType},
		{name: "missing type", body: `{}`, want: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORSConfig(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.CORSConfig())
	r.GET("/api/dimensions", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantAllow  string
	}{
		{name: "allowed origin", origin: "http://localhost:3000", method: http.MethodGet, wantStatus: http.StatusOK, wantAllow: "http://localhost:3000"},
		{name: "disallowed origin", origin: "http://evil.example", method: http.MethodGet, wantStatus: http.StatusForbidden},
		{name: "preflight", origin: "http://localhost:5173", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantAllow: "http://localhost:5173"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/dimensions", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	sm := NewSecurityMiddleware(SecurityConfig{RequestTimeout: 2 * time.Second})

	var deadline time.Time
	var hasDeadline bool
	r := gin.New()
	r.Use(sm.RequestTimeout)
	r.GET("/api/questions", func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil).WithContext(context.Background())
	r.ServeHTTP(w, req)

	assert.Equal(t, "2", w.Header().Get("X-Timeout"))
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
}
