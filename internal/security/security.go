package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	ErrTextTooLong  = errors.New("text exceeds maximum length")
	ErrInvalidToken = errors.New("malformed token")
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxTextLength  int           `json:"max_text_length"`
	AllowedOrigins []string      `json:"allowed_origins"`
	TrustedProxies []string      `json:"trusted_proxies"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxTextLength:  20000,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies: []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout: 30 * time.Second,
	}
}

// SecurityMiddleware validates untrusted input reaching the API
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = DefaultSecurityConfig().MaxTextLength
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultSecurityConfig().RequestTimeout
	}
	return &SecurityMiddleware{config: config}
}

// Config returns the effective configuration
func (sm *SecurityMiddleware) Config() SecurityConfig {
	return sm.config
}

// SanitizeText strips control characters (keeping newlines and tabs) and
// invalid UTF-8 from free text, then trims it. Text longer than the
// configured maximum is rejected rather than truncated.
func (sm *SecurityMiddleware) SanitizeText(text string) (string, error) {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	cleaned = strings.TrimSpace(cleaned)

	if n := utf8.RuneCountInString(cleaned); n > sm.config.MaxTextLength {
		return "", fmt.Errorf("%w: %d > %d characters", ErrTextTooLong, n, sm.config.MaxTextLength)
	}
	return cleaned, nil
}

// share tokens are base64url JSON or a JWT
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+){0,2}=*$`)

const maxTokenLength = 2048

// ValidateID checks that a session id or feedback token is a UUID in the
// canonical lowercase form the store issues.
func ValidateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("%w: expected a UUID", ErrInvalidToken)
	}
	return nil
}

// ValidateShareToken checks the shape of a share token before decoding it
func ValidateShareToken(token string) error {
	if token == "" || len(token) > maxTokenLength || !tokenPattern.MatchString(token) {
		return fmt.Errorf("%w: not a share token", ErrInvalidToken)
	}
	return nil
}

// ValidateContentType rejects request bodies that are not JSON
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.ContentLength == 0 || c.Request.Method == http.MethodGet {
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if !strings.HasPrefix(contentType, "application/json") {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "unsupported content type, expected application/json",
		})
		return
	}

	c.Next()
}

// RequestTimeout bounds the request context
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORSConfig allows the configured front-end origins
func (sm *SecurityMiddleware) CORSConfig() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
