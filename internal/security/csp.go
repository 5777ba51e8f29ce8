package security

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// apiPolicy forbids everything: API responses are JSON and never rendered
const apiPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

// docsPolicy lets the bundled Swagger UI load its own assets
const docsPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data:; " +
	"connect-src 'self'; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'"

// CSPMiddleware sets the Content Security Policy. Paths under docsPrefix get
// the documentation policy, everything else the locked-down API policy.
func CSPMiddleware(docsPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", PolicyFor(c.Request.URL.Path, docsPrefix))
		c.Next()
	}
}

// PolicyFor returns the policy applied to path
func PolicyFor(path, docsPrefix string) string {
	if docsPrefix != "" && strings.HasPrefix(path, docsPrefix) {
		return docsPolicy
	}
	return apiPolicy
}
