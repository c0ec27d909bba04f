package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────
// Bearer Token Authentication Middleware
//
// API_AUTH_TOKEN gates every mutating and investigator-facing route:
// analyze, runs, simulate, watchlist, alerts, cases, scan start,
// shadow and archive queries. Health, the live stream, scan progress
// and the Prometheus scrape stay public so probes and dashboards
// work without credentials.
// ──────────────────────────────────────────────────────────────────

// AuthMiddleware validates "Authorization: Bearer <API_AUTH_TOKEN>" on the
// protected route group. An empty API_AUTH_TOKEN disables the check, which
// is the expected mode for local development and tests only.
func AuthMiddleware() gin.HandlerFunc {
	token := os.Getenv("API_AUTH_TOKEN")

	if token == "" && os.Getenv("GIN_MODE") == "release" {
		log.Println("[SECURITY WARNING] API_AUTH_TOKEN is empty in release mode: " +
			"analysis, case and watchlist routes accept unauthenticated requests. " +
			"Set API_AUTH_TOKEN before exposing this instance.")
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <API_AUTH_TOKEN>",
			})
			c.Abort()
			return
		}

		presented, isBearer := strings.CutPrefix(header, "Bearer ")
		if !isBearer || presented == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Authorization header is not a bearer token"})
			c.Abort()
			return
		}

		// Constant-time compare; a plain == would leak the token length
		// and prefix through response timing.
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
