package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultCSP = "default-src 'none'; frame-ancestors 'none'"
	// receipt images are opened directly in the browser
	receiptCSP = "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'; frame-ancestors 'none'"
)

// SecurityHeaders locks responses down for an API that only ever serves JSON,
// spreadsheets and stored receipt images.
func SecurityHeaders(receiptPrefix string) gin.HandlerFunc {
	isReceipt := func(path string) bool {
		return receiptPrefix != "" && strings.HasPrefix(path, receiptPrefix)
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-site")

		if isReceipt(c.Request.URL.Path) {
			h.Set("Content-Security-Policy", receiptCSP)
		} else {
			h.Set("Content-Security-Policy", defaultCSP)
		}

		c.Next()
	}
}
