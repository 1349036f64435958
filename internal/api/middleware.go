package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
)

// sharedSecret guards machine-to-machine routes. The key is read from the
// api_key query parameter or the X-API-Key header; failures abort with status.
func sharedSecret(key string, status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(peersync.APIKeyHeader)
		if presented == "" {
			presented = c.Query("api_key")
		}
		if !peersync.KeyMatches(key, presented) {
			c.AbortWithStatusJSON(status, gin.H{"success": false, "error": http.StatusText(status)})
			return
		}
		c.Next()
	}
}
