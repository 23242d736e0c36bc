package middleware

import (
	"net/http"
	"time"

	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader is the header clients use to dedupe submissions
const IdempotencyKeyHeader = "X-Idempotency-Key"

// Idempotency rejects a repeated submission carrying an already-seen
// X-Idempotency-Key. The header is optional; requests without it are not
// deduplicated. Keys are consumed up front, so a failed request burns its
// key and the client must retry with a fresh one.
func Idempotency(store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		first, err := store.MarkProcessed(c.Request.Context(), key, ttl)
		if err != nil {
			// Store failure must not take the API down; log and continue
			if logger != nil {
				logger.Error("idempotency store unavailable", zap.Error(err))
			}
			c.Next()
			return
		}

		if !first {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DUPLICATE_SUBMISSION",
					"message": "A request with this idempotency key was already processed",
				},
			})
			return
		}

		c.Next()
	}
}
