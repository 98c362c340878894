package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ridesvc/internal/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	inFlightTTL       = time.Minute
)

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// that carries an already used Idempotency-Key. Keys are scoped to the
// route, so the same key on different rides does not collide. A request
// with a key that is still in flight gets 409.
func IdempotencyMiddleware(store redis.IdempotencyStoreInterface, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to mutating methods.
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" || store == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scopedKey := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		cached, err := store.Get(ctx, scopedKey)
		if err != nil {
			// Redis error - proceed without idempotency.
			logger.Warn("idempotency lookup failed", zap.String("key", scopedKey), zap.Error(err))
			c.Next()
			return
		}
		if cached != nil {
			replay(c, cached)
			return
		}

		reserved, err := store.Reserve(ctx, scopedKey, inFlightTTL)
		if err != nil {
			logger.Warn("idempotency reserve failed", zap.String("key", scopedKey), zap.Error(err))
			c.Next()
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
			return
		}

		// Wrap response writer to capture response.
		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// Server errors are not stored so the client can retry.
		if c.Writer.Status() >= http.StatusInternalServerError {
			if err := store.Release(ctx, scopedKey); err != nil {
				logger.Warn("idempotency release failed", zap.String("key", scopedKey), zap.Error(err))
			}
			return
		}

		response := &redis.StoredResponse{
			StatusCode: c.Writer.Status(),
			Body:       w.body.Bytes(),
			Headers:    extractResponseHeaders(c),
		}
		if err := store.Save(ctx, scopedKey, response, idempotencyTTL); err != nil {
			logger.Warn("idempotency save failed", zap.String("key", scopedKey), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, cached *redis.StoredResponse) {
	if cached.InFlight {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
		return
	}

	for k, v := range cached.Headers {
		for _, val := range v {
			c.Header(k, val)
		}
	}
	c.Header("Idempotent-Replayed", "true")
	if len(cached.Body) == 0 {
		c.AbortWithStatus(cached.StatusCode)
		return
	}
	c.Data(cached.StatusCode, "application/json", cached.Body)
	c.Abort()
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	// Only cache Content-Type header.
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
