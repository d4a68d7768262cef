package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	idempotencyTTL       = 24 * time.Hour
	reservationTTL       = 30 * time.Second
	maxIdempotencyKeyLen = 128
)

// cachedResponse is the replayable form of a completed request.
type cachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// bodyRecorder tees the response body so it can be cached.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key from the same caller on the same route. Requests without
// the header pass through. A key whose first request is still running is
// rejected with IDEM_001; a key whose first request failed may be retried.
// Cache errors degrade to executing the request.
func Idempotency(cache ports.IdempotencyCache, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetHeader(HeaderIdempotencyKey)
		if clientKey == "" {
			c.Next()
			return
		}
		if len(clientKey) > maxIdempotencyKeyLen {
			response.Error(c, apperror.Validation("Idempotency-Key too long"))
			c.Abort()
			return
		}

		caller, _ := CallerFrom(c)
		key := domain.BuildIdempotencyKey(caller, c.FullPath(), clientKey)
		ctx := c.Request.Context()

		cached, err := cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency lookup failed, executing request")
			c.Next()
			return
		}
		if cached != nil {
			var resp cachedResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				c.Header(HeaderReplayed, "true")
				c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
				c.Abort()
				return
			}
			log.Warn().Str("key", key).Msg("discarding unreadable idempotency entry")
		}

		reserved, err := cache.Reserve(ctx, key, reservationTTL)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency reserve failed, executing request")
			c.Next()
			return
		}
		if !reserved {
			response.Error(c, apperror.ErrIdempotencyInFlight())
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		payload, err := json.Marshal(cachedResponse{Status: status, Body: rec.buf.Bytes()})
		if err != nil || status < http.StatusOK || status >= http.StatusMultipleChoices {
			if err := cache.Release(ctx, key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency key")
			}
			return
		}
		if err := cache.Set(ctx, key, payload, idempotencyTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to store idempotent response")
		}
	}
}
