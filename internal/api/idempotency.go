package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// ResponseCache stores intake responses keyed by Idempotency-Key so a client
// retry of the same POST replays the original answer instead of creating a
// second request.
type ResponseCache struct {
	client *redis.Client
	logger zerolog.Logger
}

type cachedResponse struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

func NewResponseCache(client *redis.Client, logger zerolog.Logger) *ResponseCache {
	return &ResponseCache{client: client, logger: logger}
}

func (c *ResponseCache) get(ctx context.Context, key string) (*cachedResponse, error) {
	val, err := c.client.Get(ctx, "idempotency:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp cachedResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ResponseCache) save(ctx context.Context, key string, resp cachedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "idempotency:"+key, payload, idempotencyTTL).Err()
}

// responseRecorder captures what the wrapped handler writes.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays cached responses for repeated POSTs carrying the same
// Idempotency-Key. Fails open on cache errors so Redis downtime never blocks
// intake.
func Idempotency(cache *ResponseCache) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			cached, err := cache.get(ctx, key)
			if err != nil {
				cache.logger.Error().Err(err).Msg("idempotency lookup failed, passing through")
				next.ServeHTTP(w, r)
				return
			}

			if cached != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Hit", "true")
				w.WriteHeader(cached.StatusCode)
				w.Write(cached.Body)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			// 5xx responses stay uncached so the client retry can succeed.
			if recorder.statusCode < 500 {
				if err := cache.save(ctx, key, cachedResponse{
					StatusCode: recorder.statusCode,
					Body:       recorder.body.Bytes(),
				}); err != nil {
					cache.logger.Error().Err(err).Msg("idempotency save failed")
				}
			}
		})
	}
}
