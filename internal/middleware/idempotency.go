package middleware

import (
	"bytes"
	"context"
	"net/http"

	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/rs/zerolog/log"
)

const maxIdempotencyBodySize = 1 << 20

// IdempotencyStore keeps responses keyed by client-supplied Idempotency-Key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*postgres.StoredResponse, error)
	Save(ctx context.Context, key string, status int, body string) error
}

// Idempotency replays the stored response when a payment submission is retried with the same key.
// Keys are scoped to the request path so one key cannot replay another order's response.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Idempotency-Key")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + " " + r.URL.Path + " " + header

			stored, err := store.Get(r.Context(), key)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("idempotency lookup failed")
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(stored.Status)
				w.Write([]byte(stored.Body))
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// 5xx means the outcome is unknown and the client should be free to retry.
			if rec.statusCode < 500 && !rec.bodyTruncated {
				if err := store.Save(r.Context(), key, rec.statusCode, rec.body.String()); err != nil {
					log.Warn().Err(err).Str("path", r.URL.Path).Msg("idempotency save failed")
				}
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
