package middleware

import (
	"context"
	"log/slog"
	"net/http"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore claims request keys for a fixed window.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency rejects a repeated Idempotency-Key from the same user with
// 409. Requests without the header pass through. A key whose request fails
// is released so the client can retry. When the store is unreachable the
// request proceeds unprotected.
func Idempotency(store IdempotencyStore, scope string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			scoped := scope + ":" + Caller(r.Context()).UserID + ":" + key

			claimed, err := store.Claim(r.Context(), scoped)
			if err != nil {
				log.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				respondMessage(w, "Duplicate request", http.StatusConflict)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.Status() >= http.StatusBadRequest {
				if err := store.Release(context.WithoutCancel(r.Context()), scoped); err != nil {
					log.Warn("failed to release idempotency key", "error", err)
				}
			}
		})
	}
}
