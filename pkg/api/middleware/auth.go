package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// APIKeyHeader carries the client key
const APIKeyHeader = "X-API-Key"

type contextKey string

const keyLabelContextKey contextKey = "api_key_label"

// KeyLabelFromContext returns the label of the key that authenticated the request
func KeyLabelFromContext(ctx context.Context) (string, bool) {
	label, ok := ctx.Value(keyLabelContextKey).(string)
	return label, ok
}

// APIKeyAuth requires a key from keys (key -> label) in the X-API-Key header
// or as a bearer token. Paths in public bypass the check. An empty key set
// disables authentication.
func APIKeyAuth(keys map[string]string, public []string, logger *zap.Logger) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if key == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing API key")
				return
			}

			label, ok := lookupKey(keys, key)
			if !ok {
				logger.Warn("invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("ip", ClientIP(r)),
				)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), keyLabelContextKey, label)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func lookupKey(keys map[string]string, provided string) (string, bool) {
	for key, label := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(provided)) == 1 {
			return label, true
		}
	}
	return "", false
}
