package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Mindburn-Labs/relay/pkg/store"
)

// RequireAPIKey wraps a handler so it only runs for requests carrying a valid
// "Authorization: Bearer rk_..." header. The resolved tenant is placed in the
// request context.
func RequireAPIKey(keys store.APIKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "Missing API key")
				return
			}
			tenant, err := keys.Verify(r.Context(), raw)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeUnauthorized(w, "Invalid API key")
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
