package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/ndewijer/Holdings-Import-Backend/internal/api/response"
)

// Request headers checked by APIKeyMiddleware.
const (
	APIKeyHeader    = "X-API-Key"
	TimeTokenHeader = "X-Time-Token"
)

// DefaultTimeTokenTTL is how long a time token stays valid when no TTL is configured.
const DefaultTimeTokenTTL = 5 * time.Minute

func fernetKey(apiKey string) *fernet.Key {
	k := fernet.Key(sha256.Sum256([]byte(apiKey)))
	return &k
}

// GenerateTimeToken returns a fernet token signed with a key derived from
// apiKey. APIKeyMiddleware accepts it until the TTL elapses.
func GenerateTimeToken(apiKey string) string {
	tok, err := fernet.EncryptAndSign([]byte(strconv.FormatInt(time.Now().Unix(), 10)), fernetKey(apiKey))
	if err != nil {
		return ""
	}
	return string(tok)
}

// APIKeyMiddleware protects state-changing routes. A request must carry the
// internal API key and a time token from GenerateTimeToken that is younger
// than ttl. An empty apiKey rejects everything with 500.
//
// Example usage in router:
//
//	r.With(middleware.APIKeyMiddleware(cfg.Auth.InternalAPIKey, cfg.Auth.TokenTTL)).Post("/apply", h.Apply)
func APIKeyMiddleware(apiKey string, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTimeTokenTTL
	}
	keys := []*fernet.Key{fernetKey(apiKey)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				response.RespondError(w, http.StatusInternalServerError, "authentication failed", "Authentication not loaded")
				return
			}

			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				response.RespondError(w, http.StatusUnauthorized, "authentication failed", "Missing API key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				response.RespondError(w, http.StatusUnauthorized, "authentication failed", "Invalid API key")
				return
			}

			token := r.Header.Get(TimeTokenHeader)
			if token == "" {
				response.RespondError(w, http.StatusUnauthorized, "authentication failed", "Missing Time token")
				return
			}
			if fernet.VerifyAndDecrypt([]byte(token), ttl, keys) == nil {
				response.RespondError(w, http.StatusUnauthorized, "authentication failed", "Time token is invalid or expired")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
