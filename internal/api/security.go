package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/retailpoint/promo/internal/domain/auth"
	"github.com/retailpoint/promo/pkg/httpmiddleware"
)

// APIKeyHeader carries the authoring API key.
const APIKeyHeader = "api_key"

// RequireAPIKey returns a middleware authenticating requests via
// HMAC-SHA256 hashed API keys. The incoming key is hashed with the pepper,
// looked up in the repository, and compared in constant time.
func RequireAPIKey(apikeys auth.Repository, pepper []byte) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing API key")
				return
			}

			mac := hmac.New(sha256.New, pepper)
			mac.Write([]byte(key))
			hash := mac.Sum(nil)

			info, err := apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid API key")
				return
			}

			// Constant-time comparison guards against timing side-channels
			// if the repository returns a stale or wrong row.
			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey buckets requests by API key when one is presented and by
// client IP otherwise, so a single integration cannot drain the shared
// anonymous budget. The key is hashed before use as a bucket name.
func RateLimitKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
