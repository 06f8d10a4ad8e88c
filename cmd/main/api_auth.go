package main

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
)

const authHeader = "quire-auth"

// Authenticator guards the API with the key whose SHA-256 hash is configured.
type Authenticator struct {
	keyHash string
	logger  *slog.Logger
}

// NewAuthenticator creates an Authenticator. An empty hash leaves the API open,
// which is the normal setup for a preview server bound to localhost.
func NewAuthenticator(keyHash string, logger *slog.Logger) *Authenticator {
	return &Authenticator{keyHash: keyHash, logger: logger}
}

// Authenticate checks for a valid key in the quire-auth header.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.keyHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get(authHeader)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(hashAPIKey(apiKey)), []byte(a.keyHash)) != 1 {
			a.logger.Debug("Rejected API request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "quire_" + hex.EncodeToString(bytes), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
