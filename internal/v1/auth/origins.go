// Package auth holds the origin allow-list policy shared by the CORS layer
// and the WebSocket upgrader. End-user authentication against an identity
// provider is deliberately absent: participant identity is the persistent-ID
// echo protocol handled by the identity package.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/quizhall/server/internal/v1/logging"
)

// GetAllowedOriginsFromEnv reads a comma-separated origin list from the given
// environment variable, falling back to the provided defaults.
// Example: ALLOWED_ORIGINS="http://localhost:3000,https://quizhall.app"
func GetAllowedOriginsFromEnv(envVarName string, defaultOrigins []string) []string {
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		// Provide sensible defaults for local development if the env var isn't set.
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins: %s", envVarName, defaultOrigins))
		return defaultOrigins
	}
	origins := strings.Split(originsStr, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

// CheckOrigin returns an origin check function suitable for the WebSocket
// upgrader. Requests without an Origin header are allowed (non-browser
// clients and tests); browser origins must match the allow-list by scheme
// and host.
func CheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}

		for _, allowed := range allowedOrigins {
			allowedURL, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
				return true
			}
		}
		return false
	}
}
