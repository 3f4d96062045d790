package auth

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/meshailabs-org/meshai-mcp/pkg/envelope"
	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
	"github.com/meshailabs-org/meshai-mcp/pkg/ratelimit"
)

// publicPaths bypass authentication entirely.
var publicPaths = map[string]bool{
	"/":             true,
	"/health":       true,
	"/docs":         true,
	"/redoc":        true,
	"/openapi.json": true,
	"/favicon.ico":  true,
}

// maxPeekBody bounds how much of a rejected request body is read to recover
// the envelope id for error correlation.
const maxPeekBody = 1 << 20

// ExtractBearerToken extracts the bearer token from the Authorization
// header. An absent header or a non-Bearer scheme is a missing-token
// failure.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", gwerr.NewMissingTokenError("authorization token required")
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", gwerr.NewMissingTokenError("authorization header must use the Bearer scheme")
	}
	return token, nil
}

// Middleware returns an HTTP middleware that authenticates requests against
// the auth service (through the verdict cache), applies the per-user rate
// limit, stores the UserContext in the request context, and stamps rate-limit
// headers on authenticated responses.
func Middleware(authenticator *Authenticator, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, err := ExtractBearerToken(r)
			if err != nil {
				logger.Warnw("missing authorization token", "path", r.URL.Path)
				writeAuthError(w, r, err)
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				logger.Warnw("authentication failed", "path", r.URL.Path, "error", err)
				writeAuthError(w, r, err)
				return
			}

			result := limiter.CheckAndIncrement(user.UserID, user.RateLimit)
			setRateLimitHeaders(w, user.RateLimit, result)
			if !result.Allowed {
				logger.Warnw("rate limit exceeded", "user_id", user.UserID, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.FormatInt(int64(ratelimit.Window.Seconds()), 10))
				writeAuthError(w, r, gwerr.NewRateLimitedError(
					fmt.Sprintf("rate limit exceeded: %d requests/hour", user.RateLimit)))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), user)))
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// writeAuthError writes an error envelope for a rejected request. For the
// MCP endpoint the request body is peeked so the envelope id can be echoed;
// other endpoints carry a null id.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var id any
	if r.Method == http.MethodPost && r.Body != nil {
		if body, readErr := io.ReadAll(io.LimitReader(r.Body, maxPeekBody)); readErr == nil {
			if req, decodeErr := envelope.Decode(body); decodeErr == nil {
				id = req.ID
			}
		}
	}

	msg := envelope.NewErrorMessage(id, err)
	data, encErr := envelope.Encode(msg)
	if encErr != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := envelope.HTTPStatus(msg.Error.Code)
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
