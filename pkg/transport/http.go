package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/meshailabs-org/meshai-mcp/pkg/auth"
	"github.com/meshailabs-org/meshai-mcp/pkg/envelope"
	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
	"github.com/meshailabs-org/meshai-mcp/pkg/ratelimit"
)

const (
	// maxRequestBody bounds a single MCP request payload.
	maxRequestBody = 4 << 20

	// readHeaderTimeout bounds how long a client may take to send headers.
	readHeaderTimeout = 10 * time.Second
)

// HTTPConfig carries the HTTP transport's dependencies.
type HTTPConfig struct {
	// Address is the listen address, e.g. ":8081".
	Address string

	// Authenticator validates bearer tokens on /v1 routes.
	Authenticator *auth.Authenticator

	// Limiter applies per-user quotas on /v1 routes.
	Limiter *ratelimit.Limiter

	// Handler executes decoded envelopes.
	Handler Handler

	// RequestTimeout bounds one request end to end. Workflow runs are
	// long-lived, so this should comfortably exceed the per-step timeout.
	RequestTimeout time.Duration
}

// HTTPServer serves the gateway over HTTP: the MCP envelope endpoint plus
// REST listings for tools, resources, and workflows.
type HTTPServer struct {
	server  *http.Server
	handler Handler
}

// NewHTTPServer builds the HTTP transport with its router and middleware.
func NewHTTPServer(cfg HTTPConfig) *HTTPServer {
	s := &HTTPServer{handler: cfg.Handler}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(auth.Middleware(cfg.Authenticator, cfg.Limiter))

	r.Get("/", s.serviceInfo)
	r.Get("/health", s.health)
	r.Get("/docs", docsPage("MeshAI MCP Gateway", "/openapi.json"))
	r.Get("/redoc", docsPage("MeshAI MCP Gateway", "/openapi.json"))
	r.Get("/openapi.json", s.openAPI)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/mcp", s.mcp)
		r.Get("/tools", s.listEndpoint("tools/list"))
		r.Get("/resources", s.listEndpoint("resources/list"))
		r.Get("/workflows", s.listEndpoint("workflows/list"))
		r.Get("/user/info", s.userInfo)
	})

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Serve listens until the server is shut down or fails.
func (s *HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP transport listening on %s", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the configured router for tests.
func (s *HTTPServer) Router() http.Handler {
	return s.server.Handler
}

// mcp is the envelope endpoint: one request envelope in, one response
// envelope out. Error envelopes map to HTTP statuses by their wire code.
func (s *HTTPServer) mcp(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeEnvelope(w, envelope.NewErrorMessage(nil, fmt.Errorf("failed to read request body: %w", err)))
		return
	}

	req, err := envelope.Decode(body)
	if err != nil {
		writeEnvelope(w, envelope.NewErrorMessage(nil, err))
		return
	}

	user, ok := auth.UserContextFromContext(r.Context())
	if !ok {
		// Unreachable behind the auth middleware.
		writeEnvelope(w, envelope.NewErrorMessage(req.ID, errors.New("no user context")))
		return
	}

	msg := s.handler.Handle(r.Context(), req, user)
	if msg == nil {
		// Cancelled; the client has gone away.
		return
	}
	writeEnvelope(w, msg)
}

// listEndpoint adapts an introspection method to a REST listing.
func (s *HTTPServer) listEndpoint(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserContextFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}

		req := &envelope.Request{
			ID:     middleware.GetReqID(r.Context()),
			Method: method,
			Params: map[string]any{},
		}
		msg := s.handler.Handle(r.Context(), req, user)
		if msg == nil {
			return
		}
		if msg.Error != nil {
			writeJSON(w, envelope.HTTPStatus(msg.Error.Code), map[string]any{"error": msg.Error})
			return
		}
		writeJSON(w, http.StatusOK, msg.Result)
	}
}

// userInfo returns the authenticated caller's identity snapshot.
func (s *HTTPServer) userInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserContextFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	permissions := user.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     user.UserID.String(),
		"tenant_id":   user.TenantID.String(),
		"permissions": permissions,
		"rate_limit":  user.RateLimit,
	})
}

func (s *HTTPServer) serviceInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "meshai-mcp-gateway",
		"docs":    "/docs",
		"health":  "/health",
	})
}

// openAPI serves a skeletal API description covering the public surface.
func (s *HTTPServer) openAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "MeshAI MCP Gateway",
			"version": "v1",
		},
		"paths": map[string]any{
			"/health":       map[string]any{"get": map[string]any{"summary": "Health check"}},
			"/v1/mcp":       map[string]any{"post": map[string]any{"summary": "Execute a request envelope"}},
			"/v1/tools":     map[string]any{"get": map[string]any{"summary": "List tools"}},
			"/v1/resources": map[string]any{"get": map[string]any{"summary": "List resources"}},
			"/v1/workflows": map[string]any{"get": map[string]any{"summary": "List workflows"}},
			"/v1/user/info": map[string]any{"get": map[string]any{"summary": "Authenticated user snapshot"}},
		},
	})
}

func (s *HTTPServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "meshai-mcp-gateway",
	})
}

// docsPage serves a minimal static documentation page.
func docsPage(title, specURL string) http.HandlerFunc {
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>OpenAPI description: <a href=%q>%s</a></p>
<p>Envelope endpoint: POST /v1/mcp</p>
</body>
</html>
`, title, title, specURL, specURL)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}
}

func writeEnvelope(w http.ResponseWriter, msg *envelope.Message) {
	status := http.StatusOK
	if msg.Error != nil {
		status = envelope.HTTPStatus(msg.Error.Code)
	}
	writeJSON(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}
