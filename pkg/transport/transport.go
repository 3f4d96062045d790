// Package transport contains the adapters that carry request envelopes
// between clients and the dispatcher: a stdio line protocol and an HTTP
// server. Both enforce the same authentication and rate limiting before any
// envelope reaches the dispatcher.
package transport

import (
	"context"

	"github.com/meshailabs-org/meshai-mcp/pkg/auth"
	"github.com/meshailabs-org/meshai-mcp/pkg/envelope"
)

// Handler executes one decoded request for an authenticated user. A nil
// response means the request was cancelled and nothing should be written.
type Handler interface {
	Handle(ctx context.Context, req *envelope.Request, user *auth.UserContext) *envelope.Message
}

// Transport serves requests until its context is cancelled.
type Transport interface {
	// Serve blocks until ctx is cancelled or the transport fails.
	Serve(ctx context.Context) error

	// Shutdown drains in-flight requests, bounded by ctx.
	Shutdown(ctx context.Context) error
}
