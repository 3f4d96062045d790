// Package envelope implements the transport-neutral message envelope shared
// by the stdio and HTTP adapters. Requests, responses, and error objects are
// correlated solely through the client-chosen id, which is echoed verbatim;
// nothing in the format assumes ordering between concurrent requests.
package envelope

import (
	"encoding/json"
	"fmt"
	"net/http"

	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
)

// Request is an inbound message envelope.
type Request struct {
	ID     any            `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// ErrorObject is the error payload carried on an error envelope.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Message is an outbound envelope: exactly one of Result or Error is set.
type Message struct {
	ID     any          `json:"id"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// Decode parses raw bytes into a Request. It fails with a malformed envelope
// error when the payload is not a JSON object or is missing method or id.
func Decode(raw []byte) (*Request, error) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params map[string]any  `json:"params"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, gwerr.NewMalformedEnvelopeError("request is not a valid JSON object", err)
	}
	if probe.Method == "" {
		return nil, gwerr.NewMalformedEnvelopeError("request is missing method", nil)
	}
	if len(probe.ID) == 0 || string(probe.ID) == "null" {
		return nil, gwerr.NewMalformedEnvelopeError("request is missing id", nil)
	}

	var id any
	if err := json.Unmarshal(probe.ID, &id); err != nil {
		return nil, gwerr.NewMalformedEnvelopeError("request id is not valid JSON", err)
	}
	switch id.(type) {
	case string, float64:
	default:
		return nil, gwerr.NewMalformedEnvelopeError("request id must be a string or number", nil)
	}

	params := probe.Params
	if params == nil {
		params = map[string]any{}
	}

	return &Request{ID: id, Method: probe.Method, Params: params}, nil
}

// Encode serializes an outbound message.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// NewResponse creates a success envelope echoing the request id.
func NewResponse(id any, result any) *Message {
	return &Message{ID: id, Result: result}
}

// NewErrorMessage creates an error envelope echoing the request id. The id
// may be nil when the request could not be parsed at all.
func NewErrorMessage(id any, err error) *Message {
	gw := gwerr.FromError(err)
	return &Message{
		ID: id,
		Error: &ErrorObject{
			Code:    gw.Code(),
			Message: gw.Message,
		},
	}
}

// HTTPStatus maps a wire error code to an HTTP response status. Codes that
// are already valid HTTP statuses pass through; anything unrecognized is
// treated as an internal error.
func HTTPStatus(code int) int {
	switch code {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return code
	default:
		return http.StatusInternalServerError
	}
}
