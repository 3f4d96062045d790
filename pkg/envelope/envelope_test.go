package envelope_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshailabs-org/meshai-mcp/pkg/envelope"
	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantErr    bool
		wantID     any
		wantMethod string
	}{
		{
			name:       "string id",
			input:      `{"id": "req-1", "method": "tools/list"}`,
			wantID:     "req-1",
			wantMethod: "tools/list",
		},
		{
			name:       "numeric id",
			input:      `{"id": 42, "method": "mesh_execute", "params": {"task": "review"}}`,
			wantID:     float64(42),
			wantMethod: "mesh_execute",
		},
		{
			name:    "not json",
			input:   `{{{`,
			wantErr: true,
		},
		{
			name:    "missing id",
			input:   `{"method": "tools/list"}`,
			wantErr: true,
		},
		{
			name:    "null id",
			input:   `{"id": null, "method": "tools/list"}`,
			wantErr: true,
		},
		{
			name:    "object id",
			input:   `{"id": {"a": 1}, "method": "tools/list"}`,
			wantErr: true,
		},
		{
			name:    "array id",
			input:   `{"id": [1], "method": "tools/list"}`,
			wantErr: true,
		},
		{
			name:    "boolean id",
			input:   `{"id": true, "method": "tools/list"}`,
			wantErr: true,
		},
		{
			name:    "missing method",
			input:   `{"id": "req-1"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, err := envelope.Decode([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, gwerr.IsMalformedEnvelope(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, req.ID)
			assert.Equal(t, tt.wantMethod, req.Method)
			assert.NotNil(t, req.Params)
		})
	}
}

func TestDecodePreservesParams(t *testing.T) {
	t.Parallel()

	req, err := envelope.Decode([]byte(`{"id": 1, "method": "mesh_code_review", "params": {"files": ["main.go"], "depth": "standard"}}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"main.go"}, req.Params["files"])
	assert.Equal(t, "standard", req.Params["depth"])
}

func TestNewErrorMessageEchoesID(t *testing.T) {
	t.Parallel()

	msg := envelope.NewErrorMessage("req-7", gwerr.NewInvalidTokenError("Invalid or expired token"))
	require.NotNil(t, msg.Error)
	assert.Equal(t, "req-7", msg.ID)
	assert.Equal(t, 401, msg.Error.Code)
	assert.Equal(t, "Invalid or expired token", msg.Error.Message)
	assert.Nil(t, msg.Result)
}

func TestNewErrorMessageHidesInternalDetail(t *testing.T) {
	t.Parallel()

	msg := envelope.NewErrorMessage(1, errors.New("pq: connection refused on 10.0.0.3"))
	require.NotNil(t, msg.Error)
	assert.Equal(t, 500, msg.Error.Code)
	assert.NotContains(t, msg.Error.Message, "10.0.0.3")
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := envelope.Encode(envelope.NewResponse("req-1", map[string]any{"ok": true}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "req-1", decoded["id"])
	assert.Equal(t, map[string]any{"ok": true}, decoded["result"])
	assert.NotContains(t, decoded, "error")
}

func TestEncodeNullIDForUnparseableRequest(t *testing.T) {
	t.Parallel()

	data, err := envelope.Encode(envelope.NewErrorMessage(nil, gwerr.NewMalformedEnvelopeError("request is not a valid JSON object", nil)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":null`)
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want int
	}{
		{400, http.StatusBadRequest},
		{401, http.StatusUnauthorized},
		{403, http.StatusForbidden},
		{404, http.StatusNotFound},
		{429, http.StatusTooManyRequests},
		{502, http.StatusBadGateway},
		{503, http.StatusServiceUnavailable},
		{500, http.StatusInternalServerError},
		{418, http.StatusInternalServerError},
		{0, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envelope.HTTPStatus(tt.code), "code %d", tt.code)
	}
}
