package transport_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshailabs-org/meshai-mcp/pkg/auth"
	"github.com/meshailabs-org/meshai-mcp/pkg/auth/cache"
	"github.com/meshailabs-org/meshai-mcp/pkg/envelope"
	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
	"github.com/meshailabs-org/meshai-mcp/pkg/ratelimit"
	"github.com/meshailabs-org/meshai-mcp/pkg/transport"
)

// stubValidator scripts the auth service verdict.
type stubValidator struct {
	result *auth.ValidationResult
	err    error
}

func (s *stubValidator) Validate(_ context.Context, _ string) (*auth.ValidationResult, error) {
	return s.result, s.err
}

// echoHandler answers every request with its method, or an error for the
// method "boom".
type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, req *envelope.Request, _ *auth.UserContext) *envelope.Message {
	if req.Method == "boom" {
		return envelope.NewErrorMessage(req.ID, gwerr.NewMethodNotFoundError("unknown method: boom"))
	}
	return envelope.NewResponse(req.ID, map[string]any{"method": req.Method})
}

func newStubAuthenticator(validator auth.Validator) *auth.Authenticator {
	return auth.NewAuthenticator(validator, cache.NewMemoryCache(100), 5*time.Minute, 30*time.Second, 100)
}

func validResult(rateLimit int) *auth.ValidationResult {
	return &auth.ValidationResult{
		Valid:       true,
		UserID:      uuid.NewString(),
		Permissions: []string{"execute:mcp", "write:agents", "read:tools"},
		RateLimit:   rateLimit,
	}
}

// syncBuffer is a goroutine-safe bytes.Buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runStdio serves the given input to completion and returns the output
// messages.
func runStdio(t *testing.T, input string, rateLimit int) []envelope.Message {
	t.Helper()

	out := &syncBuffer{}
	s := transport.NewStdio(
		strings.NewReader(input),
		out,
		newStubAuthenticator(&stubValidator{result: validResult(rateLimit)}),
		ratelimit.NewLimiter(),
		echoHandler{},
		"process-token",
	)
	require.NoError(t, s.Serve(context.Background()))

	var messages []envelope.Message
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var msg envelope.Message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg), "every output line must be a valid envelope")
		messages = append(messages, msg)
	}
	return messages
}

func TestStdioServesRequests(t *testing.T) {
	t.Parallel()

	messages := runStdio(t, `{"id": "a", "method": "tools/list"}
{"id": 2, "method": "workflows/list"}
`, 100)
	require.Len(t, messages, 2)

	byID := make(map[any]envelope.Message)
	for _, msg := range messages {
		byID[msg.ID] = msg
	}
	require.Contains(t, byID, "a")
	require.Contains(t, byID, float64(2))
	assert.Nil(t, byID["a"].Error)
	assert.Equal(t, map[string]any{"method": "tools/list"}, byID["a"].Result)
}

func TestStdioMalformedLine(t *testing.T) {
	t.Parallel()

	messages := runStdio(t, "this is not json\n", 100)
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].Error)
	assert.Nil(t, messages[0].ID, "no id can be recovered from a malformed line")
	assert.Equal(t, 400, messages[0].Error.Code)
}

func TestStdioSkipsBlankLines(t *testing.T) {
	t.Parallel()

	messages := runStdio(t, "\n\n{\"id\": \"a\", \"method\": \"tools/list\"}\n\n", 100)
	assert.Len(t, messages, 1)
}

func TestStdioHandlerErrorsAreEnvelopes(t *testing.T) {
	t.Parallel()

	messages := runStdio(t, `{"id": "a", "method": "boom"}`+"\n", 100)
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].Error)
	assert.Equal(t, "a", messages[0].ID)
	assert.Equal(t, 404, messages[0].Error.Code)
}

func TestStdioRateLimitsTheStream(t *testing.T) {
	t.Parallel()

	input := `{"id": 1, "method": "tools/list"}
{"id": 2, "method": "tools/list"}
{"id": 3, "method": "tools/list"}
`
	messages := runStdio(t, input, 2)
	require.Len(t, messages, 3)

	limited := 0
	for _, msg := range messages {
		if msg.Error != nil {
			assert.Equal(t, 429, msg.Error.Code)
			assert.NotNil(t, msg.ID, "rate-limited requests still echo their id")
			limited++
		}
	}
	assert.Equal(t, 1, limited, "exactly one request should exceed the limit of 2")
}

func TestStdioRejectsBadProcessCredential(t *testing.T) {
	t.Parallel()

	s := transport.NewStdio(
		strings.NewReader(`{"id": "a", "method": "tools/list"}`+"\n"),
		&syncBuffer{},
		newStubAuthenticator(&stubValidator{result: &auth.ValidationResult{Valid: false}}),
		ratelimit.NewLimiter(),
		echoHandler{},
		"revoked-token",
	)

	err := s.Serve(context.Background())
	require.Error(t, err)
	assert.True(t, gwerr.IsInvalidToken(err))
}

func TestStdioShutdownAfterServe(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	s := transport.NewStdio(
		strings.NewReader(`{"id": "a", "method": "tools/list"}`+"\n"),
		out,
		newStubAuthenticator(&stubValidator{result: validResult(100)}),
		ratelimit.NewLimiter(),
		echoHandler{},
		"process-token",
	)
	require.NoError(t, s.Serve(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
