package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/meshailabs-org/meshai-mcp/pkg/auth"
	"github.com/meshailabs-org/meshai-mcp/pkg/envelope"
	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
	"github.com/meshailabs-org/meshai-mcp/pkg/ratelimit"
)

// maxLineSize bounds a single stdio request line.
const maxLineSize = 4 << 20

// Stdio serves the line protocol: one JSON request envelope per input line,
// one response envelope per output line. The process credential is validated
// once at startup; its user context and rate limit apply to every request on
// the stream. Responses may interleave in any order relative to their
// requests, so clients correlate by id.
type Stdio struct {
	in            io.Reader
	out           io.Writer
	authenticator *auth.Authenticator
	limiter       *ratelimit.Limiter
	handler       Handler
	token         string

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewStdio creates a stdio transport reading from in and writing to out.
// token is the process-level credential.
func NewStdio(in io.Reader, out io.Writer, authenticator *auth.Authenticator, limiter *ratelimit.Limiter, handler Handler, token string) *Stdio {
	return &Stdio{
		in:            in,
		out:           out,
		authenticator: authenticator,
		limiter:       limiter,
		handler:       handler,
		token:         token,
	}
}

// Serve validates the process credential, then reads request lines until
// input is exhausted or ctx is cancelled. Each request is handled on its own
// goroutine so a slow workflow never blocks the next line.
//
// Cancellation is observed between lines: an idle stream stays blocked in
// the read until the next line or EOF arrives, so closing stdin is what
// unblocks a signalled shutdown promptly. The host process owns stdin and
// closes it when it tears the gateway down.
func (s *Stdio) Serve(ctx context.Context) error {
	user, err := s.authenticator.Authenticate(ctx, s.token)
	if err != nil {
		return fmt.Errorf("failed to validate process credential: %w", err)
	}
	logger.Infow("stdio transport ready", "user_id", user.UserID)

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer on the next Scan.
		raw := make([]byte, len(line))
		copy(raw, line)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleLine(ctx, raw, user)
		}()
	}

	s.wg.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio read failed: %w", err)
	}
	return ctx.Err()
}

// Shutdown waits for in-flight requests, bounded by ctx.
func (s *Stdio) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stdio) handleLine(ctx context.Context, raw []byte, user *auth.UserContext) {
	req, err := envelope.Decode(raw)
	if err != nil {
		// No id could be recovered; the error envelope carries id null.
		s.write(envelope.NewErrorMessage(nil, err))
		return
	}

	result := s.limiter.CheckAndIncrement(user.UserID, user.RateLimit)
	if !result.Allowed {
		s.write(envelope.NewErrorMessage(req.ID, gwerr.NewRateLimitedError(
			fmt.Sprintf("rate limit exceeded: %d requests/hour", user.RateLimit))))
		return
	}

	if msg := s.handler.Handle(ctx, req, user); msg != nil {
		s.write(msg)
	}
}

// write serializes one envelope onto the output stream. The mutex keeps
// concurrent responses from interleaving mid-line.
func (s *Stdio) write(msg *envelope.Message) {
	data, err := envelope.Encode(msg)
	if err != nil {
		logger.Errorf("failed to encode response envelope: %v", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		logger.Errorf("failed to write response: %v", err)
	}
}
