package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
)

const (
	// validatePath is the validation endpoint on the auth service.
	validatePath = "/auth/validate"

	// maxValidateAttempts bounds retries against the auth service. Only
	// transport-level failures are retried; a definitive verdict is never
	// retried.
	maxValidateAttempts = 3

	// validateRetryInterval is the initial backoff between attempts.
	validateRetryInterval = 200 * time.Millisecond
)

// ValidationResult is the auth service's verdict on a token.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	UserID      string   `json:"user_id,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	RateLimit   int      `json:"rate_limit,omitempty"`
}

// Validator obtains a validation verdict for a raw token.
type Validator interface {
	Validate(ctx context.Context, token string) (*ValidationResult, error)
}

// Client calls the remote auth service's validation endpoint. It owns no
// secrets and performs no cryptographic checks; the service is the sole
// authority on token validity.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an auth service client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Validate posts the token to the auth service and returns its verdict.
// Transport errors are retried with exponential backoff up to
// maxValidateAttempts; an HTTP response, whatever its status, is definitive.
func (c *Client) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = validateRetryInterval

	operation := func() (*ValidationResult, error) {
		return c.validateOnce(ctx, body)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxValidateAttempts),
		backoff.WithNotify(func(_ error, duration time.Duration) {
			logger.Debugf("Retrying auth service call after %v", duration)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("auth service unreachable: %w", err)
	}
	return result, nil
}

func (c *Client) validateOnce(ctx context.Context, body []byte) (*ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+validatePath, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build validation request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeout or connection failure; worth another attempt.
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result ValidationResult
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode validation response: %w", err))
		}
		return &result, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		// Definitive negative verdict.
		return &ValidationResult{Valid: false}, nil
	default:
		return nil, backoff.Permanent(fmt.Errorf("auth service returned status %d", resp.StatusCode))
	}
}
