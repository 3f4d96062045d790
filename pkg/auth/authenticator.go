package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meshailabs-org/meshai-mcp/pkg/auth/cache"
	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
)

// Authenticator turns raw bearer tokens into user contexts. It consults the
// verdict cache first and falls back to the remote auth service; it is the
// only component that reads or writes the cache.
type Authenticator struct {
	validator        Validator
	cache            cache.Cache
	ttl              time.Duration
	negativeTTL      time.Duration
	defaultRateLimit int
}

// NewAuthenticator creates an authenticator. Negative verdicts are cached
// for negativeTTL, which should be much shorter than ttl so a token that
// becomes valid shortly after a failed check is not masked for long.
func NewAuthenticator(
	validator Validator,
	verdictCache cache.Cache,
	ttl time.Duration,
	negativeTTL time.Duration,
	defaultRateLimit int,
) *Authenticator {
	return &Authenticator{
		validator:        validator,
		cache:            verdictCache,
		ttl:              ttl,
		negativeTTL:      negativeTTL,
		defaultRateLimit: defaultRateLimit,
	}
}

// Authenticate validates a raw bearer token and returns the user context.
// Failures are typed: missing token, invalid token, or auth service
// unavailable. A request is never silently allowed when the auth service
// cannot be reached.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*UserContext, error) {
	if token == "" {
		return nil, gwerr.NewMissingTokenError("authorization token required")
	}

	key := cache.Key(token)

	verdict, err := a.cache.Get(ctx, key)
	if err != nil {
		// A broken cache degrades to a miss; the auth service still decides.
		logger.Warnw("verdict cache lookup failed", "error", err)
	}
	if verdict != nil {
		if !verdict.Valid {
			return nil, gwerr.NewInvalidTokenError("Invalid or expired token")
		}
		return userFromVerdict(verdict), nil
	}

	result, err := a.validator.Validate(ctx, token)
	if err != nil {
		return nil, gwerr.NewAuthUnavailableError("authentication service unavailable", err)
	}

	if !result.Valid {
		if err := a.cache.Set(ctx, key, &cache.Verdict{Valid: false}, a.negativeTTL); err != nil {
			logger.Warnw("failed to cache negative verdict", "error", err)
		}
		return nil, gwerr.NewInvalidTokenError("Invalid or expired token")
	}

	verdict, err = a.verdictFromResult(result)
	if err != nil {
		return nil, gwerr.NewAuthUnavailableError("authentication service returned malformed claims", err)
	}
	if err := a.cache.Set(ctx, key, verdict, a.ttl); err != nil {
		logger.Warnw("failed to cache verdict", "error", err)
	}
	return userFromVerdict(verdict), nil
}

func (a *Authenticator) verdictFromResult(result *ValidationResult) (*cache.Verdict, error) {
	userID, err := uuid.Parse(result.UserID)
	if err != nil {
		return nil, err
	}

	tenantID := uuid.Nil
	if result.TenantID != "" {
		tenantID, err = uuid.Parse(result.TenantID)
		if err != nil {
			return nil, err
		}
	}

	rateLimit := result.RateLimit
	if rateLimit <= 0 {
		rateLimit = a.defaultRateLimit
	}

	return &cache.Verdict{
		Valid:       true,
		UserID:      userID,
		TenantID:    tenantID,
		Permissions: result.Permissions,
		RateLimit:   rateLimit,
	}, nil
}

func userFromVerdict(v *cache.Verdict) *UserContext {
	return &UserContext{
		UserID:      v.UserID,
		TenantID:    v.TenantID,
		Permissions: v.Permissions,
		RateLimit:   v.RateLimit,
	}
}
