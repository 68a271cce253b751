package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds retries for a single ledger operation. MaxAttempts counts
// the first try, so MaxAttempts=3 means two retries. Delay is the pause
// before each retry; nil means retry immediately.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Policies holds one policy per ledger operation so tests can inject
// zero-delay variants.
type Policies struct {
	Create Policy
	Append Policy
	Update Policy
	Delete Policy
}

// DefaultPolicies mirrors the production retry budget: two retries per
// operation, 1.5s between create attempts, 1s for update/delete, none
// for append.
func DefaultPolicies() Policies {
	return Policies{
		Create: Policy{MaxAttempts: 3, Delay: 1500 * time.Millisecond},
		Append: Policy{MaxAttempts: 3, Delay: 0},
		Update: Policy{MaxAttempts: 3, Delay: time.Second},
		Delete: Policy{MaxAttempts: 3, Delay: time.Second},
	}
}

// ZeroDelayPolicies keeps the attempt budget but removes all delays.
func ZeroDelayPolicies() Policies {
	return Policies{
		Create: Policy{MaxAttempts: 3},
		Append: Policy{MaxAttempts: 3},
		Update: Policy{MaxAttempts: 3},
		Delete: Policy{MaxAttempts: 3},
	}
}

// retry runs op up to p.MaxAttempts times, pausing p.Delay between
// attempts, and honors context cancellation between attempts.
func retry(ctx context.Context, p Policy, name string, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		// A missing row stays missing; retrying cannot help.
		if errors.Is(lastErr, ErrRowNotFound) {
			return lastErr
		}
		if attempt < attempts {
			slog.WarnContext(ctx, "Ledger operation failed, retrying",
				"operation", name,
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", p.Delay,
				"error", lastErr)
			if p.Delay > 0 {
				select {
				case <-time.After(p.Delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

// retryingClient decorates a Client with the bounded retry behaviour.
type retryingClient struct {
	inner    Client
	policies Policies
}

// WithRetry wraps inner so each operation is retried per its policy.
func WithRetry(inner Client, policies Policies) Client {
	return &retryingClient{inner: inner, policies: policies}
}

func (c *retryingClient) CreateLedger(ctx context.Context, ventureID, ventureName string) (string, error) {
	var id string
	err := retry(ctx, c.policies.Create, "create ledger", func(ctx context.Context) error {
		var opErr error
		id, opErr = c.inner.CreateLedger(ctx, ventureID, ventureName)
		return opErr
	})
	return id, err
}

func (c *retryingClient) AppendRow(ctx context.Context, ledgerID string, row []string) error {
	return retry(ctx, c.policies.Append, "append row", func(ctx context.Context) error {
		return c.inner.AppendRow(ctx, ledgerID, row)
	})
}

func (c *retryingClient) UpdateRowByKey(ctx context.Context, ledgerID, key string, row []string) error {
	return retry(ctx, c.policies.Update, "update row", func(ctx context.Context) error {
		return c.inner.UpdateRowByKey(ctx, ledgerID, key, row)
	})
}

func (c *retryingClient) DeleteRowByKey(ctx context.Context, ledgerID, key string) error {
	return retry(ctx, c.policies.Delete, "delete row", func(ctx context.Context) error {
		return c.inner.DeleteRowByKey(ctx, ledgerID, key)
	})
}
