package auction

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

const (
	defaultMaxCommitAttempts = 5
	defaultStoreRetries      = 3
	defaultStoreBackoff      = 25 * time.Millisecond
	maxStoreBackoff          = time.Second
)

// RetryPolicy bounds the read-validate-commit loop. A version conflict re-runs
// the whole cycle against fresh state; a store failure backs off first.
type RetryPolicy struct {
	MaxCommitAttempts int           // conflicts tolerated before ErrContention
	StoreRetries      int           // transient store failures retried; negative disables
	StoreBackoff      time.Duration // base delay, doubled per failure with jitter
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxCommitAttempts <= 0 {
		p.MaxCommitAttempts = defaultMaxCommitAttempts
	}
	switch {
	case p.StoreRetries == 0:
		p.StoreRetries = defaultStoreRetries
	case p.StoreRetries < 0:
		p.StoreRetries = 0
	}
	if p.StoreBackoff <= 0 {
		p.StoreBackoff = defaultStoreBackoff
	}
	return p
}

// Do runs attempt until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Business rejections must be reported through the
// attempt's own result, never as an error.
func (p RetryPolicy) Do(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	conflicts, failures := 0, 0
	for {
		err := attempt(ctx)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return fmt.Errorf("auction: %s: %w", op, ctx.Err())
		case errors.Is(err, domain.ErrVersionConflict):
			conflicts++
			if conflicts >= p.MaxCommitAttempts {
				return fmt.Errorf("auction: %s after %d attempts: %w", op, conflicts, domain.ErrContention)
			}
		case errors.Is(err, domain.ErrStoreUnavailable):
			failures++
			if failures > p.StoreRetries {
				return fmt.Errorf("auction: %s: %w", op, err)
			}
			if err := sleep(ctx, p.backoff(failures)); err != nil {
				return fmt.Errorf("auction: %s: %w", op, err)
			}
		default:
			return fmt.Errorf("auction: %s: %w", op, err)
		}
	}
}

func (p RetryPolicy) backoff(failures int) time.Duration {
	d := p.StoreBackoff << (failures - 1)
	if d > maxStoreBackoff || d <= 0 {
		d = maxStoreBackoff
	}
	// Half fixed, half jittered.
	return d/2 + rand.N(d/2+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
