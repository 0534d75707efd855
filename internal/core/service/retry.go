package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rl1809/storefront/internal/core/domain"
)

// RetryConfig bounds how often a read-modify-write cycle is replayed after
// losing an optimistic lock race.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxTries:        8,
		InitialInterval: 5 * time.Millisecond,
	}
}

// retryOnConflict replays op while it fails with domain.ErrConflict. Any other
// error is returned at once.
func retryOnConflict[T any](ctx context.Context, cfg RetryConfig, op func() (T, error)) (T, error) {
	if cfg.MaxTries == 0 {
		cfg = DefaultRetryConfig()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = 50 * cfg.InitialInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(cfg.MaxTries))
}
