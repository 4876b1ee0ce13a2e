package client

import (
	"context"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
)

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 100 * time.Millisecond,
}

// retry calls fn until it succeeds, fails with a non-transient error or the
// attempts run out. The delay doubles after every transient failure.
func retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		res T
		err error
	)
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		res, err = fn(ctx)
		if err == nil || !domain.IsTransient(err) || i == attempts-1 {
			return res, err
		}

		select {
		case <-ctx.Done():
			return res, err
		case <-time.After(delay):
		}
		delay *= 2
	}

	return res, err
}
