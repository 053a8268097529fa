package csql

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/relabs-tech/wedcards/core/logger"
)

// RetryTransient runs op and retries it with exponential backoff as long as it
// fails with a transient transaction error. Any other error is returned at once.
func RetryTransient(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return retry(ctx, op, b)
}

func retry(ctx context.Context, op func() error, b backoff.BackOff) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		logger.FromContext(ctx).WithError(err).Warnf("transient transaction failure, attempt %d", attempt)
		return err
	}, backoff.WithContext(b, ctx))
}
