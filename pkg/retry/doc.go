// Package retry runs an operation with exponential backoff and jitter.
//
// Basic usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return market.Ping(ctx)
//	})
//
// Errors that know how long the caller should wait (an HTTP 429 with
// Retry-After, a Discord rate limit) implement DelayHinter; their hint
// replaces the computed backoff for that attempt.
//
// Custom retry decisions:
//
//	err := retry.DoWithRetryable(ctx, cfg, fn, func(err error) bool {
//	    return scheduler.IsStoreUnavailable(err)
//	})
package retry
