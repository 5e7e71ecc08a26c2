package duck

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const maxConflictRetries = 8

// IsConflictError reports whether err is a DuckDB optimistic-concurrency failure that
// succeeds when the whole transaction is replayed. Two transactions inserting the same
// new primary key surface as a duplicate key error on the losing side, worded either as
// "Duplicate key" or as "constraint violation: duplicate key" depending on the DuckDB
// version and whether it is raised at insert or at commit.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "transaction conflict") ||
		strings.Contains(errStr, "write-write conflict") ||
		strings.Contains(errStr, "conflict on tuple") ||
		strings.Contains(errStr, "conflict on update") ||
		strings.Contains(errStr, "duplicate key")
}

// RetryOnConflict runs fn, replaying it with exponential backoff while it fails with a
// conflict error. Any other error is returned immediately.
func RetryOnConflict(ctx context.Context, log *slog.Logger, operation string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info("duck: operation succeeded after retries", "operation", operation, "attempts", attempt)
			}
			return struct{}{}, nil
		}
		if !IsConflictError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		log.Warn("duck: transaction conflict detected, retrying", "operation", operation, "attempt", attempt, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxConflictRetries))
	return err
}
