package cli

import (
	"context"
	"fmt"
	"io"
	"time"
)

// KeyCleaner removes expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupCommand deletes idempotency keys older than retention.
func CleanupCommand(ctx context.Context, cleaner KeyCleaner, retention time.Duration, stdout, stderr io.Writer) int {
	stdout, stderr = writers(stdout, stderr)
	if retention < time.Hour {
		_, _ = fmt.Fprintln(stderr, "idempotency cleanup: --older-than must be at least 1h")
		return 1
	}
	n, err := cleaner.Cleanup(ctx, retention)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "idempotency cleanup: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "removed %d idempotency key(s) older than %s\n", n, retention)
	return 0
}
