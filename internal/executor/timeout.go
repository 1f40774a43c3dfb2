package executor

import (
	"context"
	"time"
)

// contextWithTimeoutMs derives a deadline-bound context implementing one
// operation's `timeoutMs`, which then propagates into every backend call
// made under it.
func contextWithTimeoutMs(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}
	return context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
}
