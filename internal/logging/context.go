package logging

import (
	"context"
	"time"
)

// DetachContextWithTimeout creates a context that survives cancellation of
// parent but carries its own deadline. Store writes that follow a user-visible
// result use it so a cancelled request still records the turn.
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(parent)
	return context.WithTimeout(detached, timeout)
}
