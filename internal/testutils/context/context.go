package context

import (
	"context"
	"testing"
	"time"
)

// WithTest returns a context which is cancelled when the test ends.
//
// When the test has deadline, the context expires margin earlier than that,
// so that cleanups have time to run.
func WithTest(t *testing.T, margin time.Duration) context.Context {
	if deadline, ok := t.Deadline(); ok {
		ctx, cancel := context.WithDeadline(context.Background(), deadline.Add(-margin))
		t.Cleanup(cancel)
		return ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
