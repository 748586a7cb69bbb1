// Package ratelimit throttles concurrent harness invocations with a
// process-local token bucket, so a workflow with many simultaneously
// activating agents doesn't overrun a backend's rate limits.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/reactorflow/engine/harness"
)

// Limiter wraps a harness.Harness with a requests-per-second token bucket.
type Limiter struct {
	limiter *rate.Limiter
	next    harness.Harness
}

// New wraps next with a limiter allowing burst immediate calls and
// refilling at ratePerSecond thereafter. ratePerSecond <= 0 means
// unlimited (every call proceeds immediately).
func New(next harness.Harness, ratePerSecond float64, burst int) *Limiter {
	if ratePerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0), next: next}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst), next: next}
}

// Run blocks until the limiter admits this call (or ctx is cancelled), then
// delegates to the wrapped harness.
func (l *Limiter) Run(ctx context.Context, in harness.Input, rc harness.RunContext) (harness.Stream, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ratelimit: wait: %w", err)
	}
	return l.next.Run(ctx, in, rc)
}

var _ harness.Harness = (*Limiter)(nil)
