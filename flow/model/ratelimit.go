package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Generator with client-side request pacing so a burst
// of executions cannot exhaust a provider quota. Calls block until the
// limiter grants a slot or the context is cancelled.
type RateLimited struct {
	inner   Generator
	limiter *rate.Limiter
}

// NewRateLimited paces the inner generator at rps requests per second with
// the given burst allowance.
//
//	gen := model.NewRateLimited(openai.NewGenerator(key, ""), 2, 4)
func NewRateLimited(inner Generator, rps float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GenerateText implements Generator.
func (r *RateLimited) GenerateText(ctx context.Context, req TextRequest) (TextResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return TextResult{}, err
	}
	return r.inner.GenerateText(ctx, req)
}

// StreamText implements Generator.
func (r *RateLimited) StreamText(ctx context.Context, req TextRequest, onToken TokenFunc) (TextResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return TextResult{}, err
	}
	return r.inner.StreamText(ctx, req, onToken)
}

// GenerateStructured implements Generator.
func (r *RateLimited) GenerateStructured(ctx context.Context, req StructuredRequest) (map[string]any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.GenerateStructured(ctx, req)
}
