package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/vertesia/dslflow/engine"
)

// CheckRateLimit asks the studio limiter how long the calling execution must
// wait before invoking a rate-limited activity. A zero delay means admission.
// The gate inside the workflow polls this until it gets zero.
func (s *Service) CheckRateLimit(ctx context.Context, p engine.ActivityPayload) (engine.RateLimitResult, error) {
	var key engine.RateLimitParams
	if err := s.decodeParams(p.Params, &key); err != nil {
		return engine.RateLimitResult{}, err
	}

	var result engine.RateLimitResult
	resp, err := s.request(p).
		SetContext(ctx).
		SetBody(key).
		SetResult(&result).
		Post(p.Config.StudioURL + "/api/v1/rate-limits/check")
	if err != nil {
		return engine.RateLimitResult{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if resp.IsError() {
		return engine.RateLimitResult{}, fmt.Errorf("rate limit check returned %s", resp.Status())
	}

	if result.DelayMs > 0 {
		activity.GetLogger(ctx).Info("Rate limiter deferred admission",
			"identifier", key.InteractionIDOrEndpoint, "delayMs", result.DelayMs)
	}
	return result, nil
}
