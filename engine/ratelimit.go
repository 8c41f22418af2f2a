package engine

import (
	"time"

	"go.temporal.io/sdk/workflow"
)

// rateLimitRule tells the gate which resolved param carries the rate-limit
// identifier for one activity kind, and the fallback when it is absent.
// An empty DefaultID means the identifier is required.
type rateLimitRule struct {
	Param     string
	DefaultID string
}

// rateLimitRules is the fixed allow-list of rate-limited activity kinds.
// Adding an activity here without registering it (or vice versa) fails
// Registry.CheckRateLimitRules at worker startup.
var rateLimitRules = map[string]rateLimitRule{
	"executeInteraction":         {Param: "interaction"},
	"generateDocumentProperties": {Param: "interactionName", DefaultID: "sys:GenerateMetadata"},
	"generateEmbeddings":         {Param: "model", DefaultID: "embeddings"},
}

// IsRateLimited reports whether an activity kind must pass the gate before
// invocation.
func IsRateLimited(activityName string) bool {
	_, ok := rateLimitRules[activityName]
	return ok
}

// rateLimitKey extracts the limiter key from the step's resolved params.
// A missing identifier with no per-kind default is a fatal configuration
// error: the step cannot proceed and must not be retried.
func rateLimitKey(activityName string, params map[string]any) (RateLimitParams, error) {
	rule := rateLimitRules[activityName]

	id, _ := params[rule.Param].(string)
	if id == "" {
		id = rule.DefaultID
	}
	if id == "" {
		return RateLimitParams{}, NewConfigurationError(activityName,
			"cannot determine rate limit identifier: param %q is not set", rule.Param)
	}

	key := RateLimitParams{InteractionIDOrEndpoint: id}
	if env, ok := params["environment"].(string); ok {
		key.EnvironmentID = env
	}
	if model, ok := params["model"].(string); ok {
		key.ModelID = model
	}
	return key, nil
}

// waitForRateLimit polls the external limiter until it grants admission.
// Each round asks checkRateLimit for a delay and sleeps it off; zero delay
// means go. There is no bound here beyond the step's own timeout envelope,
// so rate-limited steps need a generous scheduleToCloseTimeout.
func waitForRateLimit(ctx workflow.Context, base BaseActivityPayload, activityName string, params map[string]any) error {
	key, err := rateLimitKey(activityName, params)
	if err != nil {
		return err
	}

	logger := workflow.GetLogger(ctx)
	checkParams := map[string]any{
		"interactionIdOrEndpoint": key.InteractionIDOrEndpoint,
		"environmentId":           key.EnvironmentID,
		"modelId":                 key.ModelID,
	}
	payload := ActivityPayload{
		BaseActivityPayload: base,
		Activity:            ActivityRef{Name: ActivityCheckRateLimit, Params: checkParams},
		Params:              checkParams,
	}

	for {
		var result RateLimitResult
		if err := workflow.ExecuteActivity(ctx, ActivityCheckRateLimit, payload).Get(ctx, &result); err != nil {
			return err
		}
		if result.DelayMs <= 0 {
			return nil
		}
		logger.Info("Rate limited, waiting before activity",
			"activity", activityName,
			"identifier", key.InteractionIDOrEndpoint,
			"delayMs", result.DelayMs)
		if err := workflow.Sleep(ctx, time.Duration(result.DelayMs)*time.Millisecond); err != nil {
			return err
		}
	}
}
