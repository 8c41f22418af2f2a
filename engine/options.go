package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Engine-wide hard defaults applied beneath workflow-level options.
const (
	defaultStartToCloseTimeout = 5 * time.Minute
	defaultRetryInterval       = 10 * time.Second
	defaultBackoffCoefficient  = 2.0
	defaultMaximumAttempts     = 10
	defaultMaximumInterval     = 30000 * time.Second
)

var durationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-zA-Z]+)$`)

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond, "millisecond": time.Millisecond,
	"s": time.Second, "sec": time.Second, "second": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hour": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour,
}

// ParseDuration converts the DSL's duration dialect into a time.Duration.
// Accepted forms: Go durations ("10s", "1h30m"), word forms ("5 minute",
// "2 hours"), and bare numbers interpreted as milliseconds ("100000").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	// Exact unit first so "ms" is not mistaken for a plural "m".
	raw := strings.ToLower(m[2])
	unit, ok := durationUnits[raw]
	if !ok {
		if unit, ok = durationUnits[strings.TrimSuffix(raw, "s")]; !ok {
			return 0, fmt.Errorf("invalid duration unit %q in %q", m[2], s)
		}
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(n * float64(unit)), nil
}

// DefaultActivityOptions merges workflow-level DSL options onto the engine's
// hard defaults. The result seeds every step that declares no overrides.
func DefaultActivityOptions(workflowOpts *ActivityOptionsSpec) (workflow.ActivityOptions, error) {
	defaults := workflow.ActivityOptions{
		StartToCloseTimeout: defaultStartToCloseTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        defaultRetryInterval,
			BackoffCoefficient:     defaultBackoffCoefficient,
			MaximumAttempts:        defaultMaximumAttempts,
			MaximumInterval:        defaultMaximumInterval,
			NonRetryableErrorTypes: append([]string(nil), DefaultNonRetryableErrorTypes...),
		},
	}
	return ComputeActivityOptions(workflowOpts, defaults)
}

// ComputeActivityOptions overlays per-step DSL options onto defaults. The
// retry sub-object merges field by field: a step specifying only
// maximumAttempts keeps the default backoff coefficient. Pure — same inputs
// always produce the same output, as replay requires.
func ComputeActivityOptions(stepOpts *ActivityOptionsSpec, defaults workflow.ActivityOptions) (workflow.ActivityOptions, error) {
	opts := defaults
	if defaults.RetryPolicy != nil {
		policy := *defaults.RetryPolicy
		policy.NonRetryableErrorTypes = append([]string(nil), defaults.RetryPolicy.NonRetryableErrorTypes...)
		opts.RetryPolicy = &policy
	}
	if stepOpts == nil {
		return opts, nil
	}

	var err error
	if stepOpts.StartToCloseTimeout != "" {
		if opts.StartToCloseTimeout, err = ParseDuration(stepOpts.StartToCloseTimeout); err != nil {
			return opts, fmt.Errorf("startToCloseTimeout: %w", err)
		}
	}
	if stepOpts.ScheduleToCloseTimeout != "" {
		if opts.ScheduleToCloseTimeout, err = ParseDuration(stepOpts.ScheduleToCloseTimeout); err != nil {
			return opts, fmt.Errorf("scheduleToCloseTimeout: %w", err)
		}
	}
	if stepOpts.ScheduleToStartTimeout != "" {
		if opts.ScheduleToStartTimeout, err = ParseDuration(stepOpts.ScheduleToStartTimeout); err != nil {
			return opts, fmt.Errorf("scheduleToStartTimeout: %w", err)
		}
	}

	if stepOpts.Retry != nil {
		if opts.RetryPolicy == nil {
			opts.RetryPolicy = &temporal.RetryPolicy{}
		}
		r := stepOpts.Retry
		if r.InitialInterval != "" {
			if opts.RetryPolicy.InitialInterval, err = ParseDuration(r.InitialInterval); err != nil {
				return opts, fmt.Errorf("retry.initialInterval: %w", err)
			}
		}
		if r.BackoffCoefficient != nil {
			opts.RetryPolicy.BackoffCoefficient = *r.BackoffCoefficient
		}
		if r.MaximumAttempts != nil {
			opts.RetryPolicy.MaximumAttempts = *r.MaximumAttempts
		}
		if r.MaximumInterval != "" {
			if opts.RetryPolicy.MaximumInterval, err = ParseDuration(r.MaximumInterval); err != nil {
				return opts, fmt.Errorf("retry.maximumInterval: %w", err)
			}
		}
		if len(r.NonRetryableErrorTypes) > 0 {
			opts.RetryPolicy.NonRetryableErrorTypes = append([]string(nil), r.NonRetryableErrorTypes...)
		}
	}

	return opts, nil
}

// ComputeChildWorkflowOptions converts declarative child workflow settings.
// The workflow id is supplied by the dispatcher (derived deterministically
// from the parent execution) rather than declared in the DSL.
func ComputeChildWorkflowOptions(spec *ChildWorkflowOptionsSpec) (workflow.ChildWorkflowOptions, error) {
	var opts workflow.ChildWorkflowOptions
	if spec == nil {
		return opts, nil
	}

	var err error
	if spec.WorkflowRunTimeout != "" {
		if opts.WorkflowRunTimeout, err = ParseDuration(spec.WorkflowRunTimeout); err != nil {
			return opts, fmt.Errorf("workflowRunTimeout: %w", err)
		}
	}
	if spec.WorkflowExecutionTimeout != "" {
		if opts.WorkflowExecutionTimeout, err = ParseDuration(spec.WorkflowExecutionTimeout); err != nil {
			return opts, fmt.Errorf("workflowExecutionTimeout: %w", err)
		}
	}
	opts.TaskQueue = spec.TaskQueue

	if spec.Retry != nil {
		policy := &temporal.RetryPolicy{}
		r := spec.Retry
		if r.InitialInterval != "" {
			if policy.InitialInterval, err = ParseDuration(r.InitialInterval); err != nil {
				return opts, fmt.Errorf("retry.initialInterval: %w", err)
			}
		}
		if r.BackoffCoefficient != nil {
			policy.BackoffCoefficient = *r.BackoffCoefficient
		}
		if r.MaximumAttempts != nil {
			policy.MaximumAttempts = *r.MaximumAttempts
		}
		if r.MaximumInterval != "" {
			if policy.MaximumInterval, err = ParseDuration(r.MaximumInterval); err != nil {
				return opts, fmt.Errorf("retry.maximumInterval: %w", err)
			}
		}
		policy.NonRetryableErrorTypes = append([]string(nil), r.NonRetryableErrorTypes...)
		opts.RetryPolicy = policy
	}

	return opts, nil
}
