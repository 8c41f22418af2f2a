package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Engine-internal activity names. These are contracts the worker must
// register implementations for; the engine only ever calls them by name.
const (
	// ActivityCheckRateLimit asks the external limiter for an admission delay.
	ActivityCheckRateLimit = "checkRateLimit"
	// ActivityHandleDslError is the recovery activity invoked on any uncaught
	// failure, responsible for compensating status updates.
	ActivityHandleDslError = "handleDslError"
	// ActivityFetchContent resolves a step's fetch sub-query against the store.
	ActivityFetchContent = "fetchContent"
)

// Registry is the set of activity names the worker has registered. Loaded
// workflow specs are validated against it so an unknown activity name fails
// at load time, not at first invocation.
type Registry struct {
	names map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register records an activity name as resolvable.
func (r *Registry) Register(names ...string) {
	for _, name := range names {
		r.names[name] = struct{}{}
	}
}

// Has reports whether an activity name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.names[name]
	return ok
}

// Names returns the registered names, sorted, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckRateLimitRules verifies that every rate-limited activity kind is
// actually registered. A rule pointing at an unregistered activity means the
// allow-list and the worker registration drifted apart.
func (r *Registry) CheckRateLimitRules() error {
	var missing []string
	for name := range rateLimitRules {
		if !r.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("rate-limited activities not registered: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate walks a workflow spec (including nested child specs) and fails on
// the first activity reference that does not resolve to a registered handler.
func (r *Registry) Validate(spec *WorkflowSpec) error {
	if spec == nil {
		return fmt.Errorf("workflow spec is nil")
	}
	for i, step := range spec.StepList() {
		switch {
		case step.Activity != nil:
			if !r.Has(step.Activity.Name) {
				return fmt.Errorf("workflow %q step %d: unknown activity %q", spec.Name, i, step.Activity.Name)
			}
			if len(step.Activity.Fetch) > 0 && !r.Has(ActivityFetchContent) {
				return fmt.Errorf("workflow %q step %d: fetch requires the %s activity", spec.Name, i, ActivityFetchContent)
			}
		case step.ChildWorkflow != nil:
			if err := r.Validate(step.ChildWorkflow.Spec); err != nil {
				return fmt.Errorf("workflow %q step %d: %w", spec.Name, i, err)
			}
		default:
			return fmt.Errorf("workflow %q step %d: empty step", spec.Name, i)
		}
	}
	return nil
}
