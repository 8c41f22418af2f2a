package engine

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// WorkflowSpec is the declarative workflow definition. It is immutable once an
// execution starts: the driver only ever reads it.
type WorkflowSpec struct {
	Name        string               `yaml:"name" json:"name" validate:"required"`
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Vars        map[string]any       `yaml:"vars,omitempty" json:"vars,omitempty"`
	Result      string               `yaml:"result,omitempty" json:"result,omitempty"`
	Options     *ActivityOptionsSpec `yaml:"options,omitempty" json:"options,omitempty"`
	Steps       []Step               `yaml:"steps,omitempty" json:"steps,omitempty"`
	// Activities is the legacy step-list shape. It is normalized into Steps
	// immediately after parsing; the rest of the engine never sees it.
	Activities []ActivitySpec `yaml:"activities,omitempty" json:"activities,omitempty"`
}

// StepList returns the normalized step list, folding the legacy activities
// shape into the current one.
func (w *WorkflowSpec) StepList() []Step {
	if len(w.Steps) > 0 {
		return w.Steps
	}
	steps := make([]Step, 0, len(w.Activities))
	for i := range w.Activities {
		steps = append(steps, Step{Activity: &w.Activities[i]})
	}
	return steps
}

// Step is a tagged union: exactly one of Activity or ChildWorkflow is set.
// The YAML/JSON discriminator is the "type" field ("activity" when absent).
type Step struct {
	Activity      *ActivitySpec
	ChildWorkflow *ChildWorkflowSpec
}

// ActivitySpec invokes a named activity with expression-bearing params.
type ActivitySpec struct {
	Name      string                    `yaml:"name" json:"name" validate:"required"`
	Title     string                    `yaml:"title,omitempty" json:"title,omitempty"`
	Params    map[string]any            `yaml:"params,omitempty" json:"params,omitempty"`
	Import    []string                  `yaml:"import,omitempty" json:"import,omitempty"`
	Output    string                    `yaml:"output,omitempty" json:"output,omitempty"`
	Condition string                    `yaml:"condition,omitempty" json:"condition,omitempty"`
	Options   *ActivityOptionsSpec      `yaml:"options,omitempty" json:"options,omitempty"`
	Fetch     map[string]map[string]any `yaml:"fetch,omitempty" json:"fetch,omitempty"`
	// Parallel is accepted by the schema but execution is sequential; the
	// dispatcher logs a notice when it is set.
	Parallel bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

// ChildWorkflowSpec starts a nested workflow, awaited when Async is false.
type ChildWorkflowSpec struct {
	Name      string                    `yaml:"name" json:"name" validate:"required"`
	Spec      *WorkflowSpec             `yaml:"spec" json:"spec" validate:"required"`
	Vars      map[string]any            `yaml:"vars,omitempty" json:"vars,omitempty"`
	Output    string                    `yaml:"output,omitempty" json:"output,omitempty"`
	Async     bool                      `yaml:"async,omitempty" json:"async,omitempty"`
	Options   *ChildWorkflowOptionsSpec `yaml:"options,omitempty" json:"options,omitempty"`
	Condition string                    `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// ActivityOptionsSpec carries declarative timeout/retry settings. Durations
// are human-readable strings ("5 minute", "10s", "100000" for millis).
type ActivityOptionsSpec struct {
	StartToCloseTimeout    string           `yaml:"startToCloseTimeout,omitempty" json:"startToCloseTimeout,omitempty"`
	ScheduleToCloseTimeout string           `yaml:"scheduleToCloseTimeout,omitempty" json:"scheduleToCloseTimeout,omitempty"`
	ScheduleToStartTimeout string           `yaml:"scheduleToStartTimeout,omitempty" json:"scheduleToStartTimeout,omitempty"`
	Retry                  *RetryPolicySpec `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// RetryPolicySpec merges field-wise onto the default policy: pointer fields
// distinguish "not specified" from zero values.
type RetryPolicySpec struct {
	InitialInterval        string   `yaml:"initialInterval,omitempty" json:"initialInterval,omitempty"`
	BackoffCoefficient     *float64 `yaml:"backoffCoefficient,omitempty" json:"backoffCoefficient,omitempty"`
	MaximumAttempts        *int32   `yaml:"maximumAttempts,omitempty" json:"maximumAttempts,omitempty"`
	MaximumInterval        string   `yaml:"maximumInterval,omitempty" json:"maximumInterval,omitempty"`
	NonRetryableErrorTypes []string `yaml:"nonRetryableErrorTypes,omitempty" json:"nonRetryableErrorTypes,omitempty"`
}

// ChildWorkflowOptionsSpec carries declarative child workflow settings.
type ChildWorkflowOptionsSpec struct {
	WorkflowRunTimeout       string           `yaml:"workflowRunTimeout,omitempty" json:"workflowRunTimeout,omitempty"`
	WorkflowExecutionTimeout string           `yaml:"workflowExecutionTimeout,omitempty" json:"workflowExecutionTimeout,omitempty"`
	TaskQueue                string           `yaml:"taskQueue,omitempty" json:"taskQueue,omitempty"`
	Retry                    *RetryPolicySpec `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// stepProbe reads only the discriminator.
type stepProbe struct {
	Type string `yaml:"type" json:"type"`
}

const (
	stepTypeActivity = "activity"
	stepTypeWorkflow = "workflow"
)

func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var probe stepProbe
	if err := node.Decode(&probe); err != nil {
		return err
	}
	switch probe.Type {
	case stepTypeWorkflow:
		var child ChildWorkflowSpec
		if err := node.Decode(&child); err != nil {
			return err
		}
		s.ChildWorkflow = &child
	case stepTypeActivity, "":
		var act ActivitySpec
		if err := node.Decode(&act); err != nil {
			return err
		}
		s.Activity = &act
	default:
		return fmt.Errorf("unknown step type %q", probe.Type)
	}
	return nil
}

func (s Step) MarshalYAML() (any, error) {
	switch {
	case s.ChildWorkflow != nil:
		return taggedChildWorkflow{Type: stepTypeWorkflow, ChildWorkflowSpec: *s.ChildWorkflow}, nil
	case s.Activity != nil:
		return taggedActivity{Type: stepTypeActivity, ActivitySpec: *s.Activity}, nil
	default:
		return nil, fmt.Errorf("step has neither activity nor child workflow")
	}
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var probe stepProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Type {
	case stepTypeWorkflow:
		var child ChildWorkflowSpec
		if err := json.Unmarshal(data, &child); err != nil {
			return err
		}
		s.ChildWorkflow = &child
	case stepTypeActivity, "":
		var act ActivitySpec
		if err := json.Unmarshal(data, &act); err != nil {
			return err
		}
		s.Activity = &act
	default:
		return fmt.Errorf("unknown step type %q", probe.Type)
	}
	return nil
}

func (s Step) MarshalJSON() ([]byte, error) {
	switch {
	case s.ChildWorkflow != nil:
		return json.Marshal(taggedChildWorkflow{Type: stepTypeWorkflow, ChildWorkflowSpec: *s.ChildWorkflow})
	case s.Activity != nil:
		return json.Marshal(taggedActivity{Type: stepTypeActivity, ActivitySpec: *s.Activity})
	default:
		return nil, fmt.Errorf("step has neither activity nor child workflow")
	}
}

type taggedActivity struct {
	Type         string `yaml:"type" json:"type"`
	ActivitySpec `yaml:",inline"`
}

type taggedChildWorkflow struct {
	Type              string `yaml:"type" json:"type"`
	ChildWorkflowSpec `yaml:",inline"`
}

// Condition returns the step's skip condition, whichever variant is set.
func (s *Step) Condition() string {
	if s.Activity != nil {
		return s.Activity.Condition
	}
	if s.ChildWorkflow != nil {
		return s.ChildWorkflow.Condition
	}
	return ""
}

// DisplayName identifies the step in logs.
func (s *Step) DisplayName() string {
	if s.Activity != nil {
		return s.Activity.Name
	}
	if s.ChildWorkflow != nil {
		return s.ChildWorkflow.Name
	}
	return "<empty>"
}
