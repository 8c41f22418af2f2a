package engine

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

const specYAML = `
name: generate-renditions
vars:
  format: jpeg
result: renditions
options:
  startToCloseTimeout: 10 minute
  retry:
    maximumAttempts: 5
steps:
  - name: generateRenditions
    params:
      format: ${format}
    output: renditions
    condition: inputType == "objectIds"
  - type: workflow
    name: dslWorkflow
    output: childId
    async: true
    spec:
      name: notify
      steps:
        - name: notifyWebhook
          params:
            target: ${webhook_url}
`

func TestWorkflowSpec_UnmarshalYAML(t *testing.T) {
	var spec WorkflowSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if spec.Name != "generate-renditions" {
		t.Errorf("Name = %q", spec.Name)
	}
	if spec.Result != "renditions" {
		t.Errorf("Result = %q", spec.Result)
	}
	if spec.Options == nil || spec.Options.StartToCloseTimeout != "10 minute" {
		t.Errorf("Options = %+v", spec.Options)
	}
	if spec.Options.Retry == nil || spec.Options.Retry.MaximumAttempts == nil || *spec.Options.Retry.MaximumAttempts != 5 {
		t.Errorf("Retry = %+v", spec.Options.Retry)
	}

	steps := spec.StepList()
	if len(steps) != 2 {
		t.Fatalf("StepList() len = %d, want 2", len(steps))
	}

	act := steps[0].Activity
	if act == nil {
		t.Fatal("step 0 should be an activity")
	}
	if act.Name != "generateRenditions" || act.Output != "renditions" {
		t.Errorf("activity = %+v", act)
	}
	if act.Condition != `inputType == "objectIds"` {
		t.Errorf("condition = %q", act.Condition)
	}
	if act.Params["format"] != "${format}" {
		t.Errorf("params = %v", act.Params)
	}

	child := steps[1].ChildWorkflow
	if child == nil {
		t.Fatal("step 1 should be a child workflow")
	}
	if !child.Async || child.Output != "childId" {
		t.Errorf("child = %+v", child)
	}
	if child.Spec == nil || child.Spec.Name != "notify" {
		t.Fatalf("child spec = %+v", child.Spec)
	}
	if inner := child.Spec.StepList(); len(inner) != 1 || inner[0].Activity.Name != "notifyWebhook" {
		t.Errorf("child steps = %+v", inner)
	}
}

func TestWorkflowSpec_UnknownStepType(t *testing.T) {
	var spec WorkflowSpec
	err := yaml.Unmarshal([]byte("name: bad\nsteps:\n  - type: loop\n    name: x\n"), &spec)
	if err == nil {
		t.Fatal("expected error for unknown step type")
	}
}

func TestWorkflowSpec_LegacyActivities(t *testing.T) {
	var spec WorkflowSpec
	src := "name: legacy\nactivities:\n  - name: extractText\n    output: text\n  - name: notifyWebhook\n"
	if err := yaml.Unmarshal([]byte(src), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	steps := spec.StepList()
	if len(steps) != 2 {
		t.Fatalf("StepList() len = %d, want 2", len(steps))
	}
	if steps[0].Activity == nil || steps[0].Activity.Name != "extractText" {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Activity == nil || steps[1].Activity.Name != "notifyWebhook" {
		t.Errorf("step 1 = %+v", steps[1])
	}
}

func TestStep_JSONRoundTrip(t *testing.T) {
	var spec WorkflowSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}

	data, err := json.Marshal(&spec)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}

	var decoded WorkflowSpec
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}

	steps := decoded.StepList()
	if len(steps) != 2 {
		t.Fatalf("decoded StepList() len = %d, want 2", len(steps))
	}
	if steps[0].Activity == nil || steps[0].Activity.Name != "generateRenditions" {
		t.Errorf("decoded step 0 = %+v", steps[0])
	}
	if steps[1].ChildWorkflow == nil || !steps[1].ChildWorkflow.Async {
		t.Errorf("decoded step 1 = %+v", steps[1])
	}
}
