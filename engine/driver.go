package engine

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// WorkflowType is the name the driver is registered under on the worker.
// Child workflow steps reference it (or another registered type) by name.
const WorkflowType = "dslWorkflow"

// defaultResultVar is read back as the workflow result when the definition
// does not declare one.
const defaultResultVar = "result"

// DSLWorkflow interprets a declarative workflow definition: it validates and
// normalizes the inbound payload, seeds the variable namespace, walks the
// step list through the dispatcher, and returns the declared result variable.
// Any failure escaping the step loop — cancellation included — triggers the
// handleDslError recovery activity before the original error is re-raised.
func DSLWorkflow(ctx workflow.Context, payload *ExecutionPayload) (any, error) {
	logger := workflow.GetLogger(ctx)

	// Validate. Missing definition or input is a configuration error: fatal,
	// non-retryable, and not worth a recovery round-trip since nothing ran.
	if payload == nil || payload.Workflow == nil {
		return nil, NewConfigurationError("", "missing workflow definition in payload")
	}
	if payload.Input == nil && len(payload.ObjectIDs) == 0 {
		return nil, NewConfigurationError("", "workflow %s requires an input", payload.Workflow.Name)
	}

	// Normalize the legacy objectIds shape.
	payload.NormalizeInput()

	// Initialize.
	base := buildBasePayload(payload)
	defaults, err := DefaultActivityOptions(payload.Workflow.Options)
	if err != nil {
		return nil, NewConfigurationError("", "invalid workflow options: %v", err)
	}
	vars := NewVars(payload.Workflow.Vars, payload.Vars, inputVars(payload.Input))

	d := &dispatcher{
		payload:  payload,
		base:     base,
		vars:     vars,
		defaults: defaults,
	}

	logger.Info("Starting DSL workflow", "workflow", payload.Workflow.Name, "steps", len(payload.Workflow.StepList()))

	// Execute.
	if err := d.executeSteps(ctx, payload.Workflow.StepList()); err != nil {
		recoverFromError(ctx, base, err)
		return nil, err
	}

	// Finalize.
	resultVar := payload.Workflow.Result
	if resultVar == "" {
		resultVar = defaultResultVar
	}
	return vars.GetValue(resultVar), nil
}

// inputVars derives the input-seeded variables: objectIds/objectId and
// files/file, plus inputType. Files are stored as plain maps so dotted-path
// expressions can reach into them.
func inputVars(input *WorkflowInput) map[string]any {
	if input == nil {
		return nil
	}
	vars := map[string]any{"inputType": string(input.InputType)}
	if len(input.ObjectIDs) > 0 {
		vars["objectIds"] = input.ObjectIDs
		vars["objectId"] = input.ObjectIDs[0]
	}
	if len(input.Files) > 0 {
		files := make([]any, len(input.Files))
		for i, f := range input.Files {
			files[i] = fileVar(f)
		}
		vars["files"] = files
		vars["file"] = files[0]
	}
	return vars
}

func fileVar(f InputFile) map[string]any {
	return map[string]any{
		"name":        f.Name,
		"contentType": f.ContentType,
		"url":         f.URL,
	}
}

// recoverFromError invokes the handleDslError recovery activity exactly once
// with the triggering error's message. It runs in a disconnected context so
// that the cancellation which triggered it cannot cancel the recovery itself;
// without that, the status update the handler performs would never execute.
// The handler's own failures are logged, not recovered — best effort.
func recoverFromError(ctx workflow.Context, base BaseActivityPayload, cause error) {
	logger := workflow.GetLogger(ctx)
	if temporal.IsCanceledError(cause) {
		logger.Info("Workflow execution cancelled", "workflow", base.WorkflowName, "error", cause)
	} else {
		logger.Error("Workflow execution failed", "workflow", base.WorkflowName, "error", cause)
	}

	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: defaultBackoffCoefficient,
			MaximumAttempts:    3,
		},
	})

	params := map[string]any{"errorMessage": cause.Error()}
	payload := ActivityPayload{
		BaseActivityPayload: base,
		Activity:            ActivityRef{Name: ActivityHandleDslError, Params: params},
		Params:              params,
	}
	if err := workflow.ExecuteActivity(dctx, ActivityHandleDslError, payload).Get(dctx, nil); err != nil {
		logger.Error("Error recovery activity failed", "workflow", base.WorkflowName, "error", err)
	}
}
