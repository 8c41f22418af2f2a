package engine

import (
	"fmt"
	"sort"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// dispatcher walks one execution's step list. It owns no state beyond the
// execution's Vars and the invariant envelope; all mutation is serialized by
// the single workflow thread.
type dispatcher struct {
	payload  *ExecutionPayload
	base     BaseActivityPayload
	vars     *Vars
	defaults workflow.ActivityOptions
}

// executeSteps runs steps in strict declaration order. A step's resolved
// params always see the fully updated Vars from all preceding steps.
func (d *dispatcher) executeSteps(ctx workflow.Context, steps []Step) error {
	logger := workflow.GetLogger(ctx)

	for i, step := range steps {
		if cond := step.Condition(); cond != "" {
			matched, err := d.vars.Match(cond)
			if err != nil {
				return NewConfigurationError(step.DisplayName(), "invalid condition: %v", err)
			}
			if !matched {
				logger.Info("Skipping step: condition not met",
					"step", step.DisplayName(),
					"condition", cond)
				continue
			}
		}

		var err error
		switch {
		case step.Activity != nil:
			err = d.executeActivity(ctx, step.Activity)
		case step.ChildWorkflow != nil:
			err = d.executeChildWorkflow(ctx, i, step.ChildWorkflow)
		default:
			err = NewConfigurationError("", "step %d is neither an activity nor a child workflow", i)
		}
		if err != nil {
			// Return the error unwrapped: operators must see the original
			// failure, and the host only round-trips its own error types.
			logger.Error("Step failed", "step", step.DisplayName(), "error", err)
			return err
		}
	}
	return nil
}

func (d *dispatcher) executeActivity(ctx workflow.Context, act *ActivitySpec) error {
	logger := workflow.GetLogger(ctx)

	if act.Parallel {
		logger.Info("Parallel execution is not implemented, running sequentially", "step", act.Name)
	}

	opts, err := ComputeActivityOptions(act.Options, d.defaults)
	if err != nil {
		return NewConfigurationError(act.Name, "invalid activity options: %v", err)
	}
	actx := workflow.WithActivityOptions(ctx, opts)

	// Imported vars first, then literal params: a literal param deliberately
	// shadows an imported name of the same key.
	params := d.vars.CreateImportVars(act.Import)
	for k, v := range d.vars.ResolveParams(act.Params) {
		params[k] = v
	}

	if err := d.runFetches(actx, act, params); err != nil {
		return err
	}

	if IsRateLimited(act.Name) {
		if err := waitForRateLimit(actx, d.base, act.Name, params); err != nil {
			return err
		}
	}

	payload := ActivityPayload{
		BaseActivityPayload: d.base,
		Activity:            ActivityRef{Name: act.Name, Params: params},
		Params:              params,
	}

	var result any
	if err := workflow.ExecuteActivity(actx, act.Name, payload).Get(ctx, &result); err != nil {
		return err
	}
	if act.Output != "" {
		d.vars.SetValue(act.Output, result)
	}
	return nil
}

// runFetches resolves each named fetch sub-query through the fetchContent
// activity and lands the result in params under the fetch name. Names are
// processed in sorted order so replay sees one deterministic sequence.
func (d *dispatcher) runFetches(actx workflow.Context, act *ActivitySpec, params map[string]any) error {
	if len(act.Fetch) == 0 {
		return nil
	}
	names := make([]string, 0, len(act.Fetch))
	for name := range act.Fetch {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		query := d.vars.ResolveParams(act.Fetch[name])
		payload := ActivityPayload{
			BaseActivityPayload: d.base,
			Activity:            ActivityRef{Name: ActivityFetchContent, Params: query},
			Params:              query,
		}
		var result any
		if err := workflow.ExecuteActivity(actx, ActivityFetchContent, payload).Get(actx, &result); err != nil {
			return fmt.Errorf("error fetching %q for step %s: %w", name, act.Name, err)
		}
		params[name] = result
	}
	return nil
}

func (d *dispatcher) executeChildWorkflow(ctx workflow.Context, index int, cw *ChildWorkflowSpec) error {
	logger := workflow.GetLogger(ctx)

	opts, err := ComputeChildWorkflowOptions(cw.Options)
	if err != nil {
		return NewConfigurationError(cw.Name, "invalid child workflow options: %v", err)
	}

	// Child ids must be stable across replay: derive from the parent
	// execution id and the step position instead of generating one.
	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	opts.WorkflowID = fmt.Sprintf("%s/%s-%d", parentID, cw.Name, index)
	opts.TypedSearchAttributes = d.childSearchAttributes()
	if cw.Async {
		// The parent does not await async children; they must survive it.
		opts.ParentClosePolicy = enumspb.PARENT_CLOSE_POLICY_ABANDON
	}
	cctx := workflow.WithChildOptions(ctx, opts)

	// Children see a resolved snapshot of the parent namespace with the
	// injected vars layered on top.
	childVars := d.vars.Resolve()
	for k, v := range d.vars.ResolveParams(cw.Vars) {
		childVars[k] = v
	}

	childPayload := ExecutionPayload{
		Workflow:    cw.Spec,
		Vars:        childVars,
		Input:       d.payload.Input,
		AccountID:   d.payload.AccountID,
		ProjectID:   d.payload.ProjectID,
		AuthToken:   d.payload.AuthToken,
		Config:      d.payload.Config,
		Event:       d.payload.Event,
		InitiatedBy: d.payload.InitiatedBy,
		DebugMode:   d.payload.DebugMode,
	}

	future := workflow.ExecuteChildWorkflow(cctx, cw.Name, &childPayload)

	if cw.Async {
		// Start-and-continue: await only the start, record the child id so
		// later steps or external callers can correlate.
		var exec workflow.Execution
		if err := future.GetChildWorkflowExecution().Get(ctx, &exec); err != nil {
			return fmt.Errorf("error starting child workflow %s: %w", cw.Name, err)
		}
		logger.Info("Started async child workflow", "child", cw.Name, "workflowId", exec.ID)
		if cw.Output != "" {
			d.vars.SetValue(cw.Output, exec.ID)
		}
		return nil
	}

	var result any
	if err := future.Get(ctx, &result); err != nil {
		return fmt.Errorf("error executing child workflow %s: %w", cw.Name, err)
	}
	if cw.Output != "" {
		d.vars.SetValue(cw.Output, result)
	}
	return nil
}

// childSearchAttributes tags children so downstream tooling can find every
// child of a given account/project/document.
func (d *dispatcher) childSearchAttributes() temporal.SearchAttributes {
	updates := []temporal.SearchAttributeUpdate{
		temporal.NewSearchAttributeKeyKeyword("AccountId").ValueSet(d.payload.AccountID),
		temporal.NewSearchAttributeKeyKeyword("ProjectId").ValueSet(d.payload.ProjectID),
		temporal.NewSearchAttributeKeyKeyword("TenantId").ValueSet(d.payload.AccountID + ":" + d.payload.ProjectID),
	}
	if len(d.base.ObjectIDs) > 0 {
		updates = append(updates, temporal.NewSearchAttributeKeyKeyword("DocumentId").ValueSet(d.base.ObjectIDs[0]))
	}
	if d.payload.InitiatedBy != "" {
		updates = append(updates, temporal.NewSearchAttributeKeyKeyword("InitiatedBy").ValueSet(d.payload.InitiatedBy))
	}
	return temporal.NewSearchAttributes(updates...)
}
