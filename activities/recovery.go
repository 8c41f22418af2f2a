package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/vertesia/dslflow/engine"
)

// errorReport is what the studio receives when an execution fails or is
// cancelled: enough to mark the job and its documents failed.
type errorReport struct {
	WorkflowName string   `json:"workflow_name"`
	ObjectIDs    []string `json:"objectIds,omitempty"`
	ErrorMessage string   `json:"errorMessage"`
	Event        string   `json:"event,omitempty"`
}

// HandleDslError reports a failed or cancelled execution back to the studio.
// It is invoked from a disconnected workflow context so it still runs after
// cancellation; its own failure is logged by the driver, never recovered.
func (s *Service) HandleDslError(ctx context.Context, p engine.ActivityPayload) error {
	msg, _ := p.Params["errorMessage"].(string)
	report := errorReport{
		WorkflowName: p.WorkflowName,
		ObjectIDs:    p.ObjectIDs,
		ErrorMessage: msg,
		Event:        p.Event,
	}

	activity.GetLogger(ctx).Info("Reporting execution failure",
		"workflow", p.WorkflowName, "error", msg)

	resp, err := s.request(p).
		SetContext(ctx).
		SetBody(report).
		Post(p.Config.StudioURL + "/api/v1/workflows/executions/errors")
	if err != nil {
		return fmt.Errorf("error report failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("error report returned %s", resp.Status())
	}
	return nil
}
