package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/vertesia/dslflow/engine"
)

// ActivityNotifyWebhook is the DSL-visible name of the webhook activity.
const ActivityNotifyWebhook = "notifyWebhook"

// WebhookInput is the typed input of the notifyWebhook activity.
type WebhookInput struct {
	Target  string            `json:"target" validate:"required,url"`
	Method  string            `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers"`
	Payload map[string]any    `json:"payload"`
}

// WebhookOutput reports how the remote endpoint answered.
type WebhookOutput struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	IsError    bool   `json:"is_error"`
}

// NotifyWebhook posts an execution event to an external endpoint declared in
// the workflow definition. The body defaults to the payload param, augmented
// with the workflow name so receivers can correlate.
func (s *Service) NotifyWebhook(ctx context.Context, p engine.ActivityPayload) (WebhookOutput, error) {
	var input WebhookInput
	if err := s.decodeParams(p.Params, &input); err != nil {
		return WebhookOutput{}, err
	}
	if input.Method == "" {
		input.Method = "POST"
	}

	body := map[string]any{"workflow_name": p.WorkflowName}
	for k, v := range input.Payload {
		body[k] = v
	}

	resp, err := s.request(p).
		SetContext(ctx).
		SetHeaders(input.Headers).
		SetBody(body).
		Execute(input.Method, input.Target)
	if err != nil {
		return WebhookOutput{}, fmt.Errorf("webhook notification failed: %w", err)
	}

	out := WebhookOutput{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
	}
	if resp.IsError() {
		activity.GetLogger(ctx).Warn("Webhook endpoint answered with an error",
			"target", input.Target, "status", resp.Status())
	}
	return out, nil
}
