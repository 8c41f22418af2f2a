package engine

// InputType discriminates what kind of input documents an execution received.
type InputType string

const (
	InputTypeObjectIDs InputType = "objectIds"
	InputTypeFiles     InputType = "files"
)

// InputFile references an uploaded file in the content store.
type InputFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url,omitempty"`
}

// WorkflowInput is the current-style input shape.
type WorkflowInput struct {
	InputType InputType   `json:"inputType" yaml:"inputType"`
	ObjectIDs []string    `json:"objectIds,omitempty" yaml:"objectIds,omitempty"`
	Files     []InputFile `json:"files,omitempty" yaml:"files,omitempty"`
}

// EndpointConfig carries the service endpoints activities call back into.
type EndpointConfig struct {
	StudioURL string `json:"studio_url" yaml:"studio_url"`
	StoreURL  string `json:"store_url" yaml:"store_url"`
}

// ExecutionPayload is the inbound payload of a DSL workflow execution.
type ExecutionPayload struct {
	Workflow *WorkflowSpec  `json:"workflow"`
	Vars     map[string]any `json:"vars,omitempty"`
	Input    *WorkflowInput `json:"input,omitempty"`
	// ObjectIDs is the legacy top-level input shape, normalized into Input
	// before any step runs.
	ObjectIDs   []string       `json:"objectIds,omitempty"`
	AccountID   string         `json:"account_id"`
	ProjectID   string         `json:"project_id"`
	AuthToken   string         `json:"auth_token"`
	Config      EndpointConfig `json:"config"`
	Event       string         `json:"event,omitempty"`
	InitiatedBy string         `json:"initiated_by,omitempty"`
	DebugMode   bool           `json:"debug_mode,omitempty"`
}

// NormalizeInput folds the legacy objectIds shape into the current Input
// shape so downstream code only ever sees one representation.
func (p *ExecutionPayload) NormalizeInput() {
	if p.Input == nil && len(p.ObjectIDs) > 0 {
		p.Input = &WorkflowInput{
			InputType: InputTypeObjectIDs,
			ObjectIDs: p.ObjectIDs,
		}
	}
}

// BaseActivityPayload is the invariant envelope spread into every activity
// and child-workflow call. Built once per execution, never mutated.
type BaseActivityPayload struct {
	AccountID    string         `json:"account_id"`
	ProjectID    string         `json:"project_id"`
	AuthToken    string         `json:"auth_token"`
	Config       EndpointConfig `json:"config"`
	Event        string         `json:"event,omitempty"`
	ObjectIDs    []string       `json:"objectIds,omitempty"`
	Files        []InputFile    `json:"files,omitempty"`
	WorkflowName string         `json:"workflow_name"`
	DebugMode    bool           `json:"debug_mode,omitempty"`
}

// ActivityRef names the invoked activity alongside its resolved params, so
// activity implementations can log/report which DSL step called them.
type ActivityRef struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// ActivityPayload is what every underlying activity receives.
type ActivityPayload struct {
	BaseActivityPayload
	Activity ActivityRef    `json:"activity"`
	Params   map[string]any `json:"params,omitempty"`
}

// RateLimitParams is the checkRateLimit activity input.
type RateLimitParams struct {
	InteractionIDOrEndpoint string `json:"interactionIdOrEndpoint"`
	EnvironmentID           string `json:"environmentId,omitempty"`
	ModelID                 string `json:"modelId,omitempty"`
}

// RateLimitResult is the checkRateLimit activity output: how long the caller
// must wait before admission, zero meaning "go".
type RateLimitResult struct {
	DelayMs int64 `json:"delayMs"`
}

// buildBasePayload assembles the envelope from a validated, normalized
// execution payload.
func buildBasePayload(p *ExecutionPayload) BaseActivityPayload {
	base := BaseActivityPayload{
		AccountID:    p.AccountID,
		ProjectID:    p.ProjectID,
		AuthToken:    p.AuthToken,
		Config:       p.Config,
		Event:        p.Event,
		WorkflowName: p.Workflow.Name,
		DebugMode:    p.DebugMode,
	}
	if p.Input != nil {
		base.ObjectIDs = p.Input.ObjectIDs
		base.Files = p.Input.Files
	}
	return base
}
