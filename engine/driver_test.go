package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

func newTestEnv() *testsuite.TestWorkflowEnvironment {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(DSLWorkflow, workflow.RegisterOptions{Name: WorkflowType})
	return env
}

func registerStub(env *testsuite.TestWorkflowEnvironment, name string, fn any) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func objectIDsPayload(spec *WorkflowSpec, vars map[string]any) *ExecutionPayload {
	return &ExecutionPayload{
		Workflow:  spec,
		Vars:      vars,
		Input:     &WorkflowInput{InputType: InputTypeObjectIDs, ObjectIDs: []string{"doc-1"}},
		AccountID: "acc-1",
		ProjectID: "proj-1",
		AuthToken: "token",
		Config:    EndpointConfig{StudioURL: "https://studio.test", StoreURL: "https://store.test"},
		Event:     "api_request",
	}
}

// greetingData is the external data source of the end-to-end scenario.
var greetingData = map[string]map[string]string{
	"en": {"greeting": "Hello", "name": "World"},
	"fr": {"greeting": "Bonjour", "name": "Monde"},
}

func TestDSLWorkflow_EndToEndGreeting(t *testing.T) {
	spec := &WorkflowSpec{
		Name: "greeting",
		Steps: []Step{
			{Activity: &ActivitySpec{
				Name:   "extractText",
				Fetch:  map[string]map[string]any{"content": {"key": "greeting", "language": "${language}"}},
				Output: "greeting",
			}},
			{Activity: &ActivitySpec{
				Name:   "extractText",
				Fetch:  map[string]map[string]any{"content": {"key": "name", "language": "${language}"}},
				Output: "name",
			}},
			{Activity: &ActivitySpec{
				Name:   "composeMessage",
				Params: map[string]any{"message": "${greeting}, ${name}!"},
				Output: "result",
			}},
		},
	}

	tests := []struct {
		language string
		expected string
	}{
		{language: "en", expected: "Hello, World!"},
		{language: "fr", expected: "Bonjour, Monde!"},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			env := newTestEnv()
			registerStub(env, ActivityFetchContent, func(ctx context.Context, p ActivityPayload) (map[string]any, error) {
				lang, _ := p.Params["language"].(string)
				key, _ := p.Params["key"].(string)
				text, ok := greetingData[lang][key]
				if !ok {
					return nil, temporal.NewNonRetryableApplicationError(
						fmt.Sprintf("no content for %s/%s", lang, key), ErrNoDocumentFound, nil)
				}
				return map[string]any{"text": text}, nil
			})
			registerStub(env, "extractText", func(ctx context.Context, p ActivityPayload) (string, error) {
				content, _ := p.Params["content"].(map[string]any)
				text, _ := content["text"].(string)
				return text, nil
			})
			registerStub(env, "composeMessage", func(ctx context.Context, p ActivityPayload) (string, error) {
				msg, _ := p.Params["message"].(string)
				return msg, nil
			})

			env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, map[string]any{"language": tt.language}))

			require.True(t, env.IsWorkflowCompleted())
			require.NoError(t, env.GetWorkflowError())

			var result string
			require.NoError(t, env.GetWorkflowResult(&result))
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestDSLWorkflow_ConditionalSkip(t *testing.T) {
	spec := &WorkflowSpec{
		Name:   "conditional",
		Result: "first",
		Steps: []Step{
			{Activity: &ActivitySpec{Name: "alwaysRuns", Output: "first"}},
			{Activity: &ActivitySpec{
				Name:      "onlyForFrench",
				Condition: `language == "fr"`,
				Output:    "second",
			}},
		},
	}

	env := newTestEnv()
	skippedCalled := false
	registerStub(env, "alwaysRuns", func(ctx context.Context, p ActivityPayload) (string, error) {
		return "ran", nil
	})
	registerStub(env, "onlyForFrench", func(ctx context.Context, p ActivityPayload) (string, error) {
		skippedCalled = true
		return "should not happen", nil
	})

	env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, map[string]any{"language": "en"}))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.False(t, skippedCalled, "skipped step must not invoke its activity")

	var result string
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "ran", result)
}

func TestDSLWorkflow_RateLimitGatePolls(t *testing.T) {
	spec := &WorkflowSpec{
		Name: "rate-limited",
		Steps: []Step{
			{Activity: &ActivitySpec{
				Name:   "executeInteraction",
				Params: map[string]any{"interaction": "summarize-v2"},
				Output: "result",
			}},
		},
	}

	env := newTestEnv()
	checks := 0
	invocations := 0
	registerStub(env, ActivityCheckRateLimit, func(ctx context.Context, p ActivityPayload) (RateLimitResult, error) {
		checks++
		if checks == 1 {
			return RateLimitResult{DelayMs: 500}, nil
		}
		return RateLimitResult{DelayMs: 0}, nil
	})
	registerStub(env, "executeInteraction", func(ctx context.Context, p ActivityPayload) (string, error) {
		invocations++
		return "generated", nil
	})

	env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, nil))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Equal(t, 2, checks, "gate must re-check exactly once after the delay")
	require.Equal(t, 1, invocations, "gate must admit exactly one invocation")
}

func TestDSLWorkflow_RateLimitMissingIdentifier(t *testing.T) {
	spec := &WorkflowSpec{
		Name: "misconfigured",
		Steps: []Step{
			{Activity: &ActivitySpec{Name: "executeInteraction", Params: map[string]any{}}},
		},
	}

	env := newTestEnv()
	invocations := 0
	recovered := ""
	registerStub(env, ActivityCheckRateLimit, func(ctx context.Context, p ActivityPayload) (RateLimitResult, error) {
		return RateLimitResult{}, nil
	})
	registerStub(env, "executeInteraction", func(ctx context.Context, p ActivityPayload) (string, error) {
		invocations++
		return "", nil
	})
	registerStub(env, ActivityHandleDslError, func(ctx context.Context, p ActivityPayload) error {
		recovered, _ = p.Params["errorMessage"].(string)
		return nil
	})

	env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, nil))

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, ErrConfigurationError, appErr.Type())
	require.Zero(t, invocations, "the step must not run without a rate-limit identifier")
	require.Contains(t, recovered, "rate limit identifier")
}

func TestDSLWorkflow_CancellationRunsRecovery(t *testing.T) {
	spec := &WorkflowSpec{
		Name: "cancelled",
		Steps: []Step{
			{Activity: &ActivitySpec{
				Name:   "executeInteraction",
				Params: map[string]any{"interaction": "summarize-v2"},
			}},
		},
	}

	env := newTestEnv()
	invocations := 0
	recoveryRan := false
	registerStub(env, ActivityCheckRateLimit, func(ctx context.Context, p ActivityPayload) (RateLimitResult, error) {
		// Park the workflow on the gate's sleep so cancellation arrives at a
		// suspension point.
		return RateLimitResult{DelayMs: 600_000}, nil
	})
	registerStub(env, "executeInteraction", func(ctx context.Context, p ActivityPayload) (string, error) {
		invocations++
		return "", nil
	})
	registerStub(env, ActivityHandleDslError, func(ctx context.Context, p ActivityPayload) error {
		recoveryRan = true
		return nil
	})

	env.RegisterDelayedCallback(func() { env.CancelWorkflow() }, 10*time.Second)
	env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, nil))

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err, "the original cancellation must be re-raised")
	require.True(t, temporal.IsCanceledError(err), "error should be the cancellation, got %v", err)
	require.True(t, recoveryRan, "recovery activity must complete despite the cancellation")
	require.Zero(t, invocations)
}

func TestDSLWorkflow_ActivityFailureRecoversOnce(t *testing.T) {
	spec := &WorkflowSpec{
		Name: "failing",
		Steps: []Step{
			{Activity: &ActivitySpec{Name: "extractText", Output: "text"}},
		},
	}

	env := newTestEnv()
	recoveries := 0
	recovered := ""
	registerStub(env, "extractText", func(ctx context.Context, p ActivityPayload) (string, error) {
		return "", temporal.NewNonRetryableApplicationError("document doc-1 has no text layer", ErrNoDocumentFound, nil)
	})
	registerStub(env, ActivityHandleDslError, func(ctx context.Context, p ActivityPayload) error {
		recoveries++
		recovered, _ = p.Params["errorMessage"].(string)
		return nil
	})

	env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, nil))

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	require.Contains(t, err.Error(), "document doc-1 has no text layer")
	require.Equal(t, 1, recoveries, "recovery activity must run exactly once")
	require.Contains(t, recovered, "document doc-1 has no text layer")
}

func TestDSLWorkflow_LegacyInputNormalization(t *testing.T) {
	spec := &WorkflowSpec{
		Name:   "echo",
		Result: "echoed",
		Steps: []Step{
			{Activity: &ActivitySpec{
				Name:   "echoInput",
				Params: map[string]any{"id": "${objectId}", "ids": "${objectIds}", "kind": "${inputType}"},
				Output: "echoed",
			}},
		},
	}

	run := func(payload *ExecutionPayload) map[string]any {
		env := newTestEnv()
		registerStub(env, "echoInput", func(ctx context.Context, p ActivityPayload) (map[string]any, error) {
			return p.Params, nil
		})
		env.ExecuteWorkflow(DSLWorkflow, payload)
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var result map[string]any
		require.NoError(t, env.GetWorkflowResult(&result))
		return result
	}

	legacy := run(&ExecutionPayload{
		Workflow:  spec,
		ObjectIDs: []string{"abc"},
		AccountID: "acc-1",
		ProjectID: "proj-1",
	})
	current := run(&ExecutionPayload{
		Workflow:  spec,
		Input:     &WorkflowInput{InputType: InputTypeObjectIDs, ObjectIDs: []string{"abc"}},
		AccountID: "acc-1",
		ProjectID: "proj-1",
	})

	require.Equal(t, "abc", legacy["id"])
	require.Equal(t, string(InputTypeObjectIDs), legacy["kind"])
	require.True(t, reflect.DeepEqual(legacy, current),
		"legacy payload must seed Vars identically: %v vs %v", legacy, current)
}

func TestDSLWorkflow_SyncChildWorkflow(t *testing.T) {
	childSpec := &WorkflowSpec{
		Name: "child",
		Steps: []Step{
			{Activity: &ActivitySpec{
				Name:   "composeMessage",
				Params: map[string]any{"message": "from ${origin}"},
				Output: "result",
			}},
		},
	}
	spec := &WorkflowSpec{
		Name:   "parent",
		Result: "childResult",
		Steps: []Step{
			{ChildWorkflow: &ChildWorkflowSpec{
				Name:   WorkflowType,
				Spec:   childSpec,
				Vars:   map[string]any{"origin": "${objectId}"},
				Output: "childResult",
			}},
		},
	}

	env := newTestEnv()
	registerStub(env, "composeMessage", func(ctx context.Context, p ActivityPayload) (string, error) {
		msg, _ := p.Params["message"].(string)
		return msg, nil
	})

	env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, nil))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result string
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "from doc-1", result)
}

func TestDSLWorkflow_AsyncChildWorkflowStoresID(t *testing.T) {
	childSpec := &WorkflowSpec{
		Name: "notify",
		Steps: []Step{
			{Activity: &ActivitySpec{Name: "notifyWebhook"}},
		},
	}
	spec := &WorkflowSpec{
		Name:   "parent",
		Result: "childId",
		Steps: []Step{
			{ChildWorkflow: &ChildWorkflowSpec{
				Name:   WorkflowType,
				Spec:   childSpec,
				Async:  true,
				Output: "childId",
			}},
		},
	}

	env := newTestEnv()
	registerStub(env, "notifyWebhook", func(ctx context.Context, p ActivityPayload) (string, error) {
		return "sent", nil
	})

	env.ExecuteWorkflow(DSLWorkflow, objectIDsPayload(spec, nil))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var childID string
	require.NoError(t, env.GetWorkflowResult(&childID))
	require.True(t, strings.HasSuffix(childID, "/"+WorkflowType+"-0"),
		"child id %q must derive from the parent id and step index", childID)
}

func TestDSLWorkflow_ValidatesPayload(t *testing.T) {
	t.Run("missing workflow definition", func(t *testing.T) {
		env := newTestEnv()
		env.ExecuteWorkflow(DSLWorkflow, &ExecutionPayload{})
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		require.Equal(t, ErrConfigurationError, appErr.Type())
		require.True(t, appErr.NonRetryable())
	})

	t.Run("missing input", func(t *testing.T) {
		env := newTestEnv()
		env.ExecuteWorkflow(DSLWorkflow, &ExecutionPayload{
			Workflow: &WorkflowSpec{Name: "no-input"},
		})
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		require.Contains(t, err.Error(), "requires an input")
	})
}
