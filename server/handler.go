package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/vertesia/dslflow/engine"
)

// WorkflowStarter is the slice of the Temporal client the handler needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
}

// Handler exposes the HTTP trigger surface: list loaded definitions and
// start executions.
type Handler struct {
	app      *App
	temporal WorkflowStarter
	cfg      *Config
}

func NewHandler(app *App, temporal WorkflowStarter, cfg *Config) *Handler {
	return &Handler{app: app, temporal: temporal, cfg: cfg}
}

// Routes registers the handler's endpoints on the gin engine.
func (h *Handler) Routes(g *gin.Engine) {
	g.GET("/workflows", h.listWorkflows)
	g.POST("/workflows/:name/executions", h.startExecution)
}

// executionRequest is the start-execution request body. The workflow
// definition itself comes from the catalog; the caller supplies the inputs.
type executionRequest struct {
	Vars        map[string]any        `json:"vars"`
	Input       *engine.WorkflowInput `json:"input"`
	ObjectIDs   []string              `json:"objectIds"`
	AccountID   string                `json:"account_id" binding:"required"`
	ProjectID   string                `json:"project_id" binding:"required"`
	AuthToken   string                `json:"auth_token"`
	Event       string                `json:"event"`
	InitiatedBy string                `json:"initiated_by"`
	DebugMode   bool                  `json:"debug_mode"`
}

func (h *Handler) listWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workflows": h.app.Names()})
}

func (h *Handler) startExecution(c *gin.Context) {
	name := c.Param("name")
	spec, ok := h.app.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Unknown workflow: " + name})
		return
	}

	var req executionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format: " + err.Error()})
		return
	}
	if req.Input == nil && len(req.ObjectIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Execution requires an input"})
		return
	}

	payload := &engine.ExecutionPayload{
		Workflow:    spec,
		Vars:        req.Vars,
		Input:       req.Input,
		ObjectIDs:   req.ObjectIDs,
		AccountID:   req.AccountID,
		ProjectID:   req.ProjectID,
		AuthToken:   req.AuthToken,
		Config:      engine.EndpointConfig{StudioURL: h.cfg.StudioURL, StoreURL: h.cfg.StoreURL},
		Event:       req.Event,
		InitiatedBy: req.InitiatedBy,
		DebugMode:   req.DebugMode,
	}

	options := client.StartWorkflowOptions{
		ID:        name + "-" + uuid.NewString(),
		TaskQueue: h.cfg.Temporal.TaskQueue,
	}
	run, err := h.temporal.ExecuteWorkflow(c.Request.Context(), options, engine.WorkflowType, payload)
	if err != nil {
		slog.Error("Failed to start workflow execution",
			"workflow", name,
			"account", req.AccountID,
			"error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Error starting execution: " + err.Error(),
		})
		return
	}

	slog.Info("Started workflow execution",
		"workflow", name,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID())
	c.JSON(http.StatusCreated, gin.H{
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
	})
}
