package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/vertesia/dslflow/activities"
	"github.com/vertesia/dslflow/engine"
	"github.com/vertesia/dslflow/server"
)

// remoteActivities are the business activities served by other workers on
// the task queue. The engine dispatches them by name; this worker only needs
// to know they exist so loaded definitions validate.
var remoteActivities = []string{
	"executeInteraction",
	"generateDocumentProperties",
	"generateEmbeddings",
	"generateRenditions",
	"extractText",
	"composeMessage",
}

func main() {
	configPath := flag.String("config", "", "path to the worker config file")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	svc, err := activities.NewService(cfg.Activities)
	if err != nil {
		log.Fatalf("Error initializing activities: %v", err)
	}

	registry := engine.NewRegistry()
	registry.Register(svc.Names()...)
	registry.Register(remoteActivities...)
	registry.Register(cfg.ExtraActivities...)
	if err := registry.CheckRateLimitRules(); err != nil {
		log.Fatalf("Error in rate limit rules: %v", err)
	}

	app, err := server.NewApp(cfg.SpecsDir, registry)
	if err != nil {
		log.Fatalf("Error loading workflow definitions: %v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("Error connecting to Temporal at %s: %v", cfg.Temporal.HostPort, err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(engine.DSLWorkflow, workflow.RegisterOptions{Name: engine.WorkflowType})
	svc.Register(w)

	if err := w.Start(); err != nil {
		log.Fatalf("Error starting worker: %v", err)
	}
	defer w.Stop()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.Default()
	server.NewHandler(app, c, cfg).Routes(g)

	slog.Info("DSL worker running",
		"task_queue", cfg.Temporal.TaskQueue,
		"listen_addr", cfg.ListenAddr,
		"workflows", app.Names())

	if err := g.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Error running server: %v", err)
	}
}
