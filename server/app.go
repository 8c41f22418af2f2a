// Package server hosts a DSL worker: configuration, the workflow-definition
// catalog loaded from disk, and the HTTP surface that starts executions.
package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vertesia/dslflow/engine"
)

// App holds the workflow definitions available to this worker, validated
// against the activity registry at load time so a bad definition fails the
// process instead of an execution.
type App struct {
	specs    map[string]*engine.WorkflowSpec
	registry *engine.Registry
}

// NewApp loads every *.yaml / *.yml definition under dir and validates each
// one against the registry.
func NewApp(dir string, registry *engine.Registry) (*App, error) {
	app := &App{
		specs:    map[string]*engine.WorkflowSpec{},
		registry: registry,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definitions dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := app.loadSpec(filepath.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}

	slog.Info("Loaded workflow definitions", "dir", dir, "count", len(app.specs))
	return app, nil
}

func (a *App) loadSpec(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read workflow definition %s: %w", path, err)
	}

	spec := &engine.WorkflowSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return fmt.Errorf("failed to parse workflow definition %s: %w", path, err)
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if _, exists := a.specs[spec.Name]; exists {
		return fmt.Errorf("duplicate workflow definition %q in %s", spec.Name, path)
	}
	if err := a.registry.Validate(spec); err != nil {
		return fmt.Errorf("invalid workflow definition %q in %s: %w", spec.Name, path, err)
	}

	slog.Info("Loaded workflow definition", "name", spec.Name, "steps", len(spec.StepList()), "file", path)
	a.specs[spec.Name] = spec
	return nil
}

// Get returns the definition registered under name.
func (a *App) Get(name string) (*engine.WorkflowSpec, bool) {
	spec, ok := a.specs[name]
	return spec, ok
}

// Names lists the loaded definitions, sorted.
func (a *App) Names() []string {
	names := make([]string, 0, len(a.specs))
	for name := range a.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
