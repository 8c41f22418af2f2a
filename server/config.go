package server

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vertesia/dslflow/activities"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators()
}

// TemporalConfig locates the durable-execution backend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" default:"localhost:7233" validate:"hostname_port"`
	Namespace string `yaml:"namespace" default:"default" validate:"required"`
	TaskQueue string `yaml:"task_queue" default:"dsl" validate:"required"`
}

// Config is the worker configuration: defaults from struct tags, overridden
// by an optional YAML file, then by environment variables, then validated.
type Config struct {
	ListenAddr string            `yaml:"listen_addr" default:"0.0.0.0:8080" validate:"hostname_port"`
	SpecsDir   string            `yaml:"specs_dir" default:"workflows" validate:"required"`
	StudioURL  string            `yaml:"studio_url" validate:"omitempty,url_format"`
	StoreURL   string            `yaml:"store_url" validate:"omitempty,url_format"`
	Temporal   TemporalConfig    `yaml:"temporal"`
	Activities activities.Config `yaml:"activities"`
	// ExtraActivities extends the registry with activity names served by
	// other workers on the same task queue, so definitions referencing them
	// still validate here.
	ExtraActivities []string `yaml:"extra_activities"`
	Debug           bool     `yaml:"debug" default:"false"`
}

// LoadConfig prepares the worker configuration: defaults → YAML file (when
// path is non-empty) → environment → validation.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the well-known environment variables onto the config.
func applyEnv(cfg *Config) {
	set := func(target *string, key string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	set(&cfg.ListenAddr, "DSLFLOW_LISTEN_ADDR")
	set(&cfg.SpecsDir, "DSLFLOW_SPECS_DIR")
	set(&cfg.StudioURL, "DSLFLOW_STUDIO_URL")
	set(&cfg.StoreURL, "DSLFLOW_STORE_URL")
	set(&cfg.Temporal.HostPort, "TEMPORAL_HOST_PORT")
	set(&cfg.Temporal.Namespace, "TEMPORAL_NAMESPACE")
	set(&cfg.Temporal.TaskQueue, "TEMPORAL_TASK_QUEUE")
	if v := os.Getenv("DSLFLOW_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation (rule: %s)",
					fieldErr.Namespace(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func registerCustomValidators() {
	// hostname_port validates "host:port" format with numeric port
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		host, port, err := net.SplitHostPort(addr)
		if err != nil || host == "" || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})
}
