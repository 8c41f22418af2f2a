// Package activities implements the builtin activity clients a DSL worker
// registers: the rate limiter check, the error recovery handler, content
// fetches and webhook notifications. Everything here talks HTTP to the
// studio/store endpoints carried inside each activity payload.
package activities

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"
	"go.temporal.io/sdk/activity"

	"github.com/vertesia/dslflow/engine"
)

// Registry is the subset of a Temporal worker the service registers against.
type Registry interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Config holds the HTTP client configuration with declarative tags.
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// Service bundles the builtin activities around one shared resty client.
// Endpoints and credentials are per-call: they arrive inside each payload,
// so a single worker can serve executions of different projects.
type Service struct {
	cfg      Config
	client   *resty.Client
	validate *validator.Validate
}

// NewService applies defaults, validates the config and builds the client.
func NewService(cfg Config) (*Service, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("applying activity config defaults: %w", err)
	}
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid activity config: %w", err)
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetDebug(cfg.Debug)

	return &Service{cfg: cfg, client: client, validate: v}, nil
}

// Register wires every builtin activity under its DSL-visible name.
func (s *Service) Register(w Registry) {
	w.RegisterActivityWithOptions(s.CheckRateLimit, activity.RegisterOptions{Name: engine.ActivityCheckRateLimit})
	w.RegisterActivityWithOptions(s.HandleDslError, activity.RegisterOptions{Name: engine.ActivityHandleDslError})
	w.RegisterActivityWithOptions(s.FetchContent, activity.RegisterOptions{Name: engine.ActivityFetchContent})
	w.RegisterActivityWithOptions(s.NotifyWebhook, activity.RegisterOptions{Name: ActivityNotifyWebhook})
}

// Names returns the activity names Register exposes, in registration order.
func (s *Service) Names() []string {
	return []string{
		engine.ActivityCheckRateLimit,
		engine.ActivityHandleDslError,
		engine.ActivityFetchContent,
		ActivityNotifyWebhook,
	}
}

// request builds a resty request authenticated for the calling execution.
func (s *Service) request(p engine.ActivityPayload) *resty.Request {
	return s.client.R().SetAuthToken(p.AuthToken)
}

// decodeParams converts the resolved step params into a typed input and
// validates it. Unknown keys are ignored, like everywhere else in the DSL.
func (s *Service) decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("decoding activity params: %w", err)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("invalid activity params: %w", err)
	}
	return nil
}
