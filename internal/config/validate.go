// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report yaml field names so messages match the config file
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a loaded configuration and returns every problem found
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, errors.New(formatFieldError(fe)))
		}
	}

	sourceNames := make(map[string]bool)
	for _, s := range cfg.Sources {
		if s.Name != "" && sourceNames[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate source name: %s", s.Name))
		}
		sourceNames[s.Name] = true
		errs = append(errs, validateSource(s)...)
	}

	triggerNames := make(map[string]bool)
	for _, t := range cfg.Triggers {
		if t.Name != "" && triggerNames[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate trigger name: %s", t.Name))
		}
		triggerNames[t.Name] = true
		if t.Origin != "" && !sourceNames[t.Origin] {
			errs = append(errs, fmt.Errorf("trigger %s: unknown origin source: %s", t.Name, t.Origin))
		}
		errs = append(errs, validateTrigger(t)...)
	}

	return errors.Join(errs...)
}

func validateSource(s Source) []error {
	var errs []error
	switch s.Type {
	case "geiger":
		if s.Device == "" {
			errs = append(errs, fmt.Errorf("source %s: device is required for geiger sources", s.Name))
		}
	case "command":
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("source %s: command is required for command sources", s.Name))
		}
	case "file":
		if s.Path == "" {
			errs = append(errs, fmt.Errorf("source %s: path is required for file sources", s.Name))
		}
	}
	if s.SecretHeader != "" && s.SecretEnv == "" {
		errs = append(errs, fmt.Errorf("source %s: secret_header requires secret_env", s.Name))
	}
	return errs
}

func validateTrigger(t Trigger) []error {
	var errs []error
	switch t.Type {
	case "edge":
		if t.Edge == "" {
			errs = append(errs, fmt.Errorf("trigger %s: edge is required for edge triggers", t.Name))
		}
		fallthrough
	case "above", "below":
		if t.Channel == "" {
			errs = append(errs, fmt.Errorf("trigger %s: channel is required for %s triggers", t.Name, t.Type))
		}
		if t.Threshold == nil {
			errs = append(errs, fmt.Errorf("trigger %s: threshold is required for %s triggers", t.Name, t.Type))
		}
	}
	if t.Once && t.Edge == "" {
		errs = append(errs, fmt.Errorf("trigger %s: once only applies to edge triggers", t.Name))
	}
	if len(t.Handlers) == 0 {
		errs = append(errs, fmt.Errorf("trigger %s: at least one handler is required", t.Name))
	}

	handlerNames := make(map[string]bool)
	for _, h := range t.Handlers {
		if h.Name != "" && handlerNames[h.Name] {
			errs = append(errs, fmt.Errorf("trigger %s: duplicate handler name: %s", t.Name, h.Name))
		}
		handlerNames[h.Name] = true
		errs = append(errs, validateHandler(t.Name, h)...)
	}
	return errs
}

func validateHandler(trigger string, h Handler) []error {
	var errs []error
	prefix := fmt.Sprintf("trigger %s: handler %s", trigger, h.Name)
	switch h.Type {
	case "command":
		if h.Command == "" {
			errs = append(errs, fmt.Errorf("%s: command is required for command handlers", prefix))
		}
	case "safecast":
		if h.APIKeyEnv == "" {
			errs = append(errs, fmt.Errorf("%s: api_key_env is required for safecast handlers", prefix))
		}
	case "feed":
		if h.URL == "" {
			errs = append(errs, fmt.Errorf("%s: url is required for feed handlers", prefix))
		}
	case "notify":
		if h.URL == "" {
			errs = append(errs, fmt.Errorf("%s: url is required for notify handlers", prefix))
		}
		if h.Message == "" {
			errs = append(errs, fmt.Errorf("%s: message is required for notify handlers", prefix))
		}
	}
	return errs
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %q)", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
