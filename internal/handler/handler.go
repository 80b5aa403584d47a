// internal/handler/handler.go
package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/logging"
	"github.com/colebrumley/radmon/internal/security"
	"github.com/colebrumley/radmon/internal/state"
	"github.com/colebrumley/radmon/internal/template"
)

// Deps are the shared resources handlers are built from
type Deps struct {
	DB      *state.DB
	Metrics *Metrics
	Client  *http.Client
	Logger  *slog.Logger
}

// New creates a handler action based on the configuration type
func New(cfg config.Handler, deps Deps) (event.Action, error) {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Client == nil {
		deps.Client = &http.Client{}
	}
	logger := logging.WithNode(deps.Logger, "handler", cfg.Name)

	switch cfg.Type {
	case "command":
		return NewCommand(cfg, logger).Handle, nil
	case "safecast":
		h, err := NewSafeCast(cfg, deps.Client, logger)
		if err != nil {
			return nil, err
		}
		return h.Handle, nil
	case "feed":
		return NewFeed(cfg, deps.Client, logger).Handle, nil
	case "notify":
		return NewNotify(cfg, deps.Client, logger).Handle, nil
	case "history":
		if deps.DB == nil {
			return nil, fmt.Errorf("handler %s: history is not enabled", cfg.Name)
		}
		return History(deps.DB, logger), nil
	case "metrics":
		if deps.Metrics == nil {
			return nil, fmt.Errorf("handler %s: no metrics registry", cfg.Name)
		}
		return deps.Metrics.Observe, nil
	case "log":
		return Log(logger), nil
	default:
		return nil, fmt.Errorf("unknown handler type: %s", cfg.Type)
	}
}

// templateVars returns sanitized template variables for a datum. An empty
// channel falls back to the datum's first channel.
func templateVars(d *event.Datum, channel string) map[string]any {
	if channel == "" {
		if names := d.ChannelNames(); len(names) > 0 {
			channel = names[0]
		}
	}
	vars := template.DatumVars(d, channel)
	for k, v := range vars {
		if s, ok := v.(string); ok {
			vars[k] = security.SanitizeValue(s)
		}
	}
	return vars
}
