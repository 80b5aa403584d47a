// internal/trigger/factory.go
package trigger

import (
	"fmt"
	"log/slog"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/logging"
)

// New creates a trigger with no handlers based on the configuration type
func New(cfg config.Trigger, logger *slog.Logger, opts ...event.Option) (*event.Trigger, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithNode(logger, "trigger", cfg.Name)

	cond, err := NewCondition(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, event.WithLogger(logger))
	return event.NewTrigger(cfg.Name, cond, opts...), nil
}

// NewCondition builds the condition for a trigger configuration
func NewCondition(cfg config.Trigger, logger *slog.Logger) (event.Condition, error) {
	switch cfg.Type {
	case "data_updated":
		return &DataUpdated{Origin: cfg.Origin}, nil
	case "edge", "battery_low", "battery_full":
		if cfg.Threshold == nil {
			return nil, fmt.Errorf("trigger %s: threshold is required", cfg.Name)
		}
		target, err := event.ParseEdge(cfg.Edge)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: %w", cfg.Name, err)
		}
		c := NewEdge(cfg.Channel, target, *cfg.Threshold, logger)
		c.Origin = cfg.Origin
		c.Once = cfg.Once
		return c, nil
	case "above", "below":
		if cfg.Threshold == nil {
			return nil, fmt.Errorf("trigger %s: threshold is required", cfg.Name)
		}
		return &Level{
			Origin:    cfg.Origin,
			Channel:   cfg.Channel,
			Threshold: *cfg.Threshold,
			Above:     cfg.Type == "above",
		}, nil
	default:
		return nil, fmt.Errorf("unknown trigger type: %s", cfg.Type)
	}
}
