// internal/source/factory.go
package source

import (
	"fmt"
	"log/slog"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/logging"
)

// New creates a source based on the configuration type
func New(cfg config.Source, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithSource(logger, cfg.Name)

	switch cfg.Type {
	case "geiger":
		return NewGeiger(cfg, logger)
	case "command":
		return NewCommand(cfg, logger)
	case "file":
		return NewFile(cfg, logger)
	case "webhook":
		return NewWebhook(cfg)
	case "manual":
		return NewManual(cfg)
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
