// internal/handler/sink.go
package handler

import (
	"fmt"
	"log/slog"

	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/state"
)

// History records every datum in the history database
func History(db *state.DB, logger *slog.Logger) event.Action {
	return func(d *event.Datum) error {
		id, err := db.RecordDatum(d)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		logger.Debug("recorded datum", "sample_id", id, "origin", d.Origin(), "channels", d.Len())
		return nil
	}
}

// Log writes every datum to the log at info level
func Log(logger *slog.Logger) event.Action {
	return func(d *event.Datum) error {
		attrs := []any{"origin", d.Origin(), "timestamp", d.Timestamp()}
		for _, name := range d.ChannelNames() {
			v, _ := d.Channel(name)
			attrs = append(attrs, slog.Group(name, "value", v.Value, "unit", v.Unit))
		}
		logger.Info("reading", attrs...)
		return nil
	}
}
