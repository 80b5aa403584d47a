// internal/source/manual.go
package source

import (
	"context"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
)

// Manual is a source that only emits when fired explicitly
type Manual struct {
	name string
}

// NewManual creates a new manual source
func NewManual(cfg config.Source) (*Manual, error) {
	return &Manual{name: cfg.Name}, nil
}

func (m *Manual) Name() string {
	return m.name
}

// Start for manual source just blocks - it never fires automatically
func (m *Manual) Start(ctx context.Context, out chan<- *event.Datum) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *Manual) Stop() error {
	return nil
}

// Fire emits a reading now. Returns false if the channel is full.
func (m *Manual) Fire(out chan<- *event.Datum, channels map[string]event.Value) bool {
	select {
	case out <- event.NewDatum(m.name, channels, time.Now().UTC()):
		return true
	default:
		return false
	}
}
