// internal/source/source.go
package source

import (
	"context"

	"github.com/colebrumley/radmon/internal/event"
)

// Source produces readings
type Source interface {
	// Start emits data on out until ctx is cancelled or the source fails
	Start(ctx context.Context, out chan<- *event.Datum) error
	// Stop releases the source's resources
	Stop() error
	// Name is the origin recorded on every datum
	Name() string
}

// emit sends d unless ctx ends first
func emit(ctx context.Context, out chan<- *event.Datum, d *event.Datum) error {
	select {
	case out <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
