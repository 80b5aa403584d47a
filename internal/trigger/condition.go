// internal/trigger/condition.go
package trigger

import (
	"log/slog"

	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/logging"
)

// DataUpdated matches every datum, optionally only those from one origin
type DataUpdated struct {
	Origin string
}

func (c *DataUpdated) Match(d *event.Datum) bool {
	return c.Origin == "" || d.Origin() == c.Origin
}

// Edge matches samples of one channel moving in the target direction while
// beyond the threshold. With Once set it fires a single time per excursion
// and re-arms when the value returns across the threshold.
type Edge struct {
	Origin  string
	Channel string
	Once    bool

	detector *event.EdgeDetector
	logger   *slog.Logger
	fired    bool
}

func NewEdge(channel string, target event.Edge, threshold float64, logger *slog.Logger) *Edge {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Edge{
		Channel:  channel,
		detector: event.NewEdgeDetector(target, threshold),
		logger:   logger,
	}
}

func (c *Edge) Match(d *event.Datum) bool {
	if c.Origin != "" && d.Origin() != c.Origin {
		return false
	}
	v, ok := d.Channel(c.Channel)
	if !ok {
		return false
	}

	crossing, hit := c.detector.Observe(v.Value)
	if !c.Once {
		if hit {
			c.logMatch(crossing)
		}
		return hit
	}

	if !c.beyond(v.Value) {
		c.fired = false
		return false
	}
	if !hit || c.fired {
		return false
	}
	c.fired = true
	c.logMatch(crossing)
	return true
}

func (c *Edge) beyond(v float64) bool {
	switch c.detector.Target {
	case event.EdgeRising:
		return v > c.detector.Threshold
	case event.EdgeFalling:
		return v < c.detector.Threshold
	}
	return false
}

func (c *Edge) logMatch(x event.Crossing) {
	c.logger.Info("edge matched",
		"channel", c.Channel,
		"edge", x.Edge.String(),
		"previous", x.Prev,
		"current", x.Cur,
		"threshold", x.Threshold,
	)
}

// Level matches whenever the channel is above (or below) the threshold.
// It keeps no state between samples.
type Level struct {
	Origin    string
	Channel   string
	Threshold float64
	Above     bool
}

func (c *Level) Match(d *event.Datum) bool {
	if c.Origin != "" && d.Origin() != c.Origin {
		return false
	}
	v, ok := d.Channel(c.Channel)
	if !ok {
		return false
	}
	if c.Above {
		return v.Value > c.Threshold
	}
	return v.Value < c.Threshold
}
