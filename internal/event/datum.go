// internal/event/datum.go
package event

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Value is a single channel reading
type Value struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Datum is one timestamped sensor sample. It is never mutated after
// construction, so it can be shared freely between queues.
type Datum struct {
	origin    string
	channels  map[string]Value
	timestamp time.Time
}

// NewDatum copies channels into a new Datum
func NewDatum(origin string, channels map[string]Value, ts time.Time) *Datum {
	return &Datum{
		origin:    origin,
		channels:  maps.Clone(channels),
		timestamp: ts,
	}
}

func (d *Datum) Origin() string {
	return d.origin
}

func (d *Datum) Timestamp() time.Time {
	return d.timestamp
}

// Channel returns the named channel reading
func (d *Datum) Channel(name string) (Value, bool) {
	v, ok := d.channels[name]
	return v, ok
}

// ChannelNames returns the channel names in sorted order
func (d *Datum) ChannelNames() []string {
	return slices.Sorted(maps.Keys(d.channels))
}

// Channels returns a copy of the channel map
func (d *Datum) Channels() map[string]Value {
	return maps.Clone(d.channels)
}

func (d *Datum) Len() int {
	return len(d.channels)
}

type datumJSON struct {
	Origin    string           `json:"origin"`
	Channels  map[string]Value `json:"channels"`
	Timestamp time.Time        `json:"timestamp"`
}

func (d *Datum) MarshalJSON() ([]byte, error) {
	return json.Marshal(datumJSON{
		Origin:    d.origin,
		Channels:  d.channels,
		Timestamp: d.timestamp,
	})
}
