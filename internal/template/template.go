// internal/template/template.go
package template

import (
	"fmt"
	"regexp"
	"time"

	"github.com/colebrumley/radmon/internal/event"
)

// {{name}} or {{name:%.3f}}
var templateVar = regexp.MustCompile(`\{\{(\w+)(?::(%[^}]+))?\}\}`)

// Expand replaces {{variable}} placeholders with values from data. An
// optional fmt verb after a colon formats the value.
func Expand(tmpl string, data map[string]any) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		parts := templateVar.FindStringSubmatch(match)
		val, ok := data[parts[1]]
		if !ok {
			return match // Keep original if not found
		}
		if parts[2] != "" {
			return fmt.Sprintf(parts[2], val)
		}
		return fmt.Sprintf("%v", val)
	})
}

// DatumVars builds template variables for one channel of a datum. Without
// the channel only origin and time variables are set.
func DatumVars(d *event.Datum, channel string) map[string]any {
	ts := d.Timestamp()
	vars := map[string]any{
		"origin":    d.Origin(),
		"channel":   channel,
		"timestamp": ts.Format(time.RFC3339),
		"year":      ts.Year(),
		"month":     fmt.Sprintf("%02d", int(ts.Month())),
		"day":       fmt.Sprintf("%02d", ts.Day()),
		"hour":      fmt.Sprintf("%02d", ts.Hour()),
		"minute":    fmt.Sprintf("%02d", ts.Minute()),
		"second":    fmt.Sprintf("%02d", ts.Second()),
	}
	if v, ok := d.Channel(channel); ok {
		vars["value"] = v.Value
		vars["unit"] = v.Unit
	}
	return vars
}
