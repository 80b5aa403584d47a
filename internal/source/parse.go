// internal/source/parse.go
package source

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/colebrumley/radmon/internal/event"
)

// ParseCPM reads the leading integer of a Geiger counter line such as "20 [cpm]"
func ParseCPM(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty line")
	}
	cpm, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("parsing cpm %q: %w", fields[0], err)
	}
	if cpm < 0 {
		return 0, fmt.Errorf("negative cpm %d", cpm)
	}
	return cpm, nil
}

// ParseReading parses one line of ";"-separated entries. Each entry is
// either a bare number, stored under defChannel/defUnit, or
// "<channel>=<value>[ unit]".
func ParseReading(line, defChannel, defUnit string) (map[string]event.Value, error) {
	channels := make(map[string]event.Value)
	for _, entry := range strings.Split(line, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, rest, found := strings.Cut(entry, "=")
		if !found {
			name, rest = defChannel, entry
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("missing channel name in %q", entry)
		}

		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return nil, fmt.Errorf("missing value for %s", name)
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing value for %s: %w", name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value for %s is not finite: %s", name, fields[0])
		}
		unit := defUnit
		if len(fields) > 1 {
			unit = strings.Join(fields[1:], " ")
		} else if found {
			unit = ""
		}
		channels[name] = event.Value{Value: v, Unit: unit}
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no readings in %q", line)
	}
	return channels, nil
}

// ParseLines merges the readings of every non-blank line in text
func ParseLines(text, defChannel, defUnit string) (map[string]event.Value, error) {
	channels := make(map[string]event.Value)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parsed, err := ParseReading(line, defChannel, defUnit)
		if err != nil {
			return nil, err
		}
		for k, v := range parsed {
			channels[k] = v
		}
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no readings in output")
	}
	return channels, nil
}
