// internal/event/edge.go
package event

import (
	"fmt"
	"strings"
)

// Edge is the direction of change between two consecutive samples
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	default:
		return "none"
	}
}

// ParseEdge parses "rising" or "falling"
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(s) {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	default:
		return EdgeNone, fmt.Errorf("invalid edge: %q", s)
	}
}

// Classify returns the edge from prev to cur
func Classify(prev, cur float64) Edge {
	switch {
	case cur > prev:
		return EdgeRising
	case cur < prev:
		return EdgeFalling
	default:
		return EdgeNone
	}
}

// Crossing describes a matched observation
type Crossing struct {
	Edge      Edge
	Prev      float64
	Cur       float64
	Threshold float64
}

// EdgeDetector matches every step that moves in the target direction while
// beyond the threshold. It is not a one-shot crossing detector: a value
// that keeps rising above a rising threshold matches on each step.
type EdgeDetector struct {
	Target    Edge
	Threshold float64

	prev    float64
	hasPrev bool
}

func NewEdgeDetector(target Edge, threshold float64) *EdgeDetector {
	return &EdgeDetector{Target: target, Threshold: threshold}
}

// Observe feeds one sample. The first sample only seeds the state.
func (e *EdgeDetector) Observe(cur float64) (Crossing, bool) {
	if !e.hasPrev {
		e.prev = cur
		e.hasPrev = true
		return Crossing{}, false
	}

	prev := e.prev
	e.prev = cur

	edge := Classify(prev, cur)
	if edge != e.Target {
		return Crossing{}, false
	}

	var beyond bool
	switch e.Target {
	case EdgeRising:
		beyond = cur > e.Threshold
	case EdgeFalling:
		beyond = cur < e.Threshold
	}
	if !beyond {
		return Crossing{}, false
	}

	return Crossing{Edge: edge, Prev: prev, Cur: cur, Threshold: e.Threshold}, true
}

// Previous returns the last observed value, if any
func (e *EdgeDetector) Previous() (float64, bool) {
	return e.prev, e.hasPrev
}

// Reset forgets the previous sample
func (e *EdgeDetector) Reset() {
	e.prev = 0
	e.hasPrev = false
}
