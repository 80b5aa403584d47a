// internal/event/trigger.go
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Condition is a trigger's domain predicate. Implementations may keep
// state; Match is only ever called from the owning trigger's worker.
type Condition interface {
	Match(d *Datum) bool
}

// ConditionFunc adapts a plain function to Condition
type ConditionFunc func(d *Datum) bool

func (f ConditionFunc) Match(d *Datum) bool {
	return f(d)
}

// Always matches every datum
var Always Condition = ConditionFunc(func(*Datum) bool { return true })

// Trigger evaluates a condition for each datum and, on match, delivers it
// to every child and waits for all of them to drain.
type Trigger struct {
	listener *Listener
	cond     Condition

	mu       sync.Mutex
	started  bool
	children []Node
}

// NewTrigger creates a trigger with no children
func NewTrigger(name string, cond Condition, opts ...Option) *Trigger {
	t := &Trigger{cond: cond}
	t.listener = NewListener(name, cond.Match, t.deliver, opts...)
	return t
}

// Append registers a child. Only valid before Start.
func (t *Trigger) Append(child Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("%s: appending %s: %w", t.Name(), child.Name(), ErrAlreadyStarted)
	}
	t.children = append(t.children, child)
	return nil
}

func (t *Trigger) Name() string {
	return t.listener.Name()
}

func (t *Trigger) Condition() Condition {
	return t.cond
}

// Children returns the registered children in order
func (t *Trigger) Children() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Node, len(t.children))
	copy(out, t.children)
	return out
}

func (t *Trigger) State() State {
	return t.listener.State()
}

func (t *Trigger) Err() error {
	return t.listener.Err()
}

// Start starts every child, then the trigger's own worker
func (t *Trigger) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("%s: %w", t.Name(), ErrAlreadyStarted)
	}
	t.started = true
	children := t.children
	t.mu.Unlock()

	for i, c := range children {
		if err := c.Start(); err != nil {
			for _, started := range children[:i] {
				stopNode(started, t.listener.stopTimeout)
				started.Join(t.listener.stopTimeout)
			}
			return fmt.Errorf("%s: starting %s: %w", t.Name(), c.Name(), err)
		}
	}
	return t.listener.Start()
}

func (t *Trigger) Put(d *Datum) error {
	return t.listener.Put(d)
}

func (t *Trigger) Drain(ctx context.Context) error {
	return t.listener.Drain(ctx)
}

// Stop signals only the trigger's own worker; children are stopped by Join
// once the worker has exited.
func (t *Trigger) Stop() error {
	return t.listener.Stop()
}

func (t *Trigger) stopWithin(limit time.Duration) error {
	return t.listener.stopWithin(limit)
}

// Join waits for the trigger's worker, then stops and joins every child,
// all within the one timeout. Only children from this package have their
// stop wait bounded by what is left of it.
func (t *Trigger) Join(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := t.listener.Join(timeout); err != nil {
		return err
	}

	var errs []error
	for _, c := range t.children {
		if err := stopNode(c, time.Until(deadline)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range t.children {
		if err := c.Join(time.Until(deadline)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver runs on the trigger's worker. Children are never added after
// Start, so reading t.children here needs no lock.
func (t *Trigger) deliver(d *Datum) error {
	for _, c := range t.children {
		if err := c.Put(d); err != nil {
			return fmt.Errorf("delivering to %s: %w", c.Name(), err)
		}
	}
	for _, c := range t.children {
		if err := c.Drain(context.Background()); err != nil {
			return fmt.Errorf("draining %s: %w", c.Name(), err)
		}
	}
	return nil
}

// stopNode stops n, waiting at most limit when n supports a bounded stop
func stopNode(n Node, limit time.Duration) error {
	if s, ok := n.(interface{ stopWithin(time.Duration) error }); ok {
		return s.stopWithin(limit)
	}
	return n.Stop()
}
