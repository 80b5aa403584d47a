// internal/event/registry.go
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry is the top-level set of triggers. Put delivers a datum to every
// trigger and returns once all of them have drained.
type Registry struct {
	logger      *slog.Logger
	stopTimeout time.Duration

	mu       sync.Mutex
	started  bool
	triggers []*Trigger
}

func NewRegistry(opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		logger:      o.logger.With("node", "registry"),
		stopTimeout: o.stopTimeout,
	}
}

func (r *Registry) Name() string {
	return "registry"
}

// Append registers a trigger. Only valid before Start.
func (r *Registry) Append(t *Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("registry: appending %s: %w", t.Name(), ErrAlreadyStarted)
	}
	r.triggers = append(r.triggers, t)
	return nil
}

// Triggers returns the registered triggers in order
func (r *Registry) Triggers() []*Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Trigger, len(r.triggers))
	copy(out, r.triggers)
	return out
}

func (r *Registry) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("registry: %w", ErrAlreadyStarted)
	}
	r.started = true
	r.mu.Unlock()

	for i, t := range r.triggers {
		if err := t.Start(); err != nil {
			for _, started := range r.triggers[:i] {
				started.Stop()
				started.Join(r.stopTimeout)
			}
			return fmt.Errorf("registry: %w", err)
		}
	}
	r.logger.Info("registry started", "triggers", len(r.triggers))
	return nil
}

// Put delivers d to every trigger and waits, without a deadline, for all
// of them to drain.
func (r *Registry) Put(d *Datum) error {
	return r.PutContext(context.Background(), d)
}

// PutContext is Put with the drain bounded by ctx. A trigger that rejects
// d does not stop delivery to the others.
func (r *Registry) PutContext(ctx context.Context, d *Datum) error {
	if d == nil {
		return fmt.Errorf("registry: %w", ErrInvalidInput)
	}

	var errs []error
	for _, t := range r.triggers {
		if err := t.Put(d); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Drain drains every trigger in registration order
func (r *Registry) Drain(ctx context.Context) error {
	for _, t := range r.triggers {
		if err := t.Drain(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Stop() error {
	var errs []error
	for _, t := range r.triggers {
		if err := t.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Join joins every trigger, sharing one timeout across all of them
func (r *Registry) Join(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var errs []error
	for _, t := range r.triggers {
		if err := t.Join(time.Until(deadline)); err != nil {
			r.logger.Error("trigger did not shut down", "trigger", t.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
