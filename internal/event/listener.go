// internal/event/listener.go
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultQueueSize   = 5
	DefaultPutTimeout  = 3 * time.Second
	DefaultStopTimeout = 3 * time.Second
)

// State is the lifecycle state of a listener
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopRequested
	StateTerminated
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateTerminated:
		return "terminated"
	case StateCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Predicate decides whether a datum is acted upon
type Predicate func(d *Datum) bool

// Action consumes a datum. A returned error kills the worker.
type Action func(d *Datum) error

// Node is the lifecycle surface shared by listeners, triggers and registries
type Node interface {
	Name() string
	Start() error
	Stop() error
	Join(timeout time.Duration) error
	Put(d *Datum) error
	Drain(ctx context.Context) error
}

type options struct {
	logger      *slog.Logger
	queueSize   int
	putTimeout  time.Duration
	stopTimeout time.Duration
}

// Option configures a node at construction
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithPutTimeout bounds how long Put waits for room in a full queue
func WithPutTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.putTimeout = d
		}
	}
}

// WithStopTimeout bounds how long Stop waits to enqueue the sentinel
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      slog.New(slog.DiscardHandler),
		queueSize:   DefaultQueueSize,
		putTimeout:  DefaultPutTimeout,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Listener is a single-consumer worker with a bounded queue. A nil datum
// on the queue is the stop sentinel.
type Listener struct {
	name        string
	predicate   Predicate
	action      Action
	logger      *slog.Logger
	queue       chan *Datum
	putTimeout  time.Duration
	stopTimeout time.Duration

	// putMu keeps the enqueued counter in channel order
	putMu sync.Mutex

	mu        sync.Mutex
	started   bool
	state     State
	enqueued  uint64
	processed uint64
	progress  chan struct{} // closed and replaced each time processed advances
	err       error

	done chan struct{} // closed when the worker exits on the sentinel
}

// NewListener creates a listener that runs action for every datum matching predicate
func NewListener(name string, predicate Predicate, action Action, opts ...Option) *Listener {
	o := buildOptions(opts)
	return &Listener{
		name:        name,
		predicate:   predicate,
		action:      action,
		logger:      o.logger.With("node", name),
		queue:       make(chan *Datum, o.queueSize),
		putTimeout:  o.putTimeout,
		stopTimeout: o.stopTimeout,
		progress:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// NewHandler creates a listener whose predicate always matches
func NewHandler(name string, action Action, opts ...Option) *Listener {
	return NewListener(name, func(*Datum) bool { return true }, action, opts...)
}

func (l *Listener) Name() string {
	return l.name
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the failure that crashed the worker, if any
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Len returns the number of queued items
func (l *Listener) Len() int {
	return len(l.queue)
}

func (l *Listener) Cap() int {
	return cap(l.queue)
}

// Start spawns the worker goroutine
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("%s: %w", l.name, ErrAlreadyStarted)
	}
	l.started = true
	if l.state == StateCreated {
		l.state = StateRunning
	}
	l.mu.Unlock()

	l.logger.Debug("listener started", "queue_size", cap(l.queue))
	go l.run()
	return nil
}

// Put enqueues d, waiting at most the put timeout for room
func (l *Listener) Put(d *Datum) error {
	if d == nil {
		return fmt.Errorf("%s: %w", l.name, ErrInvalidInput)
	}
	return l.enqueue(d, l.putTimeout)
}

// Stop enqueues the stop sentinel. Items queued before it are still processed.
func (l *Listener) Stop() error {
	if err := l.enqueue(nil, l.stopTimeout); err != nil {
		return err
	}
	l.logger.Debug("stop requested")
	return nil
}

// stopWithin is Stop with the wait capped at limit
func (l *Listener) stopWithin(limit time.Duration) error {
	if err := l.enqueue(nil, min(l.stopTimeout, limit)); err != nil {
		return err
	}
	l.logger.Debug("stop requested")
	return nil
}

func (l *Listener) enqueue(d *Datum, wait time.Duration) error {
	l.putMu.Lock()
	defer l.putMu.Unlock()

	select {
	case l.queue <- d:
	default:
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case l.queue <- d:
		case <-timer.C:
			l.logger.Warn("queue full", "capacity", cap(l.queue), "stop", d == nil)
			return fmt.Errorf("%s: %w", l.name, ErrQueueFull)
		}
	}

	l.mu.Lock()
	l.enqueued++
	if d == nil && (l.state == StateCreated || l.state == StateRunning) {
		l.state = StateStopRequested
	}
	l.mu.Unlock()
	return nil
}

// Drain blocks until everything enqueued before the call has been processed
func (l *Listener) Drain(ctx context.Context) error {
	l.mu.Lock()
	target := l.enqueued
	for l.processed < target {
		ch := l.progress
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("%s: draining: %w", l.name, ctx.Err())
		}
		l.mu.Lock()
	}
	l.mu.Unlock()
	return nil
}

// Join waits for the worker to exit. It never cancels an in-flight action.
func (l *Listener) Join(timeout time.Duration) error {
	select {
	case <-l.done:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: %w", l.name, ErrJoinTimeout)
	}
}

func (l *Listener) run() {
	for {
		d := <-l.queue
		if d == nil {
			l.mu.Lock()
			l.state = StateTerminated
			l.advanceLocked()
			l.mu.Unlock()
			close(l.done)
			l.logger.Debug("listener terminated")
			return
		}

		if err := l.process(d); err != nil {
			// The worker is gone for good: nothing marks this item processed
			// and done is never closed.
			l.mu.Lock()
			l.state = StateCrashed
			l.err = err
			l.mu.Unlock()
			l.logger.Error("listener crashed", "origin", d.Origin(), "error", err)
			return
		}

		l.mu.Lock()
		l.advanceLocked()
		l.mu.Unlock()
	}
}

func (l *Listener) advanceLocked() {
	l.processed++
	close(l.progress)
	l.progress = make(chan struct{})
}

func (l *Listener) process(d *Datum) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: panic: %v", l.name, ErrCrashed, r)
		}
	}()

	if !l.predicate(d) {
		return nil
	}
	if err := l.action(d); err != nil {
		return fmt.Errorf("%s: %w: %w", l.name, ErrCrashed, err)
	}
	return nil
}
