// internal/daemon/daemon.go
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/handler"
	"github.com/colebrumley/radmon/internal/logging"
	"github.com/colebrumley/radmon/internal/security"
	"github.com/colebrumley/radmon/internal/source"
	"github.com/colebrumley/radmon/internal/state"
	"github.com/colebrumley/radmon/internal/trigger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Options are the command-line overrides for the daemon
type Options struct {
	LogFile string
	Debug   bool
}

// Daemon reads every source and dispatches each datum through the registry
type Daemon struct {
	configPath string
	opts       Options
	logger     *slog.Logger
	logCloser  io.Closer
	history    *state.DB
	cleanup    *cron.Cron
	httpServer *http.Server
	startTime  time.Time

	promReg    *prometheus.Registry
	metrics    *handler.Metrics
	dispatched *prometheus.CounterVec
	client     *http.Client

	sources  []source.Source
	webhooks map[string]*source.Webhook
	events   chan *event.Datum

	// mu guards config, registry and closed. Dispatch holds it for reading
	// so a reload never stops a registry with a datum in flight.
	mu       sync.RWMutex
	config   *config.Config
	registry *event.Registry
	closed   bool
}

// New creates a new daemon instance
func New(configPath string, opts Options) *Daemon {
	return &Daemon{
		configPath: configPath,
		opts:       opts,
		logger:     logging.Discard(),
		webhooks:   make(map[string]*source.Webhook),
		events:     make(chan *event.Datum, 100),
		client:     &http.Client{},
	}
}

// Run starts the daemon and blocks until ctx is cancelled or a source fails
func (d *Daemon) Run(ctx context.Context) error {
	d.startTime = time.Now()

	if err := d.prepare(); err != nil {
		return err
	}
	d.logger.Info("starting daemon",
		"config", d.configPath,
		"sources", len(d.sources),
		"triggers", len(d.config.Triggers),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.startHTTPServer(gctx); err != nil {
			d.logger.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		d.startHotReload(gctx)
		return nil
	})

	for _, s := range d.sources {
		g.Go(func() error {
			err := s.Start(gctx, d.events)
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errors.New("source exited")
			}
			d.logger.Error("source failed", "source", s.Name(), "error", err)
			return fmt.Errorf("source %s: %w", s.Name(), err)
		})
	}
	g.Go(func() error {
		d.dispatchLoop(gctx)
		return nil
	})

	err := g.Wait()
	d.logger.Info("daemon stopping")
	return errors.Join(err, d.shutdown())
}

// prepare loads the configuration and builds everything Run starts. On
// failure everything it opened is released again.
func (d *Daemon) prepare() (err error) {
	cfg, err := loadConfig(d.configPath)
	if err != nil {
		return err
	}
	d.config = cfg

	if err := d.initLogger(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			d.logger.Error("daemon failed to start", "error", err)
			d.release()
		}
	}()

	// Handler commands come from the config file
	if err := security.ValidateConfigFile(d.configPath); err != nil {
		d.logger.Error("CRITICAL: config file has unsafe permissions", "error", err, "path", d.configPath)
	}

	if cfg.History.Enabled {
		if err := d.initHistory(); err != nil {
			d.logger.Warn("failed to initialize history database, readings will not be recorded", "error", err)
		}
	}

	d.initMetrics()

	for _, sc := range cfg.Sources {
		s, err := source.New(sc, d.logger)
		if err != nil {
			return fmt.Errorf("creating source %s: %w", sc.Name, err)
		}
		d.sources = append(d.sources, s)
		if wh, ok := s.(*source.Webhook); ok {
			d.webhooks[wh.Name()] = wh
		}
	}

	reg, err := BuildRegistry(cfg, d.deps(), d.logger)
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}
	if err := reg.Start(); err != nil {
		return fmt.Errorf("starting registry: %w", err)
	}
	d.registry = reg
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// initLogger writes to --log-file, then logging.file, then stdout
func (d *Daemon) initLogger() error {
	lc := d.config.Logging
	level := lc.Level
	if d.opts.Debug {
		level = "debug"
	}

	path := d.opts.LogFile
	if path == "" {
		path = lc.File
	}
	if path == "" {
		d.logger = logging.NewLogger(lc.Format, level, os.Stdout)
		return nil
	}

	w, err := logging.NewFileWriter(path, lc.MaxSizeMB, lc.MaxBackups, lc.MaxAgeDays)
	if err != nil {
		d.logger = logging.NewLogger(lc.Format, level, os.Stdout)
		d.logger.Warn("failed to open log file, using stdout", "error", err, "path", path)
		return nil
	}
	d.logCloser = w
	d.logger = logging.NewLogger(lc.Format, level, w)
	return nil
}

// initHistory opens the history database and schedules the daily cleanup
func (d *Daemon) initHistory() error {
	hc := d.config.History
	db, err := state.Open(hc.Path)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	d.history = db

	if err := security.ValidateDataDir(filepath.Dir(hc.Path)); err != nil {
		d.logger.Error("CRITICAL: history directory has unsafe permissions", "error", err)
	}

	cleanup := func() {
		if deleted, err := db.Cleanup(hc.RetentionDays); err != nil {
			d.logger.Warn("history cleanup failed", "error", err)
		} else if deleted > 0 {
			d.logger.Info("cleaned up old readings", "deleted", deleted)
		}
	}
	go cleanup()

	d.cleanup = cron.New()
	if _, err := d.cleanup.AddFunc("@daily", cleanup); err != nil {
		return fmt.Errorf("scheduling history cleanup: %w", err)
	}
	d.cleanup.Start()
	return nil
}

func (d *Daemon) initMetrics() {
	d.promReg = prometheus.NewRegistry()
	d.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.metrics = handler.NewMetrics(d.promReg)
	d.dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radmon_dispatch_total",
			Help: "Data dispatched through the trigger registry by result",
		},
		[]string{"result"},
	)
	d.promReg.MustRegister(d.dispatched)
}

func (d *Daemon) deps() handler.Deps {
	return handler.Deps{
		DB:      d.history,
		Metrics: d.metrics,
		Client:  d.client,
		Logger:  d.logger,
	}
}

// BuildRegistry creates the triggers and handlers described by cfg. The
// registry is returned unstarted. History handlers are skipped when no
// history database is open.
func BuildRegistry(cfg *config.Config, deps handler.Deps, logger *slog.Logger) (*event.Registry, error) {
	dc := cfg.Daemon
	opts := []event.Option{
		event.WithQueueSize(dc.QueueSize),
		event.WithPutTimeout(dc.PutTimeout()),
		event.WithStopTimeout(dc.StopTimeout()),
	}

	withLogger := func(l *slog.Logger) []event.Option {
		return append([]event.Option{event.WithLogger(l)}, opts...)
	}

	reg := event.NewRegistry(withLogger(logger)...)
	for _, tc := range cfg.Triggers {
		t, err := trigger.New(tc, logger, opts...)
		if err != nil {
			return nil, err
		}
		for _, hc := range tc.Handlers {
			if hc.Type == "history" && deps.DB == nil {
				logger.Warn("history disabled, skipping handler", "trigger", tc.Name, "handler", hc.Name)
				continue
			}
			action, err := handler.New(hc, deps)
			if err != nil {
				return nil, fmt.Errorf("trigger %s: %w", tc.Name, err)
			}
			h := event.NewHandler(hc.Name, action, withLogger(logging.WithNode(logger, "handler", hc.Name))...)
			if err := t.Append(h); err != nil {
				return nil, err
			}
		}
		if err := reg.Append(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (d *Daemon) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case datum := <-d.events:
			d.dispatch(datum)
		}
	}
}

// dispatch puts datum to every trigger and waits, up to the dispatch
// timeout, for the whole tree to finish with it.
func (d *Daemon) dispatch(datum *event.Datum) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.Daemon.DispatchTimeout())
	defer cancel()

	if err := d.registry.PutContext(ctx, datum); err != nil {
		d.dispatched.WithLabelValues("error").Inc()
		d.logger.Error("dispatch failed", "origin", datum.Origin(), "error", err)
		return err
	}
	d.dispatched.WithLabelValues("ok").Inc()
	d.logger.Debug("dispatched", "origin", datum.Origin(), "channels", datum.ChannelNames())
	return nil
}

func (d *Daemon) shutdown() error {
	var errs []error

	d.mu.Lock()
	reg, joinTimeout := d.registry, d.config.Daemon.JoinTimeout()
	d.closed = true
	d.mu.Unlock()

	if reg != nil {
		if err := reg.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping registry: %w", err))
		}
		if err := reg.Join(joinTimeout); err != nil {
			errs = append(errs, fmt.Errorf("joining registry: %w", err))
		}
	}

	for _, s := range d.sources {
		if err := s.Stop(); err != nil {
			d.logger.Warn("stopping source", "source", s.Name(), "error", err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		d.logger.Error("unclean shutdown", "error", err)
	} else {
		d.logger.Info("daemon stopped")
	}
	d.release()
	return err
}

// release stops the history cleanup and closes the history database and
// the log file
func (d *Daemon) release() {
	if d.cleanup != nil {
		<-d.cleanup.Stop().Done()
		d.cleanup = nil
	}
	if d.history != nil {
		d.history.Close()
		d.history = nil
	}
	if d.logCloser != nil {
		d.logCloser.Close()
		d.logCloser = nil
	}
}

// sampler is implemented by sources that can take a reading on demand
type sampler interface {
	Sample(ctx context.Context) (*event.Datum, error)
}

// StatusOnce takes one reading from each source that supports it, writes
// them to w as JSON lines and returns without dispatching anything.
func (d *Daemon) StatusOnce(ctx context.Context, w io.Writer) error {
	cfg, err := loadConfig(d.configPath)
	if err != nil {
		return err
	}
	d.config = cfg
	if err := d.initLogger(); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	var errs []error
	for _, sc := range cfg.Sources {
		s, err := source.New(sc, d.logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("creating source %s: %w", sc.Name, err))
			continue
		}
		sm, ok := s.(sampler)
		if !ok {
			d.logger.Info("source has no on-demand reading", "source", sc.Name, "type", sc.Type)
			s.Stop()
			continue
		}

		datum, err := sm.Sample(ctx)
		s.Stop()
		if err != nil {
			errs = append(errs, fmt.Errorf("sampling %s: %w", sc.Name, err))
			continue
		}
		if err := enc.Encode(datum); err != nil {
			return fmt.Errorf("writing status: %w", err)
		}
	}
	return errors.Join(errs...)
}
