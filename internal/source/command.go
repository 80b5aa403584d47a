// internal/source/command.go
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/robfig/cron/v3"
)

// Command runs a probe command on a cron schedule and emits its output as a reading
type Command struct {
	name     string
	command  string
	args     []string
	channel  string
	unit     string
	timeout  time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu  sync.Mutex
	ctx context.Context
	out chan<- *event.Datum
}

// NewCommand creates a new scheduled command source
func NewCommand(cfg config.Source, logger *slog.Logger) (*Command, error) {
	// Use cron with seconds field support
	c := cron.New(cron.WithSeconds())

	s := &Command{
		name:    cfg.Name,
		command: cfg.Command,
		args:    cfg.Args,
		channel: cfg.Channel,
		unit:    cfg.Unit,
		timeout: cfg.Timeout(),
		cron:    c,
		logger:  logger,
	}

	s.schedule = cfg.CronExpression
	if s.schedule == "" {
		s.schedule = convertSimpleToCron(cfg.RunEvery, cfg.RunAt)
	}

	if _, err := c.AddFunc(s.schedule, s.tick); err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", s.schedule, err)
	}

	return s, nil
}

func (s *Command) Name() string {
	return s.name
}

func (s *Command) Schedule() string {
	return s.schedule
}

func (s *Command) Start(ctx context.Context, out chan<- *event.Datum) error {
	s.mu.Lock()
	s.ctx = ctx
	s.out = out
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("command source scheduled", "schedule", s.schedule, "command", s.command)

	<-ctx.Done()
	return ctx.Err()
}

func (s *Command) Stop() error {
	<-s.cron.Stop().Done()
	return nil
}

func (s *Command) tick() {
	s.mu.Lock()
	ctx, out := s.ctx, s.out
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	d, err := s.Sample(ctx)
	if err != nil {
		s.logger.Warn("probe failed", "error", err)
		return
	}
	if err := emit(ctx, out, d); err != nil {
		s.logger.Debug("dropping sample", "error", err)
	}
}

// Sample runs the probe once
func (s *Command) Sample(ctx context.Context) (*event.Datum, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.WaitDelay = time.Second
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("running %s: timed out after %v", s.command, s.timeout)
		}
		return nil, fmt.Errorf("running %s: %w", s.command, err)
	}

	channels, err := ParseLines(string(output), s.channel, s.unit)
	if err != nil {
		return nil, fmt.Errorf("parsing output of %s: %w", s.command, err)
	}
	return event.NewDatum(s.name, channels, time.Now().UTC()), nil
}

// convertSimpleToCron converts run_every or run_at to cron expression
func convertSimpleToCron(runEvery, runAt string) string {
	// Default: every minute
	if runEvery == "" && runAt == "" {
		return "0 * * * * *"
	}

	// run_at: "HH:MM" -> run daily at that time
	if runAt != "" {
		if len(runAt) == 5 && runAt[2] == ':' {
			hour := runAt[0:2]
			min := runAt[3:5]
			return "0 " + min + " " + hour + " * * *"
		}
	}

	// run_every: "30s", "5m", "1h"
	if runEvery != "" && len(runEvery) >= 2 {
		unit := runEvery[len(runEvery)-1]
		val := runEvery[:len(runEvery)-1]

		switch unit {
		case 's':
			return "*/" + val + " * * * * *"
		case 'm':
			return "0 */" + val + " * * * *"
		case 'h':
			return "0 0 */" + val + " * * *"
		}
	}

	return "0 * * * * *"
}
