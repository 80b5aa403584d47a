// internal/handler/command.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/security"
	"github.com/colebrumley/radmon/internal/template"
)

// Result represents the outcome of one command run
type Result struct {
	State    string
	Output   string
	Error    string
	Duration time.Duration
}

// Command runs an external command for every datum, for example a remote
// shutdown script when the battery runs low.
type Command struct {
	command string
	args    []string
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

func NewCommand(cfg config.Handler, logger *slog.Logger) *Command {
	return &Command{
		command: cfg.Command,
		args:    cfg.Args,
		channel: cfg.Channel,
		timeout: cfg.Timeout(),
		logger:  logger,
	}
}

// Args expands the configured arguments against d
func (c *Command) Args(d *event.Datum) []string {
	vars := templateVars(d, c.channel)
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = template.Expand(a, vars)
	}
	return args
}

// Handle runs the command. Only a failure to start it is returned; a
// non-zero exit or a timeout is logged.
func (c *Command) Handle(d *event.Datum) error {
	res, err := c.Run(context.Background(), d)
	if err != nil {
		return err
	}

	attrs := []any{"state", res.State, "duration", res.Duration.String()}
	if res.Output != "" {
		attrs = append(attrs, "output", security.ScrubOutput(res.Output))
	}
	if res.State == "success" {
		c.logger.Info("command finished", attrs...)
	} else {
		c.logger.Warn("command failed", append(attrs, "error", res.Error)...)
	}
	return nil
}

// Run executes the command once for d
func (c *Command) Run(ctx context.Context, d *event.Datum) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.command, c.Args(d)...)
	cmd.WaitDelay = time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	if err != nil {
		// Check if it was a context cancellation (timeout)
		if ctx.Err() == context.DeadlineExceeded {
			return &Result{
				State:    "timeout",
				Error:    "execution timed out",
				Output:   string(output),
				Duration: duration,
			}, nil
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("starting %s: %w", c.command, err)
		}

		return &Result{
			State:    "failure",
			Error:    err.Error(),
			Output:   string(output),
			Duration: duration,
		}, nil
	}

	return &Result{
		State:    "success",
		Output:   string(output),
		Duration: duration,
	}, nil
}
