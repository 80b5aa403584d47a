package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/logging"
)

func batteryDatum(v float64) *event.Datum {
	return event.NewDatum("battery", map[string]event.Value{
		config.BatteryVoltageChannel: {Value: v, Unit: "V"},
	}, time.Date(2026, 3, 11, 5, 46, 0, 0, time.UTC))
}

func TestCommand_Args(t *testing.T) {
	c := NewCommand(config.Handler{
		Command: "echo",
		Args:    []string{"--origin={{origin}}", "{{value:%.1f}}{{unit}}", "{{year}}-{{month}}-{{day}}"},
	}, logging.Discard())

	got := c.Args(batteryDatum(11.94))
	want := []string{"--origin=battery", "11.9V", "2026-03-11"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Args() = %v, want %v", got, want)
	}
}

func TestCommand_Run(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		timeout   int
		wantState string
	}{
		{"success", []string{"-c", "echo voltage {{value}}"}, 5, "success"},
		{"failure", []string{"-c", "exit 1"}, 5, "failure"},
		{"timeout", []string{"-c", "sleep 5"}, 1, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCommand(config.Handler{Command: "sh", Args: tt.args, TimeoutSeconds: tt.timeout}, logging.Discard())
			res, err := c.Run(context.Background(), batteryDatum(11.5))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.State != tt.wantState {
				t.Errorf("expected state %s, got %s (%s)", tt.wantState, res.State, res.Error)
			}
		})
	}
}

func TestCommand_RunOutput(t *testing.T) {
	c := NewCommand(config.Handler{Command: "sh", Args: []string{"-c", "echo {{value}}"}}, logging.Discard())
	res, err := c.Run(context.Background(), batteryDatum(11.5))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(res.Output) != "11.5" {
		t.Errorf("expected output 11.5, got %q", res.Output)
	}
}

func TestCommand_HandleOnlyFailsToStart(t *testing.T) {
	failing := NewCommand(config.Handler{Command: "sh", Args: []string{"-c", "exit 2"}}, logging.Discard())
	if err := failing.Handle(batteryDatum(11)); err != nil {
		t.Errorf("non-zero exit should be logged, got error %v", err)
	}

	missing := NewCommand(config.Handler{Command: "/nonexistent/radmon-shutdown"}, logging.Discard())
	if err := missing.Handle(batteryDatum(11)); err == nil {
		t.Error("expected error for a command that cannot start")
	}
}
