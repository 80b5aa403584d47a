package trigger

import (
	"testing"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
)

func ptr(v float64) *float64 { return &v }

func TestNewCondition(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Trigger
		wantType string
	}{
		{"data_updated", config.Trigger{Name: "t", Type: "data_updated"}, "*trigger.DataUpdated"},
		{"edge", config.Trigger{Name: "t", Type: "edge", Channel: "c", Edge: "rising", Threshold: ptr(1)}, "*trigger.Edge"},
		{"battery_low", config.Trigger{Name: "t", Type: "battery_low", Channel: "c", Edge: "falling", Threshold: ptr(12)}, "*trigger.Edge"},
		{"above", config.Trigger{Name: "t", Type: "above", Channel: "c", Threshold: ptr(1)}, "*trigger.Level"},
		{"below", config.Trigger{Name: "t", Type: "below", Channel: "c", Threshold: ptr(1)}, "*trigger.Level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCondition(tt.cfg, nil)
			if err != nil {
				t.Fatalf("NewCondition failed: %v", err)
			}
			var got string
			switch c.(type) {
			case *DataUpdated:
				got = "*trigger.DataUpdated"
			case *Edge:
				got = "*trigger.Edge"
			case *Level:
				got = "*trigger.Level"
			}
			if got != tt.wantType {
				t.Errorf("expected %s, got %T", tt.wantType, c)
			}
		})
	}
}

func TestNewCondition_Errors(t *testing.T) {
	tests := []config.Trigger{
		{Name: "t", Type: "unknown"},
		{Name: "t", Type: "edge", Channel: "c", Edge: "rising"},
		{Name: "t", Type: "edge", Channel: "c", Edge: "sideways", Threshold: ptr(1)},
		{Name: "t", Type: "above", Channel: "c"},
	}
	for _, cfg := range tests {
		if _, err := NewCondition(cfg, nil); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestNew_BatteryLowFromDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
triggers:
  - name: battery-low
    type: battery_low
    handlers:
      - name: log
        type: log
`))
	if err != nil {
		t.Fatal(err)
	}

	tr, err := New(cfg.Triggers[0], nil, event.WithQueueSize(2))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tr.Name() != "battery-low" {
		t.Errorf("expected name battery-low, got %s", tr.Name())
	}

	edge, ok := tr.Condition().(*Edge)
	if !ok {
		t.Fatalf("expected *Edge condition, got %T", tr.Condition())
	}
	if edge.Channel != config.BatteryVoltageChannel {
		t.Errorf("expected battery channel, got %s", edge.Channel)
	}
	if got := matches(edge, 12.2, 11.9); !got[1] {
		t.Error("expected a fall below 12.0 to match")
	}
}
