// internal/config/loader.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddress = "127.0.0.1"
	DefaultListenPort    = 9876
	DefaultHistoryPath   = "/var/lib/radmon/history.db"
	DefaultSafeCastURL   = "https://api.safecast.org/en-US"

	BatteryVoltageChannel = "Battery Voltage"
	CountPerMinuteChannel = "Count Per Minute"
	MicroSievertChannel   = "Micro Sievert Per Hour"
)

// Load reads, parses and applies defaults to the configuration at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration written by "radmon init"
func Default() *Config {
	cfg := &Config{
		History: HistoryConfig{Enabled: true},
		Sources: []Source{
			{Name: "geiger", Type: "geiger", Device: "/dev/ttyUSB0"},
			{Name: "battery", Type: "webhook"},
		},
		Triggers: []Trigger{
			{
				Name: "data-updated",
				Type: "data_updated",
				Handlers: []Handler{
					{Name: "history", Type: "history"},
					{Name: "metrics", Type: "metrics"},
				},
			},
			{
				Name: "battery-low",
				Type: "battery_low",
				Handlers: []Handler{
					{Name: "shutdown", Type: "command", Command: "/tmp/remote_shutdown.sh"},
				},
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	d := &cfg.Daemon
	if d.ListenAddress == "" {
		d.ListenAddress = DefaultListenAddress
	}
	if d.ListenPort == 0 {
		d.ListenPort = DefaultListenPort
	}
	if d.QueueSize == 0 {
		d.QueueSize = 5
	}
	if d.PutTimeoutSeconds == 0 {
		d.PutTimeoutSeconds = 3
	}
	if d.StopTimeoutSeconds == 0 {
		d.StopTimeoutSeconds = 3
	}
	if d.DispatchTimeoutSeconds == 0 {
		d.DispatchTimeoutSeconds = 30
	}
	if d.JoinTimeoutSeconds == 0 {
		d.JoinTimeoutSeconds = 10
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}

	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 90
	}

	for i := range cfg.Sources {
		applySourceDefaults(&cfg.Sources[i])
	}
	for i := range cfg.Triggers {
		applyTriggerDefaults(&cfg.Triggers[i])
	}
}

func applySourceDefaults(s *Source) {
	switch s.Type {
	case "geiger":
		if s.Baud == 0 {
			s.Baud = 9600
		}
		if s.USVPerCPM == 0 {
			s.USVPerCPM = 0.00812
		}
	case "command":
		if s.TimeoutSeconds == 0 {
			s.TimeoutSeconds = 10
		}
		if s.Channel == "" {
			s.Channel = BatteryVoltageChannel
		}
		if s.Unit == "" {
			s.Unit = "V"
		}
	case "file":
		if s.Channel == "" {
			s.Channel = BatteryVoltageChannel
		}
		if s.Unit == "" {
			s.Unit = "V"
		}
	}
}

func applyTriggerDefaults(t *Trigger) {
	threshold := func(v float64) {
		if t.Threshold == nil {
			t.Threshold = &v
		}
	}

	switch t.Type {
	case "battery_low":
		if t.Channel == "" {
			t.Channel = BatteryVoltageChannel
		}
		t.Edge = "falling"
		threshold(12.0)
	case "battery_full":
		if t.Channel == "" {
			t.Channel = BatteryVoltageChannel
		}
		t.Edge = "rising"
		threshold(25.0)
	}

	for i := range t.Handlers {
		applyHandlerDefaults(&t.Handlers[i])
	}
}

func applyHandlerDefaults(h *Handler) {
	switch h.Type {
	case "command":
		if h.TimeoutSeconds == 0 {
			h.TimeoutSeconds = 60
		}
	case "safecast":
		if h.URL == "" {
			h.URL = DefaultSafeCastURL
		}
		if h.Channel == "" {
			h.Channel = CountPerMinuteChannel
		}
		if h.Height == "" {
			h.Height = "1m"
		}
		if h.Surface == "" {
			h.Surface = "Soil"
		}
		if h.Radiation == "" {
			h.Radiation = "Air"
		}
		fallthrough
	case "feed", "notify":
		if h.TimeoutSeconds == 0 {
			h.TimeoutSeconds = 5
		}
	}
}
