// internal/config/types.go
package config

import "time"

// Config is the daemon configuration loaded from config.yaml
type Config struct {
	Daemon   DaemonConfig  `yaml:"daemon"`
	Logging  LoggingConfig `yaml:"logging"`
	History  HistoryConfig `yaml:"history"`
	Sources  []Source      `yaml:"sources" validate:"dive"`
	Triggers []Trigger     `yaml:"triggers" validate:"dive"`
}

type DaemonConfig struct {
	ListenAddress          string `yaml:"listen_address"`
	ListenPort             int    `yaml:"listen_port" validate:"gte=0,lte=65535"`
	QueueSize              int    `yaml:"queue_size" validate:"gte=0,lte=1024"`
	PutTimeoutSeconds      int    `yaml:"put_timeout_seconds" validate:"gte=0"`
	StopTimeoutSeconds     int    `yaml:"stop_timeout_seconds" validate:"gte=0"`
	DispatchTimeoutSeconds int    `yaml:"dispatch_timeout_seconds" validate:"gte=0"`
	JoinTimeoutSeconds     int    `yaml:"join_timeout_seconds" validate:"gte=0"`
}

type LoggingConfig struct {
	Format     string `yaml:"format" validate:"omitempty,oneof=json text"`
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
}

// Source describes where readings come from
type Source struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=geiger command file webhook manual"`
	// Geiger
	Device    string  `yaml:"device"`
	Baud      int     `yaml:"baud" validate:"gte=0"`
	USVPerCPM float64 `yaml:"usv_per_cpm" validate:"gte=0"`
	// Command
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	CronExpression string   `yaml:"cron_expression"`
	RunEvery       string   `yaml:"run_every"`
	RunAt          string   `yaml:"run_at"`
	TimeoutSeconds int      `yaml:"timeout_seconds" validate:"gte=0"`
	// Command and file: channel and unit for bare numeric lines
	Channel string `yaml:"channel"`
	Unit    string `yaml:"unit"`
	// File
	Path string `yaml:"path"`
	// Webhook
	SecretHeader string `yaml:"secret_header"`
	SecretEnv    string `yaml:"secret_env"`
}

// Trigger is a condition plus the handlers it fans out to
type Trigger struct {
	Name      string    `yaml:"name" validate:"required"`
	Type      string    `yaml:"type" validate:"required,oneof=data_updated edge battery_low battery_full above below"`
	Origin    string    `yaml:"origin"`
	Channel   string    `yaml:"channel"`
	Threshold *float64  `yaml:"threshold"`
	Edge      string    `yaml:"edge" validate:"omitempty,oneof=rising falling"`
	Once      bool      `yaml:"once"`
	Handlers  []Handler `yaml:"handlers" validate:"dive"`
}

// Handler is one consumer attached to a trigger
type Handler struct {
	Name           string `yaml:"name" validate:"required"`
	Type           string `yaml:"type" validate:"required,oneof=command safecast feed notify history metrics log"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
	// Command
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// SafeCast, feed, notify
	URL       string `yaml:"url" validate:"omitempty,url"`
	APIKeyEnv string `yaml:"api_key_env"`
	// SafeCast
	Channel   string  `yaml:"channel"`
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	DeviceID  string  `yaml:"device_id"`
	Height    string  `yaml:"height"`
	Surface   string  `yaml:"surface"`
	Radiation string  `yaml:"radiation"`
	// Notify
	Message string `yaml:"message"`
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (d DaemonConfig) PutTimeout() time.Duration      { return seconds(d.PutTimeoutSeconds) }
func (d DaemonConfig) StopTimeout() time.Duration     { return seconds(d.StopTimeoutSeconds) }
func (d DaemonConfig) DispatchTimeout() time.Duration { return seconds(d.DispatchTimeoutSeconds) }
func (d DaemonConfig) JoinTimeout() time.Duration     { return seconds(d.JoinTimeoutSeconds) }
func (s Source) Timeout() time.Duration               { return seconds(s.TimeoutSeconds) }
func (h Handler) Timeout() time.Duration              { return seconds(h.TimeoutSeconds) }
