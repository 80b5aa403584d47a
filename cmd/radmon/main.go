// cmd/radmon/main.go
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/source"
	"github.com/colebrumley/radmon/internal/state"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/etc/radmon/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "validate":
		err = cmdValidate(args)
	case "status":
		err = cmdStatus(args)
	case "triggers":
		err = cmdTriggers(args)
	case "history":
		err = cmdHistory(args)
	case "put":
		err = cmdPut(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`radmon - Radiation and battery monitor

Usage: radmon <command> [options]

Commands:
  init                     Write a default config file
  validate                 Validate the config file
  status                   Show daemon health
  triggers                 Show trigger and handler states
  history [-origin] [-channel] [-limit]
                           Show recorded readings
  put <source> <channel>=<value>[ unit]...
                           Post a reading to a webhook source
  help                     Show this help

Every command accepts -config (default $RADMON_CONFIG or ` + defaultConfigPath + `).`)
}

func configFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("RADMON_CONFIG")
	if def == "" {
		def = defaultConfigPath
	}
	return fs.String("config", def, "path to the config file")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", path, err)
	}
	return cfg, nil
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := configFlag(fs)
	force := fs.Bool("force", false, "overwrite an existing config")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *configPath)
	}

	if err := os.MkdirAll(filepath.Dir(*configPath), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return err
	}
	// Handler commands live in this file
	if err := os.WriteFile(*configPath, data, 0600); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", *configPath)
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	handlers := 0
	for _, t := range cfg.Triggers {
		handlers += len(t.Handlers)
	}
	fmt.Printf("Config is valid: %d sources, %d triggers, %d handlers\n", len(cfg.Sources), len(cfg.Triggers), handlers)
	return nil
}

// daemonURL is the base URL of the daemon's HTTP API
func daemonURL(configPath string) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", cfg.Daemon.ListenAddress, cfg.Daemon.ListenPort), nil
}

func getJSON(url string, v any) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("daemon is not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	base, err := daemonURL(*configPath)
	if err != nil {
		return err
	}
	var health map[string]any
	if err := getJSON(base+"/health", &health); err != nil {
		return err
	}

	fmt.Printf("Daemon is running (uptime %v)\n", health["uptime"])
	fmt.Printf("  sources:  %v\n", health["sources"])
	fmt.Printf("  triggers: %v\n", health["triggers"])
	fmt.Printf("  history:  %v\n", health["history"])
	return nil
}

type nodeStatus struct {
	Name     string       `json:"name"`
	State    string       `json:"state"`
	Error    string       `json:"error,omitempty"`
	Handlers []nodeStatus `json:"handlers,omitempty"`
}

func cmdTriggers(args []string) error {
	fs := flag.NewFlagSet("triggers", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	base, err := daemonURL(*configPath)
	if err != nil {
		return err
	}
	var triggers []nodeStatus
	if err := getJSON(base+"/api/triggers", &triggers); err != nil {
		return err
	}

	fmt.Printf("%-24s %-16s %s\n", "NAME", "STATE", "ERROR")
	fmt.Println(strings.Repeat("-", 70))
	for _, t := range triggers {
		fmt.Printf("%-24s %-16s %s\n", t.Name, t.State, t.Error)
		for _, h := range t.Handlers {
			fmt.Printf("  %-22s %-16s %s\n", h.Name, h.State, h.Error)
		}
	}
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := configFlag(fs)
	origin := fs.String("origin", "", "only readings from this source")
	channel := fs.String("channel", "", "only readings of this channel")
	limit := fs.Int("limit", 20, "maximum readings to show")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	db, err := state.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	readings, err := db.GetReadings(state.Query{Origin: *origin, Channel: *channel, Limit: *limit})
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		fmt.Println("No readings recorded")
		return nil
	}

	fmt.Printf("%-20s %-10s %-24s %s\n", "CAPTURED", "ORIGIN", "CHANNEL", "VALUE")
	fmt.Println(strings.Repeat("-", 70))
	for _, r := range readings {
		fmt.Printf("%-20s %-10s %-24s %g %s\n",
			r.CapturedAt.Local().Format("2006-01-02 15:04:05"), r.Origin, r.Channel, r.Value, r.Unit)
	}
	return nil
}

func cmdPut(args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	configPath := configFlag(fs)
	secret := fs.String("secret", os.Getenv("RADMON_SECRET"), "webhook secret")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: radmon put <source> <channel>=<value>[ unit]...")
	}
	name := fs.Arg(0)
	channels, err := source.ParseReading(strings.Join(fs.Args()[1:], ";"), "", "")
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	header := "X-Radmon-Secret"
	for _, s := range cfg.Sources {
		if s.Name == name && s.SecretHeader != "" {
			header = s.SecretHeader
		}
	}

	body, err := json.Marshal(source.Payload{Channels: channels})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d/api/ingest/%s", cfg.Daemon.ListenAddress, cfg.Daemon.ListenPort, name)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *secret != "" {
		req.Header.Set(header, *secret)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon is not reachable: %w", err)
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	fmt.Println("Accepted")
	return nil
}
