// cmd/radmond/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/daemon"
	"github.com/colebrumley/radmon/internal/mcp"
	"github.com/jessevdk/go-flags"
)

const defaultConfigPath = "/etc/radmon/config.yaml"

type options struct {
	Config        string `long:"config" short:"c" env:"RADMON_CONFIG" default:"/etc/radmon/config.yaml" description:"path to the config file"`
	LogFile       string `long:"log-file" description:"write logs to this file instead of stdout"`
	Debug         bool   `long:"debug" description:"log at debug level"`
	JustGetStatus bool   `long:"just-get-status" description:"print one reading from each source and exit"`
	StatusTimeout int    `long:"status-timeout" default:"90" description:"seconds to wait for readings with --just-get-status"`
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "mcp-server" {
		runMCPServer()
		return
	}

	opts := getCLIArgs()
	d := daemon.New(opts.Config, daemon.Options{LogFile: opts.LogFile, Debug: opts.Debug})

	if opts.JustGetStatus {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.StatusTimeout)*time.Second)
		defer cancel()
		if err := d.StatusOnce(ctx, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "status error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}

func getCLIArgs() options {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return opts
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

// runMCPServer serves the history tools over stdio. The database is taken
// from RADMON_HISTORY_DB, then from the config file.
func runMCPServer() {
	dbPath := os.Getenv("RADMON_HISTORY_DB")
	if dbPath == "" {
		configPath := os.Getenv("RADMON_CONFIG")
		if configPath == "" {
			configPath = defaultConfigPath
		}
		dbPath = config.DefaultHistoryPath
		if cfg, err := config.Load(configPath); err == nil {
			dbPath = cfg.History.Path
		}
	}

	server, err := mcp.NewServer(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating MCP server: %v\n", err)
		os.Exit(1)
	}
	defer server.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
