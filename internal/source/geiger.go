// internal/source/geiger.go
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
)

// Geiger reads counts per minute from a serial Geiger counter, one line per sample
type Geiger struct {
	name      string
	device    string
	baud      int
	usvPerCPM float64
	logger    *slog.Logger
	open      func() (io.ReadCloser, error)
	now       func() time.Time

	mu   sync.Mutex
	port io.ReadCloser
}

// NewGeiger creates a new serial Geiger counter source
func NewGeiger(cfg config.Source, logger *slog.Logger) (*Geiger, error) {
	g := &Geiger{
		name:      cfg.Name,
		device:    cfg.Device,
		baud:      cfg.Baud,
		usvPerCPM: cfg.USVPerCPM,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	g.open = func() (io.ReadCloser, error) {
		return openSerial(g.device, g.baud, g.logger)
	}
	return g, nil
}

func (g *Geiger) Name() string {
	return g.name
}

// Datum converts a count into the two radiation channels
func (g *Geiger) Datum(cpm int, ts time.Time) *event.Datum {
	return event.NewDatum(g.name, map[string]event.Value{
		config.CountPerMinuteChannel: {Value: float64(cpm), Unit: "cpm"},
		config.MicroSievertChannel:   {Value: float64(cpm) * g.usvPerCPM, Unit: "usv"},
	}, ts)
}

func (g *Geiger) Start(ctx context.Context, out chan<- *event.Datum) error {
	port, err := g.open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", g.device, err)
	}
	g.mu.Lock()
	g.port = port
	g.mu.Unlock()

	// Closing the port unblocks the pending read
	stop := context.AfterFunc(ctx, func() { g.Stop() })
	defer stop()

	g.logger.Info("reading geiger counter", "device", g.device, "baud", g.baud)

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := scanner.Text()
		cpm, err := ParseCPM(line)
		if err != nil {
			g.logger.Warn("skipping unreadable line", "line", line, "error", err)
			continue
		}
		g.logger.Debug("geiger sample", "cpm", cpm)
		if err := emit(ctx, out, g.Datum(cpm, g.now())); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("reading %s: %w", g.device, err)
	}
	return fmt.Errorf("reading %s: %w", g.device, io.ErrUnexpectedEOF)
}

func (g *Geiger) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.port == nil {
		return nil
	}
	err := g.port.Close()
	g.port = nil
	return err
}

// Sample reads until the first valid count and returns it
func (g *Geiger) Sample(ctx context.Context) (*event.Datum, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan *event.Datum, 1)
	errc := make(chan error, 1)
	go func() { errc <- g.Start(ctx, out) }()

	select {
	case d := <-out:
		cancel()
		<-errc
		return d, nil
	case err := <-errc:
		select {
		case d := <-out:
			return d, nil
		default:
			return nil, err
		}
	}
}
