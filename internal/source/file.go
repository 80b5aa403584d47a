// internal/source/file.go
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/fsnotify/fsnotify"
)

// File tails a file and emits one reading per appended line
type File struct {
	name    string
	path    string
	channel string
	unit    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	offset  int64
	partial string
}

// NewFile creates a new file tail source
func NewFile(cfg config.Source, logger *slog.Logger) (*File, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &File{
		name:    cfg.Name,
		path:    cfg.Path,
		channel: cfg.Channel,
		unit:    cfg.Unit,
		logger:  logger,
		watcher: watcher,
	}, nil
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Start(ctx context.Context, out chan<- *event.Datum) error {
	// Only lines written after start are read
	if info, err := os.Stat(f.path); err == nil {
		f.offset = info.Size()
	}

	if err := f.watcher.Add(f.path); err != nil {
		return fmt.Errorf("watching %s: %w", f.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Write == 0 {
				continue
			}
			if err := f.readNew(ctx, out); err != nil {
				return err
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (f *File) Stop() error {
	return f.watcher.Close()
}

func (f *File) readNew(ctx context.Context, out chan<- *event.Datum) error {
	fh, err := os.Open(f.path)
	if err != nil {
		f.logger.Warn("opening watched file", "error", err)
		return nil
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil
	}
	if info.Size() < f.offset {
		// Truncated or replaced: start over
		f.offset = 0
		f.partial = ""
	}
	if _, err := fh.Seek(f.offset, io.SeekStart); err != nil {
		return nil
	}

	reader := bufio.NewReader(fh)
	for {
		chunk, err := reader.ReadString('\n')
		f.offset += int64(len(chunk))
		if err != nil {
			// Keep an unterminated tail until the rest is written
			f.partial += chunk
			return nil
		}

		line := strings.TrimSpace(f.partial + chunk)
		f.partial = ""
		if line == "" {
			continue
		}
		channels, perr := ParseReading(line, f.channel, f.unit)
		if perr != nil {
			f.logger.Warn("skipping unreadable line", "line", line, "error", perr)
			continue
		}
		if err := emit(ctx, out, event.NewDatum(f.name, channels, time.Now().UTC())); err != nil {
			return err
		}
	}
}
