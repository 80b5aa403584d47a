// internal/daemon/reload.go
package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"time"

	"github.com/colebrumley/radmon/internal/security"
	"github.com/fsnotify/fsnotify"
)

var errDaemonClosed = errors.New("daemon is shut down")

// startHotReload watches the config file and rebuilds the trigger registry
// when it changes. The directory is watched so editors that replace the
// file by rename are still seen.
func (d *Daemon) startHotReload(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Error("could not create config watcher", "error", err)
		return
	}
	defer watcher.Close()

	target := filepath.Clean(d.configPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		d.logger.Error("could not watch config directory", "error", err, "path", target)
		return
	}

	d.logger.Info("hot-reload watcher started", "path", target)

	// Debounce: wait 1 second after last event before reloading
	var debounceTimer *time.Timer
	debounceCh := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(1*time.Second, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})

		case <-debounceCh:
			d.logger.Info("reloading config (hot-reload)")
			d.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("config watcher error", "error", err)

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// reload builds and starts a registry from the current config file, swaps
// it in and retires the old one. Sources are not rebuilt.
func (d *Daemon) reload() error {
	if err := security.ValidateConfigFile(d.configPath); err != nil {
		d.logger.Error("CRITICAL: config file has unsafe permissions during reload", "error", err)
		return err
	}

	cfg, err := loadConfig(d.configPath)
	if err != nil {
		d.logger.Error("failed to reload config", "error", err)
		return err
	}

	reg, err := BuildRegistry(cfg, d.deps(), d.logger)
	if err != nil {
		d.logger.Error("failed to rebuild triggers", "error", err)
		return err
	}
	if err := reg.Start(); err != nil {
		d.logger.Error("failed to start triggers", "error", err)
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		reg.Stop()
		reg.Join(cfg.Daemon.JoinTimeout())
		d.logger.Info("daemon stopped, discarding reloaded config")
		return errDaemonClosed
	}
	old, oldCfg := d.registry, d.config
	if !reflect.DeepEqual(oldCfg.Sources, cfg.Sources) {
		d.logger.Warn("source changes take effect after restart")
		cfg.Sources = oldCfg.Sources
	}
	d.registry, d.config = reg, cfg
	d.mu.Unlock()

	if err := old.Stop(); err != nil {
		d.logger.Warn("stopping previous triggers", "error", err)
	}
	if err := old.Join(oldCfg.Daemon.JoinTimeout()); err != nil {
		d.logger.Warn("previous triggers did not shut down", "error", err)
	}

	d.logger.Info("config reloaded", "triggers", len(cfg.Triggers))
	return nil
}
