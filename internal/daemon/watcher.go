package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/wikimirror/internal/config"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
)

// configWatcher reloads the daemon configuration when the file changes.
// The containing directory is watched rather than the file itself; editors
// that write via rename would otherwise detach the watch.
type configWatcher struct {
	configPath   string
	daemon       *Daemon
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration
}

func newConfigWatcher(configPath string, d *Daemon) (*configWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &configWatcher{
		configPath:   absPath,
		daemon:       d,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins monitoring the configuration file.
func (cw *configWatcher) Start(ctx context.Context) error {
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", configDir, err)
	}

	slog.Info("watching configuration file", logfields.Path(cw.configPath))
	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop ends monitoring. Safe to call once.
func (cw *configWatcher) Stop() {
	close(cw.stopChan)
	if err := cw.watcher.Close(); err != nil {
		slog.Warn("could not close file watcher", logfields.Error(err))
	}
}

func (cw *configWatcher) watchLoop(ctx context.Context) {
	configFile := filepath.Base(cw.configPath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Rename):
				slog.Debug("config file changed", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				cw.triggerReload()
			case event.Op.Has(fsnotify.Remove):
				slog.Warn("config file removed, keeping current configuration", logfields.Path(event.Name))
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", logfields.Error(err))
		}
	}
}

// reloadLoop debounces change bursts into a single reload.
func (cw *configWatcher) reloadLoop(ctx context.Context) {
	var reloadTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-cw.stopChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-cw.reloadChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(cw.debounceTime, func() {
				if err := cw.performReload(); err != nil {
					slog.Error("configuration reload failed, keeping current configuration", logfields.Error(err))
				}
			})
		}
	}
}

func (cw *configWatcher) triggerReload() {
	select {
	case cw.reloadChan <- struct{}{}:
	default: // reload already pending
	}
}

func (cw *configWatcher) performReload() error {
	slog.Info("reloading configuration", logfields.Path(cw.configPath))

	newCfg, err := config.Load(cw.configPath)
	if err != nil {
		return fmt.Errorf("load new configuration: %w", err)
	}
	if err := cw.daemon.applyConfig(newCfg); err != nil {
		return fmt.Errorf("apply new configuration: %w", err)
	}

	slog.Info("configuration reloaded")
	return nil
}
