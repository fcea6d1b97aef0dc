package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Reloadable fields are the presentation-only knobs: logging level,
// format is fixed at startup, verbose. Everything that shapes the
// detector itself (memory size, delay, paths, thresholds) requires a
// restart; reload attempts that change them are reported on Errors and
// otherwise ignored.

// Loader handles configuration loading, watching, and hot-reloading.
type Loader struct {
	path     string
	config   *Config
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc
	errChan  chan error
}

// NewLoader creates a new configuration loader for the given file.
func NewLoader(path string) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:    path,
		errChan: make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load reads, parses, and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	l.config = cfg
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback invoked after a successful hot reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Errors returns a channel of reload errors.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Watch starts watching the configuration file for changes. When the
// file changes, the reloadable subset is applied and registered
// callbacks are invoked.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher

	// Watch the directory: editors replace files rather than write
	// them in place.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go l.watchLoop()

	return nil
}

// watchLoop handles file system events with debouncing.
func (l *Loader) watchLoop() {
	var debounceTimer *time.Timer
	debounceDelay := 100 * time.Millisecond

	for {
		select {
		case <-l.ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				l.reload()
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.reportError(fmt.Errorf("watch: %w", err))
		}
	}
}

// reload re-reads the file and applies the reloadable subset.
func (l *Loader) reload() {
	newCfg, err := loadConfigFromFile(l.path)
	if err != nil {
		l.reportError(fmt.Errorf("reload: %w", err))
		return
	}
	newCfg.ApplyEnvOverrides()
	if err := newCfg.Validate(); err != nil {
		l.reportError(fmt.Errorf("reload validation: %w", err))
		return
	}

	l.mu.Lock()
	old := l.config
	if restartOnly := restartOnlyDiff(old, newCfg); restartOnly != "" {
		l.mu.Unlock()
		l.reportError(fmt.Errorf("reload: %s changed, restart required (change ignored)", restartOnly))
		return
	}
	merged := *old
	merged.Logging.Level = newCfg.Logging.Level
	merged.Logging.Verbose = newCfg.Logging.Verbose
	l.config = &merged
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(&merged)
	}
}

// restartOnlyDiff returns the name of the first non-reloadable field
// that differs between configs, or "".
func restartOnlyDiff(old, next *Config) string {
	switch {
	case old.Detector != next.Detector:
		return "detector"
	case old.Sizer != next.Sizer:
		return "sizer"
	case old.Location != next.Location:
		return "location"
	case old.Journal != next.Journal:
		return "journal"
	case old.Archive != next.Archive:
		return "archive"
	case old.Notify != next.Notify:
		return "notify"
	case old.Logging.Format != next.Logging.Format,
		old.Logging.Output != next.Logging.Output,
		old.Logging.FilePath != next.Logging.FilePath:
		return "logging output"
	}
	return ""
}

func (l *Loader) reportError(err error) {
	select {
	case l.errChan <- err:
	default:
	}
}

// Close stops watching and releases resources.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// loadConfigFromFile reads and parses a config file based on its
// extension. TOML is the native format; YAML and JSON are accepted for
// operators who generate configs.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	return cfg, nil
}
