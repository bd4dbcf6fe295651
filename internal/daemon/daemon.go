// Package daemon runs the sync engine on a schedule.
//
// The daemon:
// 1. Runs a full sync immediately on start
// 2. Re-runs on a fixed interval
// 3. Watches the config file and invalidates discovery caches on change,
//    so renamed attributes are picked up without a restart
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Runner is one scheduled sync execution. The daemon does not care what a
// run does, only that it can be invoked repeatedly.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// CacheInvalidator drops discovery caches after a config change.
type CacheInvalidator interface {
	InvalidateCache() error
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval between sync runs.
	Interval time.Duration

	// DebounceInterval is how long to wait after a config file event
	// before reacting. Editors fire several events per save.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         time.Hour,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync runs and watches the config file.
type Daemon struct {
	runner      Runner
	invalidator CacheInvalidator
	configFile  string
	config      *Config

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	lastChange  time.Time
	pendingEdit bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon with default configuration. configFile may be
// empty to disable config watching; invalidator may be nil.
func New(runner Runner, invalidator CacheInvalidator, configFile string) (*Daemon, error) {
	return NewWithConfig(runner, invalidator, configFile, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(runner Runner, invalidator CacheInvalidator, configFile string, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	var watcher *fsnotify.Watcher
	if configFile != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	return &Daemon{
		runner:      runner,
		invalidator: invalidator,
		configFile:  configFile,
		config:      config,
		watcher:     watcher,
	}, nil
}

// Start begins scheduled operation. An initial run happens immediately;
// subsequent runs happen every Interval. Blocks until ctx is cancelled.
//
// A failed run is logged and the schedule continues: transient API
// problems should not take the daemon down.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	d.config.Logger.Printf("Starting daemon (interval %s)", d.config.Interval)

	if d.watcher != nil {
		// Watch the directory, not the file: editors replace files on
		// save, which drops a direct file watch.
		dir := filepath.Dir(d.configFile)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching config file %s", d.configFile)

		d.wg.Add(1)
		go d.watchConfigEvents(ctx)
	}

	d.runOnce(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			return d.stop()
		case <-ticker.C:
			d.consumePendingEdit()
			d.runOnce(ctx)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	start := time.Now()
	if err := d.runner.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.config.Logger.Printf("ERROR: sync run failed: %v", err)
		return
	}
	d.config.Logger.Printf("Sync run completed in %s", time.Since(start).Round(time.Millisecond))
}

// watchConfigEvents reacts to config file changes with debouncing.
func (d *Daemon) watchConfigEvents(ctx context.Context) {
	defer d.wg.Done()

	target := filepath.Clean(d.configFile)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			d.noteConfigChange()
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) noteConfigChange() {
	d.mu.Lock()
	now := time.Now()
	debounced := now.Sub(d.lastChange) < d.config.DebounceInterval
	d.lastChange = now
	d.pendingEdit = true
	d.mu.Unlock()

	if debounced {
		return
	}
	d.config.Logger.Println("Config file changed; discovery caches will be invalidated before the next run")
}

// consumePendingEdit invalidates caches if the config changed since the
// last run. Invalidation happens at run boundaries, never mid-run.
func (d *Daemon) consumePendingEdit() {
	d.mu.Lock()
	pending := d.pendingEdit
	d.pendingEdit = false
	d.mu.Unlock()

	if !pending || d.invalidator == nil {
		return
	}
	if err := d.invalidator.InvalidateCache(); err != nil {
		d.config.Logger.Printf("ERROR: cache invalidation failed: %v", err)
	}
}

func (d *Daemon) stop() error {
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Warning: failed to close watcher: %v", err)
		}
	}
	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}
