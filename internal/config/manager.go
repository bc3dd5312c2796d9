package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "farebot/pkg/logx"
)

// Load reads, strictly decodes and validates a config file (.json/.yaml/.yml).
// Unknown keys are errors: typos in tuning knobs must not silently fall back
// to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jsonBytes, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s (%s): %w", path, format, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Manager holds the current config snapshot and hot-reloads it when the file
// changes. Quota, cooldown and classifier thresholds are business parameters;
// operators tune them without restarting the bot.
//
// A snapshot is immutable once published: readers take Current() per
// operation and never see a half-applied config.
type Manager struct {
	path string
	log  logx.Logger

	cur atomic.Pointer[Config]

	mu   sync.Mutex
	subs []func(*Config)

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewManager(path string, log logx.Logger) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{path: path, log: log, stopCh: make(chan struct{})}
	m.cur.Store(cfg)
	return m, nil
}

// Current returns the live snapshot. Never nil after NewManager succeeds.
func (m *Manager) Current() *Config { return m.cur.Load() }

// Subscribe registers a callback invoked after every successful reload.
func (m *Manager) Subscribe(fn func(*Config)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Watch reloads the file on change until ctx is done. Reload failures keep
// the previous snapshot; a broken edit never takes the bot down.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace files, which drops a watch set
	// directly on the file.
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var pending <-chan time.Time
		base := filepath.Base(m.path)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Debounce: editors fire bursts of events per save.
				pending = time.After(200 * time.Millisecond)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.log.Warn("config watcher error", logx.Err(err))
			case <-pending:
				pending = nil
				m.reload()
			}
		}
	}()
	return nil
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.log.Warn("config reload rejected, keeping previous", logx.Err(err))
		return
	}
	m.cur.Store(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))

	m.mu.Lock()
	subs := append([]func(*Config){}, m.subs...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(cfg)
	}
}

func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
