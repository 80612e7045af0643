package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the live configuration and hot-reloads it when the file on
// disk changes. Invalid edits are rejected and the previous config stays in
// effect.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
}

func NewManager() (*Manager, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		log.Printf("Config manager: validation warning: %v", err)
	}

	return &Manager{config: config}, nil
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	configCopy := *m.config
	return &configCopy
}

// OnChange registers a callback invoked with the new config after every
// successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Manager) StartWatching(ctx context.Context) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(1)
	go m.watchLoop(ctx, configPath)

	log.Printf("Config manager: watching %s for changes", configPath)
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context, configPath string) {
	defer m.wg.Done()
	configFileName := filepath.Base(configPath)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				log.Printf("Config manager: change detected: %s, reloading", event.Name)
				m.reload()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Config watcher error: %v", err)

		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reload() {
	newConfig, err := Load()
	if err != nil {
		log.Printf("Config manager: failed to reload config: %v", err)
		return
	}

	if err := newConfig.Validate(); err != nil {
		log.Printf("Config manager: invalid config after reload, keeping previous: %v", err)
		return
	}

	m.mu.Lock()
	m.config = newConfig
	fn := m.onChange
	m.mu.Unlock()

	log.Printf("Config manager: configuration reloaded")
	if fn != nil {
		fn(newConfig)
	}
}
