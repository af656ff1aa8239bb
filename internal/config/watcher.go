package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DynamicConfig represents runtime-changeable configuration. Operators can
// tighten the size limits without a redeploy when a keyspace starts pushing
// against its ceiling.
type DynamicConfig struct {
	Limits   DynamicLimits  `json:"limits"`
	Metadata ConfigMetadata `json:"metadata"`
}

// DynamicLimits holds the runtime-changeable size limits. Zero values mean
// "keep the static configuration".
type DynamicLimits struct {
	ItemBudgetBytes int `json:"itemBudgetBytes"`
	FieldSpillBytes int `json:"fieldSpillBytes"`
	MaxEventEntries int `json:"maxEventEntries"`
	MaxFileEntries  int `json:"maxFileEntries"`
	MaxStringBytes  int `json:"maxStringBytes"`
}

// ConfigMetadata holds metadata about the configuration
type ConfigMetadata struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
}

// ConfigWatcher watches the dynamic configuration file for changes
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *DynamicConfig
	mu       sync.RWMutex
	onChange []func(*DynamicConfig)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewConfigWatcher creates a new configuration watcher
func NewConfigWatcher(configPath string, logger *zap.Logger) (*ConfigWatcher, error) {
	config, err := loadDynamicFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	// Also watch the directory for atomic saves (rename operations)
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("Failed to watch config directory", zap.Error(err))
	}

	return &ConfigWatcher{
		path:     configPath,
		watcher:  watcher,
		current:  config,
		onChange: make([]func(*DynamicConfig), 0),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for configuration changes
func (w *ConfigWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching for configuration changes
func (w *ConfigWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.logger.Info("Configuration watcher stopped")
}

// Current returns the active dynamic configuration.
func (w *ConfigWatcher) Current() *DynamicConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a handler called after every successful reload.
func (w *ConfigWatcher) OnChange(handler func(*DynamicConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

func (w *ConfigWatcher) watchLoop() {
	// Debounce to avoid multiple reloads from one editor save
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					w.handleConfigChange()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *ConfigWatcher) handleConfigChange() {
	w.logger.Info("Configuration file changed, reloading", zap.String("path", w.path))

	newConfig, err := loadDynamicFromFile(w.path)
	if err != nil {
		w.logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}

	if err := validateDynamic(newConfig); err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = newConfig
	handlers := w.onChange
	w.mu.Unlock()

	for _, handler := range handlers {
		go handler(newConfig)
	}

	w.logger.Info("Configuration reloaded successfully",
		zap.String("version", newConfig.Metadata.Version),
	)
}

func validateDynamic(config *DynamicConfig) error {
	l := config.Limits
	if l.ItemBudgetBytes < 0 || l.FieldSpillBytes < 0 {
		return fmt.Errorf("size limits must not be negative")
	}
	if l.MaxEventEntries < 0 || l.MaxFileEntries < 0 || l.MaxStringBytes < 0 {
		return fmt.Errorf("entry caps must not be negative")
	}
	return nil
}

func loadDynamicFromFile(path string) (*DynamicConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config DynamicConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}
