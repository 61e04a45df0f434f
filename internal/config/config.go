// Package config provides configuration management for the trigger monitor.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"memtrigger/internal/channel"
	"memtrigger/internal/macro"
)

// Config represents the application configuration
type Config struct {
	// General contains general application settings
	General GeneralConfig `json:"general" yaml:"general"`

	// Bindings contains every trigger binding
	Bindings []BindingConfig `json:"bindings" yaml:"bindings"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// ProcessName is the executable to attach to (e.g. "game.exe")
	ProcessName string `json:"processName" yaml:"processName"`

	// SharedMemoryName is the name of the input override region
	SharedMemoryName string `json:"sharedMemoryName" yaml:"sharedMemoryName"`

	// SharedMemoryDir backs the region on systems without named mappings
	SharedMemoryDir string `json:"sharedMemoryDir,omitempty" yaml:"sharedMemoryDir,omitempty"`

	// APIEnabled enables the local HTTP API
	APIEnabled bool `json:"apiEnabled" yaml:"apiEnabled"`

	// APIPort is the port for the API server (default: 18090)
	APIPort int `json:"apiPort" yaml:"apiPort"`

	// APIToken is an optional authentication token for API requests
	APIToken string `json:"apiToken,omitempty" yaml:"apiToken,omitempty"`

	// HistoryPath is the reaction journal database. Empty disables the journal.
	HistoryPath string `json:"historyPath,omitempty" yaml:"historyPath,omitempty"`

	// ToggleHotkey starts or stops all monitors (e.g. "Ctrl+Alt+T")
	ToggleHotkey string `json:"toggleHotkey,omitempty" yaml:"toggleHotkey,omitempty"`

	// PanicHotkey releases every input and stops all monitors
	PanicHotkey string `json:"panicHotkey,omitempty" yaml:"panicHotkey,omitempty"`

	// WatchConfig reloads bindings when the file changes on disk
	WatchConfig bool `json:"watchConfig" yaml:"watchConfig"`

	// AttachRetryMs is the wait between attempts to find the process
	AttachRetryMs int `json:"attachRetryMs" yaml:"attachRetryMs"`
}

// BindingConfig is the persisted form of a trigger binding. Numeric fields
// that may be written in hex are kept as strings and validated by
// ParseBinding.
type BindingConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	ModuleName string `json:"moduleName" yaml:"moduleName"`
	// BaseOffset is hex with or without 0x; prefix # for decimal.
	BaseOffset string `json:"baseOffset" yaml:"baseOffset"`
	// Offsets is a comma-separated list in the same notation.
	Offsets string `json:"offsets" yaml:"offsets"`

	TriggerValue int32 `json:"triggerValue" yaml:"triggerValue"`

	// PollIntervalMs must be positive when present; absent means 10 ms.
	PollIntervalMs  *int `json:"pollIntervalMs,omitempty" yaml:"pollIntervalMs,omitempty"`
	BlockDurationMs int  `json:"blockDurationMs" yaml:"blockDurationMs"`
	ReactionDelayMs int  `json:"reactionDelayMs" yaml:"reactionDelayMs"`

	KeysToBlock    []string `json:"keysToBlock" yaml:"keysToBlock"`
	ButtonsToBlock []string `json:"buttonsToBlock,omitempty" yaml:"buttonsToBlock,omitempty"`

	MacroEnabled  bool         `json:"macroEnabled" yaml:"macroEnabled"`
	MacroSequence []macro.Step `json:"macroSequence,omitempty" yaml:"macroSequence,omitempty"`
	// MacroFile is loaded when MacroSequence is empty. Relative paths are
	// resolved against the configuration directory.
	MacroFile string `json:"macroFile,omitempty" yaml:"macroFile,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultBinding returns a binding with the stock timings.
func DefaultBinding(id string) BindingConfig {
	poll := 10
	return BindingConfig{
		ID:              id,
		ModuleName:      "game.exe",
		BaseOffset:      "0",
		PollIntervalMs:  &poll,
		BlockDurationMs: 260,
		ReactionDelayMs: 280,
		KeysToBlock:     []string{},
		Enabled:         true,
	}
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			ProcessName:      "game.exe",
			SharedMemoryName: channel.DefaultName,
			APIEnabled:       true,
			APIPort:          18090,
			ToggleHotkey:     "Ctrl+Alt+T",
			PanicHotkey:      "Ctrl+Alt+Shift+Esc",
			WatchConfig:      true,
			AttachRetryMs:    1000,
		},
		Bindings: []BindingConfig{},
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()

	// lastData is the file content last read or written, used to ignore
	// watch events caused by our own saves.
	lastData []byte
}

// NewManager creates a configuration manager for path. An empty path
// selects the per-user default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "memtrigger")
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(dir, "memtrigger")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// Dir returns the directory holding the configuration file
func (m *Manager) Dir() string {
	return filepath.Dir(m.configPath)
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.configPath))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	changed, err := m.load()
	if err != nil {
		return err
	}
	if changed {
		m.notify()
	}
	return nil
}

func (m *Manager) load() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		// No config file, use defaults
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if m.lastData != nil && bytes.Equal(data, m.lastData) {
		return false, nil
	}

	cfg := DefaultConfig()
	if m.isYAML() {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", m.configPath, err)
	}

	m.config = cfg
	m.lastData = data
	return true, nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if m.isYAML() {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return err
	}
	m.lastData = data
	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set updates the configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	m.notify()
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// GetBinding returns a copy of a binding by ID
func (m *Manager) GetBinding(id string) (BindingConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.config.Bindings {
		if b.ID == id {
			return b, true
		}
	}
	return BindingConfig{}, false
}

// SetBinding updates or adds a binding
func (m *Manager) SetBinding(b BindingConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.config.Bindings {
		if m.config.Bindings[i].ID == b.ID {
			m.config.Bindings[i] = b
			return
		}
	}
	// Not found, add new
	m.config.Bindings = append(m.config.Bindings, b)
}

// DeleteBinding removes a binding by ID and reports whether it existed
func (m *Manager) DeleteBinding(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.config.Bindings {
		if m.config.Bindings[i].ID == id {
			m.config.Bindings = append(m.config.Bindings[:i], m.config.Bindings[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onChanged
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}
