package config

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Manager holds the current configuration snapshot. Readers get a consistent
// *Config via Get; Load and the file watcher swap the snapshot atomically.
type Manager struct {
	current   atomic.Pointer[Config]
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

type Config struct {
	Router   RouterConfig   `yaml:"router"`
	LLM      LLMConfig      `yaml:"llm"`
	Session  SessionConfig  `yaml:"session"`
	Delivery DeliveryConfig `yaml:"delivery"`
}

type RouterConfig struct {
	// MaxHistory bounds the per-session routing history FIFO.
	MaxHistory int `yaml:"max_history"`

	// HeuristicThreshold is the minimum heuristic confidence that skips
	// the LLM classification pass.
	HeuristicThreshold float64 `yaml:"heuristic_threshold"`

	// ExecutionDelay is the default delay before a scheduled execution fires.
	ExecutionDelay time.Duration `yaml:"execution_delay"`

	// CacheTTL bounds how long classification results stay cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type LLMConfig struct {
	DefaultProvider string        `yaml:"default_provider"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`

	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Google    ProviderConfig `yaml:"google"`
}

// ProviderConfig is the per-provider section. APIKey supports ${ENV_VAR}
// expansion so keys never live in the file itself.
type ProviderConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type SessionConfig struct {
	// Path is the SQLite database file for session state.
	Path string `yaml:"path"`
}

type DeliveryConfig struct {
	DefaultPlatform string `yaml:"default_platform"`
}

func NewManager(path string) *Manager {
	m := &Manager{
		path:      path,
		stopWatch: make(chan struct{}),
	}
	m.current.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Router: RouterConfig{
			MaxHistory:         20,
			HeuristicThreshold: 0.8,
			ExecutionDelay:     5 * time.Second,
			CacheTTL:           10 * time.Minute,
		},
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			Timeout:         2 * time.Minute,
			MaxRetries:      3,
			Anthropic: ProviderConfig{
				APIKey:      "${ANTHROPIC_API_KEY}",
				Model:       "claude-sonnet-4-5-20250901",
				MaxTokens:   4096,
				Temperature: 0.7,
			},
			OpenAI: ProviderConfig{
				APIKey:      "${OPENAI_API_KEY}",
				Model:       "gpt-5.2",
				MaxTokens:   4096,
				Temperature: 0.7,
			},
			Google: ProviderConfig{
				APIKey:      "${GEMINI_API_KEY}",
				Model:       "gemini-2.5-flash",
				MaxTokens:   4096,
				Temperature: 0.7,
			},
		},
		Session: SessionConfig{
			Path: "duyetbot.db",
		},
		Delivery: DeliveryConfig{
			DefaultPlatform: "console",
		},
	}
}

// Get returns the current configuration snapshot. The returned value must be
// treated as read-only.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Load reads the config file over the defaults and swaps the snapshot.
// A missing file is not an error; defaults apply.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadYAMLFile(m.path, cfg); err != nil {
		return fmt.Errorf("config %s: %w", m.path, err)
	}

	expandSecrets(cfg)
	applyBounds(cfg)

	m.current.Store(cfg)
	m.notifyWatchers(cfg)

	return nil
}

func (m *Manager) loadYAMLFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func expandSecrets(cfg *Config) {
	cfg.LLM.Anthropic.APIKey = os.ExpandEnv(cfg.LLM.Anthropic.APIKey)
	cfg.LLM.OpenAI.APIKey = os.ExpandEnv(cfg.LLM.OpenAI.APIKey)
	cfg.LLM.Google.APIKey = os.ExpandEnv(cfg.LLM.Google.APIKey)
}

func applyBounds(cfg *Config) {
	if cfg.Router.MaxHistory <= 0 {
		cfg.Router.MaxHistory = 20
	}
	if cfg.Router.HeuristicThreshold < 0 || cfg.Router.HeuristicThreshold > 1 {
		cfg.Router.HeuristicThreshold = 0.8
	}
	if cfg.Router.CacheTTL <= 0 {
		cfg.Router.CacheTTL = 10 * time.Minute
	}
	if cfg.LLM.MaxRetries < 0 {
		cfg.LLM.MaxRetries = 0
	}
}

// OnChange registers a callback invoked after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}
