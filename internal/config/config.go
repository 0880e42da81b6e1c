// Package config loads quorum configuration from the state directory
// (~/.quorum by default). Config is YAML and every field has a sane default
// so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for quorum.
type Config struct {
	Providers ProvidersConfig `yaml:"providers"`
	Council   CouncilConfig   `yaml:"council"`
	Search    SearchConfig    `yaml:"search"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`

	// StateDir is where quorum keeps its library, history db and logs.
	// Not serialized; derived at load time.
	StateDir string `yaml:"-"`
}

// ProvidersConfig holds per-provider settings and the fallback order.
type ProvidersConfig struct {
	// Priority is the fallback order tried when the requested provider has
	// no credential or a call fails over.
	Priority []string `yaml:"priority"`

	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Gemini    ProviderConfig `yaml:"gemini"`
	Gateway   ProviderConfig `yaml:"gateway"`
}

// ProviderConfig configures a single upstream provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// CouncilConfig controls dispatch behavior.
type CouncilConfig struct {
	// MaxConcurrent caps in-flight provider calls during a consultation.
	MaxConcurrent int `yaml:"max_concurrent"`
	// CallTimeoutSeconds is the per-member provider call timeout.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	// MaxTokens is the default completion budget per member.
	MaxTokens int `yaml:"max_tokens"`
	// TieBreak selects the vote tie-break policy: "order" or "alpha".
	TieBreak string `yaml:"tie_break"`
	// DefaultMode is used when a consultation does not name a mode.
	DefaultMode string `yaml:"default_mode"`
}

// SearchConfig controls web search augmentation.
type SearchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"` // "duckduckgo" or "browser"
	MaxResults int    `yaml:"max_results"`
	// BrowserURL is the DevTools control URL for the browser backend.
	BrowserURL     string `yaml:"browser_url,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// HistoryConfig controls the consultation history store.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path overrides the default db location inside the state dir.
	Path string `yaml:"path,omitempty"`
	// RecallEnabled turns on embedding-based recall of past consultations.
	RecallEnabled bool `yaml:"recall_enabled"`
	// RecallLimit is how many past consultations auto-recall injects.
	RecallLimit int `yaml:"recall_limit"`
	// EmbeddingModel is the Gemini embedding model used for recall.
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
}

// LoggingConfig mirrors internal/logging's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories,omitempty"`
	Level      string          `yaml:"level,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Priority: []string{"anthropic", "openai", "gemini", "gateway"},
			Anthropic: ProviderConfig{Model: "claude-sonnet-4-20250514"},
			OpenAI:    ProviderConfig{Model: "gpt-4o"},
			Gemini:    ProviderConfig{Model: "gemini-2.0-flash"},
		},
		Council: CouncilConfig{
			MaxConcurrent:      8,
			CallTimeoutSeconds: 120,
			MaxTokens:          4096,
			TieBreak:           "order",
			DefaultMode:        "individual",
		},
		Search: SearchConfig{
			Enabled:        true,
			Backend:        "duckduckgo",
			MaxResults:     5,
			TimeoutSeconds: 15,
		},
		History: HistoryConfig{
			Enabled:        true,
			RecallEnabled:  false,
			RecallLimit:    3,
			EmbeddingModel: "gemini-embedding-001",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// StateDir returns the quorum state directory, honoring QUORUM_HOME.
func StateDir() (string, error) {
	if dir := os.Getenv("QUORUM_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".quorum"), nil
}

// Path returns the config file path inside the state dir.
func Path() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path, applying defaults for anything unset.
// A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.StateDir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	fillDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault loads the config from the standard location.
func LoadDefault() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// fillDefaults restores zero-valued fields that have non-zero defaults.
// yaml.Unmarshal into a prefilled struct keeps scalars the file omits, but
// wipes them when the file sets empty sections, so belt and braces here.
func fillDefaults(cfg *Config) {
	def := Default()
	if len(cfg.Providers.Priority) == 0 {
		cfg.Providers.Priority = def.Providers.Priority
	}
	if cfg.Council.MaxConcurrent <= 0 {
		cfg.Council.MaxConcurrent = def.Council.MaxConcurrent
	}
	if cfg.Council.CallTimeoutSeconds <= 0 {
		cfg.Council.CallTimeoutSeconds = def.Council.CallTimeoutSeconds
	}
	if cfg.Council.MaxTokens <= 0 {
		cfg.Council.MaxTokens = def.Council.MaxTokens
	}
	if cfg.Council.TieBreak == "" {
		cfg.Council.TieBreak = def.Council.TieBreak
	}
	if cfg.Council.DefaultMode == "" {
		cfg.Council.DefaultMode = def.Council.DefaultMode
	}
	if cfg.Search.Backend == "" {
		cfg.Search.Backend = def.Search.Backend
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = def.Search.MaxResults
	}
	if cfg.Search.TimeoutSeconds <= 0 {
		cfg.Search.TimeoutSeconds = def.Search.TimeoutSeconds
	}
	if cfg.History.RecallLimit <= 0 {
		cfg.History.RecallLimit = def.History.RecallLimit
	}
	if cfg.History.EmbeddingModel == "" {
		cfg.History.EmbeddingModel = def.History.EmbeddingModel
	}
}

// applyEnv overlays environment variables on top of file config. Env wins
// over file for credentials so CI and one-off runs need no config edits.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Providers.Gemini.APIKey = v
	}
	if v := os.Getenv("QUORUM_GATEWAY_URL"); v != "" {
		cfg.Providers.Gateway.BaseURL = v
	}
	if v := os.Getenv("QUORUM_API_KEY"); v != "" {
		cfg.Providers.Gateway.APIKey = v
	}
	if os.Getenv("QUORUM_DEBUG") == "1" {
		cfg.Logging.DebugMode = true
	}
}

// HistoryPath resolves the history database location.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.StateDir, "history.db")
}

// LibraryDir resolves the persona library directory.
func (c *Config) LibraryDir() string {
	return filepath.Join(c.StateDir, "personas")
}

// Save writes the config back to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
