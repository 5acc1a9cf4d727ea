package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration, loaded from YAML.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Discord    DiscordConfig    `yaml:"discord"`
	WebChat    WebChatConfig    `yaml:"webchat"`
	Console    ConsoleConfig    `yaml:"console"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Memory     MemoryConfig     `yaml:"memory"`
	Characters CharactersConfig `yaml:"characters"`
	Prefs      PrefsConfig      `yaml:"preferences"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
}

type WebChatConfig struct {
	Port int `yaml:"port"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ProviderConfig describes one generative provider endpoint. All supported
// providers speak the OpenAI chat/completions wire format.
type ProviderConfig struct {
	Name      string  `yaml:"name"`
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	Model     string  `yaml:"model"`
	Embedding string  `yaml:"embedding_model"`
	MaxTokens int     `yaml:"max_tokens"`
	Temp      float64 `yaml:"temperature"`
}

type ProvidersConfig struct {
	Default string           `yaml:"default"`
	Engines []ProviderConfig `yaml:"engines"`
}

type MemoryConfig struct {
	VectorPath         string `yaml:"vector_path"`
	MaxContextMessages int    `yaml:"max_context_messages"`
	MaxSimilarMessages int    `yaml:"max_similar_messages"`
	UseContextSearch   *bool  `yaml:"use_context_search"`
}

type CharactersConfig struct {
	Dir       string `yaml:"dir"`
	DefaultID string `yaml:"default_id"`
}

type PrefsConfig struct {
	Backend   string `yaml:"backend"` // "file" or "redis"
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// Load reads and parses the config file, expanding ${ENV_VAR} references
// so tokens and API keys can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 18900
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Memory.VectorPath == "" {
		c.Memory.VectorPath = "./data/vectordb"
	}
	if c.Memory.MaxContextMessages == 0 {
		c.Memory.MaxContextMessages = 10
	}
	if c.Memory.MaxSimilarMessages == 0 {
		c.Memory.MaxSimilarMessages = 3
	}
	if c.Memory.UseContextSearch == nil {
		t := true
		c.Memory.UseContextSearch = &t
	}
	if c.Characters.Dir == "" {
		c.Characters.Dir = "./data/characters"
	}
	if c.Characters.DefaultID == "" {
		c.Characters.DefaultID = "default"
	}
	if c.Prefs.Backend == "" {
		c.Prefs.Backend = "file"
	}
	if c.Prefs.Path == "" {
		c.Prefs.Path = "./data/preferences"
	}
}

// Validate checks the configuration for values the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Prefs.Backend != "file" && c.Prefs.Backend != "redis" {
		return fmt.Errorf("unknown preferences backend: %q", c.Prefs.Backend)
	}
	if c.Prefs.Backend == "redis" && c.Prefs.RedisAddr == "" {
		return fmt.Errorf("preferences backend is redis but redis_addr is empty")
	}
	names := make(map[string]bool)
	for _, e := range c.Providers.Engines {
		if e.Name == "" {
			return fmt.Errorf("provider engine with empty name")
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate provider engine: %q", e.Name)
		}
		names[e.Name] = true
		if e.BaseURL == "" {
			return fmt.Errorf("provider engine %q has no base_url", e.Name)
		}
	}
	if c.Providers.Default != "" && !names[c.Providers.Default] {
		return fmt.Errorf("default provider %q not configured", c.Providers.Default)
	}
	return nil
}

// UseContextSearch reports whether semantic retrieval is enabled.
func (c *Config) UseContextSearch() bool {
	return c.Memory.UseContextSearch == nil || *c.Memory.UseContextSearch
}
