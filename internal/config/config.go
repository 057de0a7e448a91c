package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/folio/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. FOLIO_DOCLING_URL.
const EnvPrefix = "FOLIO"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	setDefaults(v, DefaultConfig())

	// Environment variables with FOLIO_ prefix; nested keys use underscores.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.folio")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf key so environment overrides apply to nested values.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("docling.url", d.Docling.URL)
	v.SetDefault("docling.timeout", d.Docling.Timeout)
	v.SetDefault("docling.poll_interval", d.Docling.PollInterval)
	v.SetDefault("docling.page_break", d.Docling.PageBreak)
	v.SetDefault("docling.container.name", d.Docling.Container.Name)
	v.SetDefault("docling.container.image", d.Docling.Container.Image)
	v.SetDefault("docling.container.port", d.Docling.Container.Port)
	v.SetDefault("docling.container.cache_path", d.Docling.Container.CachePath)

	for name, desc := range d.Describers {
		prefix := "describers." + name + "."
		v.SetDefault(prefix+"type", desc.Type)
		v.SetDefault(prefix+"model", desc.Model)
		v.SetDefault(prefix+"api_key", desc.APIKey)
		v.SetDefault(prefix+"base_url", desc.BaseURL)
		v.SetDefault(prefix+"rate_limit", desc.RateLimit)
		v.SetDefault(prefix+"timeout", desc.Timeout)
		v.SetDefault(prefix+"enabled", desc.Enabled)
	}

	v.SetDefault("enrichment.describer", d.Enrichment.Describer)
	v.SetDefault("enrichment.max_tries", d.Enrichment.MaxTries)
	v.SetDefault("enrichment.retry_delay", d.Enrichment.RetryDelay)
	v.SetDefault("enrichment.max_concurrency", d.Enrichment.MaxConcurrency)
	v.SetDefault("enrichment.prompt", d.Enrichment.Prompt)
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetLogger sets the logger used for reload events.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		cm.logger = logger
	}
}

// ConfigFile returns the config file in use, or "" when running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
// An invalid edit is logged and the previous configuration stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Enrichment.MaxTries < 1 {
		return fmt.Errorf("enrichment.max_tries must be at least 1, got %d", c.Enrichment.MaxTries)
	}
	if c.Enrichment.RetryDelay < 0 {
		return fmt.Errorf("enrichment.retry_delay must not be negative")
	}
	if c.Docling.PollInterval <= 0 {
		return fmt.Errorf("docling.poll_interval must be positive")
	}
	for name, d := range c.Describers {
		switch d.Type {
		case providers.TypeOpenAI, providers.TypeOpenRouter, providers.TypeOllama, providers.TypeMock:
		default:
			return fmt.Errorf("describers.%s: unknown type %q", name, d.Type)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToDescriberConfigs converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToDescriberConfigs() map[string]providers.DescriberConfig {
	cfgs := make(map[string]providers.DescriberConfig, len(c.Describers))
	for name, d := range c.Describers {
		cfgs[name] = providers.DescriberConfig{
			Type:      d.Type,
			Model:     d.Model,
			APIKey:    ResolveEnvVars(d.APIKey),
			BaseURL:   d.BaseURL,
			RateLimit: d.RateLimit,
			Timeout:   d.Timeout,
			Enabled:   d.Enabled,
		}
	}
	return cfgs
}

// WriteDefault writes the default configuration to the specified path.
// Durations are written in their string form (e.g. "2s").
func WriteDefault(path string) error {
	data, err := DefaultConfig().Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Folio configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx OPENROUTER_API_KEY=xxx
# Any key can be overridden from the environment, e.g. FOLIO_DOCLING_URL

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

// Marshal renders the configuration as YAML in config file layout.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c.document())
}

func (c *Config) document() yaml.MapSlice {
	names := make([]string, 0, len(c.Describers))
	for name := range c.Describers {
		names = append(names, name)
	}
	sort.Strings(names)

	describers := yaml.MapSlice{}
	for _, name := range names {
		d := c.Describers[name]
		describers = append(describers, yaml.MapItem{Key: name, Value: yaml.MapSlice{
			{Key: "type", Value: d.Type},
			{Key: "model", Value: d.Model},
			{Key: "api_key", Value: d.APIKey},
			{Key: "base_url", Value: d.BaseURL},
			{Key: "rate_limit", Value: d.RateLimit},
			{Key: "timeout", Value: d.Timeout.String()},
			{Key: "enabled", Value: d.Enabled},
		}})
	}

	return yaml.MapSlice{
		{Key: "log_level", Value: c.LogLevel},
		{Key: "server", Value: yaml.MapSlice{
			{Key: "host", Value: c.Server.Host},
			{Key: "port", Value: c.Server.Port},
			{Key: "write_timeout", Value: c.Server.WriteTimeout.String()},
		}},
		{Key: "docling", Value: yaml.MapSlice{
			{Key: "url", Value: c.Docling.URL},
			{Key: "timeout", Value: c.Docling.Timeout.String()},
			{Key: "poll_interval", Value: c.Docling.PollInterval.String()},
			{Key: "page_break", Value: c.Docling.PageBreak},
			{Key: "container", Value: yaml.MapSlice{
				{Key: "name", Value: c.Docling.Container.Name},
				{Key: "image", Value: c.Docling.Container.Image},
				{Key: "port", Value: c.Docling.Container.Port},
				{Key: "cache_path", Value: c.Docling.Container.CachePath},
			}},
		}},
		{Key: "describers", Value: describers},
		{Key: "enrichment", Value: yaml.MapSlice{
			{Key: "describer", Value: c.Enrichment.Describer},
			{Key: "max_tries", Value: c.Enrichment.MaxTries},
			{Key: "retry_delay", Value: c.Enrichment.RetryDelay.String()},
			{Key: "max_concurrency", Value: c.Enrichment.MaxConcurrency},
			{Key: "prompt", Value: c.Enrichment.Prompt},
		}},
	}
}
