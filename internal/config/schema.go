package config

import (
	"log/slog"
	"time"

	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/reconstruct"
)

// Config holds folio configuration.
// Stored at: ~/.folio/config.yaml (or ./config.yaml, or --config)
type Config struct {
	LogLevel   string                  `mapstructure:"log_level" yaml:"log_level"`
	Server     ServerCfg               `mapstructure:"server" yaml:"server"`
	Docling    DoclingCfg              `mapstructure:"docling" yaml:"docling"`
	Describers map[string]DescriberCfg `mapstructure:"describers" yaml:"describers"`
	Enrichment EnrichmentCfg           `mapstructure:"enrichment" yaml:"enrichment"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         string        `mapstructure:"port" yaml:"port"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"` // covers a full convert+reconstruct
}

// DoclingCfg configures the conversion backend.
type DoclingCfg struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PageBreak    string        `mapstructure:"page_break" yaml:"page_break"`
	Container    ContainerCfg  `mapstructure:"container" yaml:"container"`
}

// ContainerCfg holds docling-serve container configuration.
type ContainerCfg struct {
	// Name is the Docker container name (default: derived from the home path)
	Name string `mapstructure:"name" yaml:"name"`
	// Image is the Docker image to use (default: quay.io/docling-project/docling-serve:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 5001)
	Port string `mapstructure:"port" yaml:"port"`
	// CachePath is the host directory for model weights (default: ~/.folio/docling-cache)
	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`
}

// DescriberCfg configures an image describer.
type DescriberCfg struct {
	Type      string        `mapstructure:"type" yaml:"type"`             // "openai", "openrouter", "ollama", "mock"
	Model     string        `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`     // Optional endpoint override
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
}

// EnrichmentCfg configures picture enrichment.
type EnrichmentCfg struct {
	Describer      string        `mapstructure:"describer" yaml:"describer"` // Name of the describer to use
	MaxTries       int           `mapstructure:"max_tries" yaml:"max_tries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	Prompt         string        `mapstructure:"prompt" yaml:"prompt"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerCfg{
			Host:         "127.0.0.1",
			Port:         "8080",
			WriteTimeout: 10 * time.Minute,
		},
		Docling: DoclingCfg{
			URL:          "http://localhost:" + docling.DefaultPort,
			Timeout:      5 * time.Minute,
			PollInterval: 2 * time.Second,
			PageBreak:    docling.DefaultPageBreak,
			Container: ContainerCfg{
				Image: docling.DefaultImage,
				Port:  docling.DefaultPort,
			},
		},
		Describers: map[string]DescriberCfg{
			"openai": {
				Type:    providers.TypeOpenAI,
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
				Timeout: 5 * time.Minute,
				Enabled: true,
			},
			"openrouter": {
				Type:      providers.TypeOpenRouter,
				Model:     "google/gemini-2.5-flash",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 2.0,
				Timeout:   5 * time.Minute,
				Enabled:   false,
			},
			"ollama": {
				Type:    providers.TypeOllama,
				Model:   "llava:7b",
				BaseURL: providers.OllamaBaseURL,
				Timeout: 5 * time.Minute,
				Enabled: false,
			},
		},
		Enrichment: EnrichmentCfg{
			Describer:      "openai",
			MaxTries:       reconstruct.DefaultMaxTries,
			RetryDelay:     reconstruct.DefaultRetryDelay,
			MaxConcurrency: reconstruct.DefaultMaxConcurrency,
			Prompt:         providers.DefaultPrompt,
		},
	}
}

// GetDescriber returns a describer config by name.
func (c *Config) GetDescriber(name string) (DescriberCfg, bool) {
	cfg, ok := c.Describers[name]
	return cfg, ok
}

// EnabledDescribers returns all enabled describers.
func (c *Config) EnabledDescribers() map[string]DescriberCfg {
	result := make(map[string]DescriberCfg)
	for name, cfg := range c.Describers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// DoclingClientConfig returns settings for the conversion backend client.
func (c *Config) DoclingClientConfig(logger *slog.Logger) docling.ClientConfig {
	return docling.ClientConfig{
		URL:          c.Docling.URL,
		Timeout:      c.Docling.Timeout,
		PollInterval: c.Docling.PollInterval,
		PageBreak:    c.Docling.PageBreak,
		Logger:       logger,
	}
}

// ReconstructConfig returns enrichment settings bound to a describer.
func (c *Config) ReconstructConfig(d providers.Describer, rec *metrics.Recorder, logger *slog.Logger) reconstruct.Config {
	return reconstruct.Config{
		Describer:      d,
		Prompt:         c.Enrichment.Prompt,
		MaxTries:       c.Enrichment.MaxTries,
		RetryDelay:     c.Enrichment.RetryDelay,
		MaxConcurrency: c.Enrichment.MaxConcurrency,
		PageBreak:      c.Docling.PageBreak,
		Metrics:        rec,
		Logger:         logger,
	}
}
