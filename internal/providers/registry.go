package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Describer backend types accepted in configuration.
const (
	TypeOpenAI     = "openai"
	TypeOpenRouter = "openrouter"
	TypeOllama     = "ollama"
	TypeMock       = "mock"
)

// Registry holds named describers.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	describers map[string]Describer
	configs    map[string]DescriberConfig
	logger     *slog.Logger
}

// DescriberConfig matches config.DescriberCfg with a resolved API key.
type DescriberConfig struct {
	Type      string // "openai", "openrouter", "ollama", "mock"
	Model     string
	APIKey    string
	BaseURL   string
	RateLimit float64 // Requests per second
	Timeout   time.Duration
	Enabled   bool
}

// DescriberInfo describes a registered describer for listing.
type DescriberInfo struct {
	Name  string            `json:"name"`
	Type  string            `json:"type"`
	Model string            `json:"model,omitempty"`
	Limit RateLimiterStatus `json:"rate_limit"`
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		describers: make(map[string]Describer),
		configs:    make(map[string]DescriberConfig),
		logger:     slog.Default(),
	}
}

// NewRegistryFromConfig creates a registry with describers based on configuration.
// Disabled entries and remote backends without an API key are skipped.
func NewRegistryFromConfig(cfgs map[string]DescriberConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(cfgs)
	return r
}

// Register registers a describer by name.
func (r *Registry) Register(name string, d Describer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.describers[name] = d
	delete(r.configs, name)
	r.logger.Info("registered describer", "name", name, "type", d.Name())
}

// Unregister removes a describer by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.describers, name)
	delete(r.configs, name)
	r.logger.Info("unregistered describer", "name", name)
}

// Get returns a describer by name.
func (r *Registry) Get(name string) (Describer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.describers[name]
	if !ok {
		return nil, fmt.Errorf("describer not found: %s", name)
	}
	return d, nil
}

// Has checks if a describer is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.describers[name]
	return ok
}

// List returns all registered describer names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.describers))
	for name := range r.describers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns details for every registered describer, sorted by name.
func (r *Registry) Info() []DescriberInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]DescriberInfo, 0, len(r.describers))
	for name, d := range r.describers {
		info := DescriberInfo{Name: name, Type: d.Name()}
		if m, ok := d.(interface{ Model() string }); ok {
			info.Model = m.Model()
		}
		if l, ok := d.(interface{ RateLimiterStatus() RateLimiterStatus }); ok {
			info.Limit = l.RateLimiterStatus()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Reload updates the registry based on new configuration.
// Describers that are no longer configured are unregistered and
// describers with changed settings are re-created.
func (r *Registry) Reload(cfgs map[string]DescriberConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, cfg := range cfgs {
		if !usable(cfg) {
			continue
		}
		want[name] = true

		prev, hasPrev := r.configs[name]
		if _, registered := r.describers[name]; registered && hasPrev && prev == cfg {
			continue
		}

		d, err := NewDescriber(cfg)
		if err != nil {
			r.logger.Warn("skipping describer", "name", name, "error", err)
			delete(want, name)
			continue
		}
		_, existed := r.describers[name]
		r.describers[name] = d
		r.configs[name] = cfg
		if existed {
			r.logger.Info("updated describer", "name", name, "type", cfg.Type)
		} else {
			r.logger.Info("registered describer", "name", name, "type", cfg.Type)
		}
	}

	// Only config-managed entries are pruned; Register'd ones stay.
	for name := range r.configs {
		if !want[name] {
			delete(r.describers, name)
			delete(r.configs, name)
			r.logger.Info("unregistered describer", "name", name)
		}
	}
}

func usable(cfg DescriberConfig) bool {
	if !cfg.Enabled {
		return false
	}
	switch cfg.Type {
	case TypeOpenAI, TypeOpenRouter:
		return cfg.APIKey != ""
	default:
		return true
	}
}

// NewDescriber creates a describer based on its configured type.
func NewDescriber(cfg DescriberConfig) (Describer, error) {
	switch cfg.Type {
	case TypeOpenAI:
		return NewOpenAIDescriber(OpenAIConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
			BaseURL:   cfg.BaseURL,
		}), nil
	case TypeOpenRouter:
		return NewOpenRouterDescriber(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			RPS:          cfg.RateLimit,
		}), nil
	case TypeOllama:
		return NewOllamaDescriber(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		}), nil
	case TypeMock:
		return NewMockDescriber(), nil
	default:
		return nil, fmt.Errorf("unknown describer type: %q", cfg.Type)
	}
}
