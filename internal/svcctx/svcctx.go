// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Docling       *docling.Client
	DoclingDocker *docling.DockerManager // nil unless the server manages the container
	Registry      *providers.Registry
	Metrics       *metrics.Recorder
	ConfigManager *config.Manager
	Logger        *slog.Logger
	Home          *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DoclingFrom extracts the conversion backend client from context.
func DoclingFrom(ctx context.Context) *docling.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Docling
	}
	return nil
}

// DoclingDockerFrom extracts the conversion backend container manager from context.
func DoclingDockerFrom(ctx context.Context) *docling.DockerManager {
	if s := ServicesFrom(ctx); s != nil {
		return s.DoclingDocker
	}
	return nil
}

// RegistryFrom extracts the describer registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// MetricsFrom extracts the enrichment metrics recorder from context.
func MetricsFrom(ctx context.Context) *metrics.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Metrics
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
