package endpoints

import (
	"github.com/jackzampolin/folio/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Conversion backend passthrough
		&ConvertEndpoint{},
		&ConvertStatusEndpoint{},
		&ConvertResultEndpoint{},

		// Reconstruction
		&ProcessEndpoint{},
		&ProcessJSONEndpoint{},

		// Describers and metrics
		&ListDescribersEndpoint{},
		&MetricsSummaryEndpoint{},
		&MetricsDetailedEndpoint{},
		&ListMetricsEndpoint{},

		// Swagger/OpenAPI
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
	}
}
