package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given router.
// initMiddleware wraps handlers that require full server initialization.
func (r *Registry) RegisterRoutes(router chi.Router, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() && initMiddleware != nil {
			handler = initMiddleware(handler)
		}
		router.Method(method, path, handler)
	}
}

// BuildCommands returns a cobra.Command tree for all registered endpoints.
// getServerURL is called at runtime to get the server URL.
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call the running Folio server via HTTP.

These commands require a running server (folio serve).
Use --server to specify a custom server URL.

Examples:
  folio api health                      # Check server health
  folio api process report.docx         # Convert and reconstruct a document
  folio api convert-status <task-id>    # Poll a conversion task`,
	}

	for _, ep := range r.endpoints {
		if cmd := ep.Command(getServerURL); cmd != nil {
			apiCmd.AddCommand(cmd)
		}
	}

	return apiCmd
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}
