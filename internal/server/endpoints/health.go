package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/version"
)

// Docling health values reported by /ready and /status.
const (
	doclingHealthy        = "healthy"
	doclingUnhealthy      = "unhealthy"
	doclingNotInitialized = "not_initialized"
)

const probeTimeout = 5 * time.Second

// probeDocling checks the conversion backend with a bounded wait.
func probeDocling(ctx context.Context, client *docling.Client) string {
	if client == nil {
		return doclingNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		return doclingUnhealthy
	}
	return doclingHealthy
}

// HealthResponse is the body of /health and /ready.
type HealthResponse struct {
	Status  string `json:"status"`
	Docling string `json:"docling,omitempty"`
}

// HealthEndpoint handles GET /health. It answers as long as the process serves HTTP.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Liveness check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Println(resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	Ready only when the conversion backend answers its health check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	health := probeDocling(r.Context(), svcctx.DoclingFrom(r.Context()))
	switch health {
	case doclingHealthy:
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Docling: health})
	default:
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Docling: health})
	}
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check that the server can convert documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("%s (docling %s)\n", resp.Status, resp.Docling)
			return nil
		},
	}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Server     string        `json:"server"`
	Version    string        `json:"version"`
	Commit     string        `json:"commit,omitempty"`
	Describers []string      `json:"describers"`
	Enrichment string        `json:"enrichment_describer,omitempty"`
	Docling    DoclingStatus `json:"docling"`
	Metrics    int           `json:"metrics_recorded"`
}

// DoclingStatus shows conversion backend container and health status.
// Container is "unmanaged" when the server does not own the container.
type DoclingStatus struct {
	Container string `json:"container"`
	Health    string `json:"health"`
	URL       string `json:"url,omitempty"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Server status
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{
		Server:     "running",
		Version:    version.GitRelease,
		Commit:     version.GitCommit,
		Describers: []string{},
		Metrics:    svcctx.MetricsFrom(ctx).Len(),
		Docling:    DoclingStatus{Container: "unmanaged"},
	}

	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Describers = registry.List()
	}
	if cm := svcctx.ConfigManagerFrom(ctx); cm != nil {
		resp.Enrichment = cm.Get().Enrichment.Describer
	}

	if dm := svcctx.DoclingDockerFrom(ctx); dm != nil {
		resp.Docling.Container = "error"
		if status, err := dm.Status(ctx); err == nil {
			resp.Docling.Container = string(status)
		}
	}
	client := svcctx.DoclingFrom(ctx)
	if client != nil {
		resp.Docling.URL = client.URL()
	}
	resp.Docling.Health = probeDocling(ctx, client)

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server, describer and conversion backend status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StatusResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Printf("Server:     %s (%s)\n", resp.Server, resp.Version)
			fmt.Printf("Docling:    %s, container %s", resp.Docling.Health, resp.Docling.Container)
			if resp.Docling.URL != "" {
				fmt.Printf(", %s", resp.Docling.URL)
			}
			fmt.Println()
			fmt.Printf("Describers: %v\n", resp.Describers)
			if resp.Enrichment != "" {
				fmt.Printf("Enrichment: %s\n", resp.Enrichment)
			}
			fmt.Printf("Metrics:    %d recorded\n", resp.Metrics)
			return nil
		},
	}
}
