package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/server"
	"github.com/jackzampolin/folio/internal/server/endpoints"
)

var (
	serveHost    string
	servePort    string
	serveManaged bool
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Folio server",
	Long: `Start the Folio HTTP server.

By default the server talks to the docling-serve instance at docling.url.
With --docling-managed it also starts a docling-serve container and stops
it again when the server shuts down (via Ctrl+C or SIGTERM).

The config file is watched; describer settings are reloaded on change.

The server provides:
  - /health              - Basic server health check
  - /ready               - Readiness check (includes docling status)
  - /api/process         - Convert and reconstruct an uploaded document
  - /api/process/json    - Reconstruct an existing conversion result

Examples:
  folio serve                      # Start on the configured port (8080)
  folio serve --port 3000          # Start on custom port
  folio serve --host 0.0.0.0       # Bind to all interfaces
  folio serve --docling-managed    # Run docling-serve in Docker alongside`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		cm, err := getConfigManager(h)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		logger := newLogger(cfg)
		cm.SetLogger(logger)
		if !serveNoWatch && cm.ConfigFile() != "" {
			cm.WatchConfig()
			logger.Info("watching config", "file", cm.ConfigFile())
		}

		dc, err := dockerConfig(h, cfg)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			ConfigManager:   cm,
			Home:            h,
			ManageDocling:   serveManaged,
			DoclingDocker:   dc,
			SwaggerSpecPath: endpoints.SwaggerSpecPath(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port from config)")
	serveCmd.Flags().BoolVar(&serveManaged, "docling-managed", false, "Start and stop a docling-serve container with the server")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the config file on change")

	rootCmd.AddCommand(serveCmd)
}
