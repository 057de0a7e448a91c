package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/home"
)

var doclingCmd = &cobra.Command{
	Use:   "docling",
	Short: "Manage the docling-serve container",
	Long: `Manage the docling-serve container lifecycle.

docling-serve converts PDF, DOCX and PPTX files into the structured
documents folio reconstructs. It runs in a Docker container; downloaded
model weights are cached in ~/.folio/docling-cache/.

Examples:
  folio docling start   # Start the container
  folio docling stop    # Stop the container (cache preserved)
  folio docling status  # Check container status
  folio docling logs    # View container logs`,
}

var doclingStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the docling-serve container",
	Long: `Start the docling-serve container.

If the container doesn't exist, the image is pulled and the container created.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.

The first start downloads conversion models and can take several minutes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Println("Starting docling-serve...")
		if err := mgr.Start(ctx, timeout); err != nil {
			return fmt.Errorf("failed to start docling-serve: %w", err)
		}

		fmt.Printf("docling-serve is running at %s\n", mgr.URL())
		return nil
	},
}

var doclingStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the docling-serve container",
	Long: `Stop the docling-serve container.

This stops the container but keeps it and the model cache. Use
'folio docling start' to restart it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping docling-serve...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop docling-serve: %w", err)
		}

		fmt.Println("docling-serve stopped")
		return nil
	},
}

var doclingStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show docling-serve container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		fmt.Printf("Container: %s\n", mgr.ContainerName())
		switch status {
		case docling.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())

			client := docling.NewClient(docling.ClientConfig{URL: mgr.URL(), Timeout: 5 * time.Second})
			if err := client.HealthCheck(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case docling.StatusStopped:
			fmt.Printf("Status: %s (use 'folio docling start' to start)\n", status)
		case docling.StatusNotFound:
			fmt.Printf("Status: %s (use 'folio docling start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var logsTail string

var doclingLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show docling-serve container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, logsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var doclingRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the docling-serve container",
	Long: `Remove the docling-serve container.

This stops and removes the container. Model weights in ~/.folio/docling-cache/
are NOT deleted, so the next start skips the download.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing docling-serve container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("docling-serve container removed (model cache preserved)")
		return nil
	},
}

var doclingWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for docling-serve to be ready",
	Long: `Wait for docling-serve to accept conversions.

This is useful in scripts to ensure the backend is fully started
before submitting documents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for docling-serve (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("docling-serve not ready: %w", err)
		}

		fmt.Println("docling-serve is ready")
		return nil
	},
}

func init() {
	doclingCmd.AddCommand(doclingStartCmd)
	doclingCmd.AddCommand(doclingStopCmd)
	doclingCmd.AddCommand(doclingStatusCmd)
	doclingCmd.AddCommand(doclingLogsCmd)
	doclingCmd.AddCommand(doclingRemoveCmd)
	doclingCmd.AddCommand(doclingWaitCmd)

	doclingLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")

	doclingStartCmd.Flags().Duration("timeout", 5*time.Minute, "Timeout waiting for the container to become healthy")
	doclingWaitCmd.Flags().Duration("timeout", 30*time.Second, "Timeout waiting for docling-serve")

	rootCmd.AddCommand(doclingCmd)
}

// getDockerManager creates a DockerManager from the home directory and config.
func getDockerManager() (*docling.DockerManager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	cm, err := getConfigManager(h)
	if err != nil {
		return nil, err
	}
	dc, err := dockerConfig(h, cm.Get())
	if err != nil {
		return nil, err
	}
	return docling.NewDockerManager(dc)
}

// dockerConfig fills container settings left empty in config from the home directory.
func dockerConfig(h *home.Dir, cfg *config.Config) (docling.DockerConfig, error) {
	c := cfg.Docling.Container
	dc := docling.DockerConfig{
		ContainerName: c.Name,
		Image:         c.Image,
		CachePath:     c.CachePath,
		HostPort:      c.Port,
	}
	if dc.ContainerName == "" {
		dc.ContainerName = docling.GenerateContainerName(h.Path())
	}
	if dc.CachePath == "" {
		dc.CachePath = h.CachePath()
	}
	if err := os.MkdirAll(dc.CachePath, 0o755); err != nil {
		return dc, fmt.Errorf("failed to create model cache: %w", err)
	}
	return dc, nil
}
