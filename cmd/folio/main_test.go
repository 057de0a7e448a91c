package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDockerConfig(t *testing.T) {
	h, err := home.New(filepath.Join(t.TempDir(), "folio"))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("derived from home", func(t *testing.T) {
		dc, err := dockerConfig(h, config.DefaultConfig())
		if err != nil {
			t.Fatalf("dockerConfig() error = %v", err)
		}
		if dc.ContainerName != docling.GenerateContainerName(h.Path()) {
			t.Errorf("ContainerName = %q", dc.ContainerName)
		}
		if dc.CachePath != h.CachePath() {
			t.Errorf("CachePath = %q, want %q", dc.CachePath, h.CachePath())
		}
		if dc.HostPort != docling.DefaultPort {
			t.Errorf("HostPort = %q", dc.HostPort)
		}
	})

	t.Run("config wins", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Docling.Container.Name = "docling-dev"
		cfg.Docling.Container.CachePath = filepath.Join(t.TempDir(), "models")
		cfg.Docling.Container.Port = "5002"

		dc, err := dockerConfig(h, cfg)
		if err != nil {
			t.Fatalf("dockerConfig() error = %v", err)
		}
		if dc.ContainerName != "docling-dev" || dc.CachePath != cfg.Docling.Container.CachePath || dc.HostPort != "5002" {
			t.Errorf("dockerConfig() = %+v", dc)
		}
	})
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"process"},
		{"config", "init"},
		{"config", "show"},
		{"docling", "start"},
		{"docling", "wait"},
		{"api", "process"},
		{"api", "convert-status"},
		{"api", "describers"},
		{"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd == rootCmd {
			t.Errorf("command %v not registered", path)
		}
	}
}

func TestConvertFile(t *testing.T) {
	fake := testutil.NewFakeDocling(t, []byte(`{"document":{}}`))
	client := docling.NewClient(docling.ClientConfig{
		URL:          fake.URL(),
		PollInterval: 10 * time.Millisecond,
		Logger:       testutil.Logger(t),
	})

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetErr(io.Discard)

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("non-paginated format", func(t *testing.T) {
		data, pageCount, err := convertFile(cmd, client, write("notes.docx", "docx bytes"))
		if err != nil {
			t.Fatalf("convertFile() error = %v", err)
		}
		if string(data) != `{"document":{}}` {
			t.Errorf("data = %s", data)
		}
		if pageCount != 0 {
			t.Errorf("pageCount = %d, want 0", pageCount)
		}
	})

	t.Run("invalid pdf", func(t *testing.T) {
		before := len(fake.Uploads())
		if _, _, err := convertFile(cmd, client, write("scan.pdf", "not a pdf")); err == nil {
			t.Error("expected error for invalid pdf")
		}
		if got := len(fake.Uploads()); got != before {
			t.Errorf("uploads = %d, want %d", got, before)
		}
	})
}
