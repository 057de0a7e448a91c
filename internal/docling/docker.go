package docling

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage        = "quay.io/docling-project/docling-serve:latest"
	ContainerNamePrefix = "folio-docling-"
	DefaultPort         = "5001"
	ContainerPort       = "5001/tcp"
	CacheDir            = "/opt/app-root/src/.cache"
	Label               = "folio-docling"
)

// ErrContainerNotFound is returned when an operation needs a container that does not exist.
var ErrContainerNotFound = errors.New("container not found")

// ContainerStatus represents the state of the conversion backend container.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not_found"
	StatusStarting ContainerStatus = "starting"
)

// GenerateContainerName derives a stable container name from the home directory
// so separate homes get separate containers.
func GenerateContainerName(homePath string) string {
	sum := sha256.Sum256([]byte(homePath))
	return ContainerNamePrefix + hex.EncodeToString(sum[:])[:8]
}

// DockerConfig holds configuration for the Docker manager.
type DockerConfig struct {
	ContainerName string
	Image         string
	CachePath     string // host directory mounted over the model cache
	HostPort      string
	Labels        map[string]string
	Env           []string // extra KEY=VALUE pairs for docling-serve
	Logger        *slog.Logger
}

func (c DockerConfig) withDefaults() DockerConfig {
	if c.ContainerName == "" {
		c.ContainerName = GenerateContainerName("")
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.HostPort == "" {
		c.HostPort = DefaultPort
	}
	labels := map[string]string{Label: "true"}
	maps.Copy(labels, c.Labels)
	c.Labels = labels
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// containerSpec builds the create arguments for docling-serve. The API port is
// published on loopback only.
func (c DockerConfig) containerSpec() (*container.Config, *container.HostConfig) {
	env := append([]string{"DOCLING_SERVE_ENABLE_UI=false"}, c.Env...)
	cc := &container.Config{
		Image:        c.Image,
		Labels:       c.Labels,
		Env:          env,
		ExposedPorts: nat.PortSet{ContainerPort: struct{}{}},
		Healthcheck: &container.HealthConfig{
			Test:        []string{"CMD", "curl", "-sf", "http://localhost:5001/health"},
			Interval:    5 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     20,
			StartPeriod: 10 * time.Second,
		},
	}
	hc := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: {{HostIP: "127.0.0.1", HostPort: c.HostPort}},
		},
	}
	if c.CachePath != "" {
		hc.Mounts = append(hc.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: c.CachePath,
			Target: CacheDir,
		})
	}
	return cc, hc
}

// DockerManager manages the docling-serve container lifecycle.
type DockerManager struct {
	cli    *client.Client
	cfg    DockerConfig
	logger *slog.Logger
}

// NewDockerManager creates a new Docker manager for docling-serve.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	cfg = cfg.withDefaults()
	return &DockerManager{
		cli:    cli,
		cfg:    cfg,
		logger: cfg.Logger.With("container", cfg.ContainerName),
	}, nil
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// ContainerName returns the managed container's name.
func (m *DockerManager) ContainerName() string {
	return m.cfg.ContainerName
}

// URL returns the backend URL exposed by the container.
func (m *DockerManager) URL() string {
	return "http://localhost:" + m.cfg.HostPort
}

// containerRef is the managed container as seen by the daemon.
type containerRef struct {
	ID     string
	Status ContainerStatus
}

// Start brings the container up, creating it if needed, and blocks until the
// backend answers health checks.
func (m *DockerManager) Start(ctx context.Context, readyTimeout time.Duration) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	ref, err := m.lookup(ctx)
	if err != nil {
		return err
	}

	switch ref.Status {
	case StatusRunning:
		m.logger.Debug("docling container already running")
		return nil
	case StatusStarting:
		return m.WaitReady(ctx, readyTimeout)
	case StatusStopped:
		m.logger.Info("starting existing docling container")
		if err := m.cli.ContainerStart(ctx, ref.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
	case StatusNotFound:
		if err := m.create(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("container in unexpected state: %s", ref.Status)
	}
	return m.WaitReady(ctx, readyTimeout)
}

// Stop stops the container. A missing container is not an error.
func (m *DockerManager) Stop(ctx context.Context) error {
	ref, err := m.lookup(ctx)
	if err != nil || ref.Status == StatusNotFound {
		return err
	}
	return m.stop(ctx, ref.ID)
}

func (m *DockerManager) stop(ctx context.Context, id string) error {
	timeout := 10
	if err := m.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	m.logger.Info("docling container stopped")
	return nil
}

// Remove stops and removes the container. The model cache on the host is kept.
func (m *DockerManager) Remove(ctx context.Context) error {
	ref, err := m.lookup(ctx)
	if err != nil || ref.Status == StatusNotFound {
		return err
	}
	if ref.Status == StatusRunning {
		if err := m.stop(ctx, ref.ID); err != nil {
			return err
		}
	}
	if err := m.cli.ContainerRemove(ctx, ref.ID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	m.logger.Info("docling container removed")
	return nil
}

// Status returns the current status of the container.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	ref, err := m.lookup(ctx)
	return ref.Status, err
}

// Logs returns the last tail lines of the container output ("all" for everything).
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	ref, err := m.lookup(ctx)
	if err != nil {
		return "", err
	}
	if ref.Status == StatusNotFound {
		return "", ErrContainerNotFound
	}

	rc, err := m.cli.ContainerLogs(ctx, ref.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(b), nil
}

// WaitReady polls the backend health endpoint once a second until it answers
// or the timeout elapses.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	attempts := max(uint(timeout/time.Second), 1)
	dc := NewClient(ClientConfig{URL: m.URL(), Timeout: 2 * time.Second})

	err := retry.Do(
		func() error { return dc.HealthCheck(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("docling not ready after %s: %w", timeout, err)
	}
	m.logger.Info("docling ready", "url", m.URL())
	return nil
}

func (m *DockerManager) create(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}

	cc, hc := m.cfg.containerSpec()
	resp, err := m.cli.ContainerCreate(ctx, cc, hc, nil, nil, m.cfg.ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		m.logger.Warn("docker create warning", "warning", w)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}
	m.logger.Info("docling container created", "id", resp.ID[:min(12, len(resp.ID))], "port", m.cfg.HostPort)
	return nil
}

// lookup finds the managed container by exact name. The daemon's name filter
// matches substrings, so it is anchored.
func (m *DockerManager) lookup(ctx context.Context) (containerRef, error) {
	args := filters.NewArgs(filters.Arg("name", "^/"+m.cfg.ContainerName+"$"))
	list, err := m.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return containerRef{}, fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range list {
		for _, n := range c.Names {
			if n == "/"+m.cfg.ContainerName {
				return containerRef{ID: c.ID, Status: stateStatus(c.State)}, nil
			}
		}
	}
	return containerRef{Status: StatusNotFound}, nil
}

// stateStatus folds docker container states into ContainerStatus.
func stateStatus(state string) ContainerStatus {
	switch state {
	case "running":
		return StatusRunning
	case "exited", "dead", "paused":
		return StatusStopped
	case "created", "restarting":
		return StatusStarting
	default:
		return ContainerStatus(state)
	}
}

func (m *DockerManager) ensureImage(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.cfg.Image); err == nil {
		return nil
	}

	m.logger.Info("pulling docling image, this can take several minutes", "image", m.cfg.Image)
	rc, err := m.cli.ImagePull(ctx, m.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer rc.Close()

	if err := readPullProgress(rc, m.logger); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	m.logger.Info("image pulled", "image", m.cfg.Image)
	return nil
}

// pullMessage is one line of the daemon's pull progress stream.
type pullMessage struct {
	Status      string `json:"status"`
	ID          string `json:"id"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// readPullProgress drains a pull stream, logging completed layers. An error
// message embedded in the stream is returned as an error.
func readPullProgress(r io.Reader, logger *slog.Logger) error {
	dec := json.NewDecoder(r)
	for {
		var msg pullMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.ErrorDetail != nil {
			return errors.New(msg.ErrorDetail.Message)
		}
		switch msg.Status {
		case "Pull complete", "Already exists":
			logger.Debug("layer ready", "layer", msg.ID, "status", msg.Status)
		}
	}
}
