package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/jackzampolin/folio/internal/docling"
)

// TestLabel marks containers started by tests; its value is the test name.
const TestLabel = "folio-test"

// DockerTestsEnv enables tests that start real containers.
const DockerTestsEnv = "FOLIO_DOCKER_TESTS"

// RequireDocker skips the test unless docker tests are enabled and the daemon
// answers. Containers labeled for this test are removed when it finishes.
func RequireDocker(t testing.TB) *client.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping docker test in short mode")
	}
	if os.Getenv(DockerTestsEnv) == "" {
		t.Skipf("set %s=1 to run docker tests", DockerTestsEnv)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		removeTestContainers(t, cli)
		cli.Close()
	})
	return cli
}

// DoclingContainer returns container settings isolated to this test: a unique
// name, a free host port, a throwaway model cache and the cleanup label.
func DoclingContainer(t testing.TB) docling.DockerConfig {
	t.Helper()
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for docling: %v", err)
	}
	return docling.DockerConfig{
		ContainerName: ContainerName(t, "docling"),
		CachePath:     t.TempDir(),
		HostPort:      port,
		Labels:        map[string]string{TestLabel: t.Name()},
	}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// ContainerName builds folio-test-<prefix>-<test>-<random>.
func ContainerName(t testing.TB, prefix string) string {
	name := unsafeName.ReplaceAllString(t.Name(), "-")
	if len(name) > 30 {
		name = name[:30]
	}
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return TestLabel + "-" + prefix + "-" + name + "-" + hex.EncodeToString(b)
}

func removeTestContainers(t testing.TB, cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := filters.NewArgs(filters.Arg("label", TestLabel+"="+t.Name()))
	list, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		t.Logf("listing test containers: %v", err)
		return
	}
	for _, c := range list {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			t.Logf("removing container %s: %v", c.ID[:12], err)
		}
	}
}
