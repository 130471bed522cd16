package docker

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/dontdude/testbox/internal/pyrt"
)

//go:embed driver.py
var driverSource string

// Client wraps the official Docker SDK client and starts CPython runtimes.
type Client struct {
	cli    *client.Client
	image  string
	logger *slog.Logger
}

// NewClient initializes and returns a verified Docker client.
// It performs a connection check (Ping) upon initialization.
// If the Docker daemon is unreachable, the function panics to prevent the service from starting in a broken state
// (Fail-Fast).
func NewClient(imageName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Error("Failed to create Docker client", "error", err)
		panic(err)
	}

	// Ping Docker to ensure connection
	ctx := context.Background()
	_, err = cli.Ping(ctx)
	if err != nil {
		logger.Error("Failed to connect to Docker Daemon", "error", err)
		panic(err)
	}

	logger.Info("Docker Client initialized successfully", "image", imageName)
	return &Client{cli: cli, image: imageName, logger: logger}
}

// Loader returns a pyrt.Loader that starts one container per runtime.
func (c *Client) Loader() pyrt.Loader {
	return func(ctx context.Context) (pyrt.Runtime, error) {
		return c.Start(ctx)
	}
}

// Start launches a long-lived container running the driver and attaches to
// its standard streams. The container is removed when the runtime closes.
func (c *Client) Start(ctx context.Context) (*Runtime, error) {
	// 1. Pull Image
	c.logger.Info("Pulling image", "image", c.image)
	reader, err := c.cli.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		c.logger.Error("Failed to pull image", "image", c.image, "error", err)
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	// Drain the response body to ensure the pull completes properly.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	// 2. Create Container with Limits
	// No network, 256MB of memory and a bounded process table.
	pids := int64(64)
	resp, err := c.cli.ContainerCreate(ctx, &container.Config{
		Image:           c.image,
		Cmd:             []string{"python", "-u", "-c", driverSource},
		OpenStdin:       true,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
		WorkingDir:      "/tmp",
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory:    256 * 1024 * 1024,
			PidsLimit: &pids,
		},
	}, nil, nil, "")
	if err != nil {
		c.logger.Error("Failed to create container", "error", err)
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	id := resp.ID
	remove := func() {
		if err := c.cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true}); err != nil {
			c.logger.Warn("Failed to remove container", "containerID", id, "error", err)
		}
	}

	// 3. Attach before start so no output is lost.
	hijacked, err := c.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		remove()
		return nil, fmt.Errorf("failed to attach to container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		hijacked.Close()
		remove()
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	c.logger.Info("Python runtime started", "containerID", id)

	// 4. Demultiplex stdout (driver replies) from stderr (learner prints).
	stdout, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, &logWriter{logger: c.logger}, hijacked.Reader)
		pw.CloseWithError(err)
	}()

	kill := func() {
		hijacked.Close()
		remove()
		c.logger.Info("Python runtime stopped", "containerID", id)
	}
	return newRuntime(stdout, hijacked.Conn, kill, c.logger), nil
}

// logWriter forwards learner output to the debug log.
type logWriter struct {
	logger *slog.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.Debug("python output", "output", string(p))
	return len(p), nil
}
