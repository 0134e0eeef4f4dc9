package runtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/ozwald-dev/ozwald/models"
)

// DockerShim runs instances as Docker containers over the local daemon
// socket.
type DockerShim struct {
	docker *client.Client
}

// NewDockerShim connects to the Docker daemon at the given endpoint
// (for example unix:///var/run/docker.sock).
func NewDockerShim(endpoint string) (*DockerShim, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(endpoint),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerShim{docker: cli}, nil
}

func (d *DockerShim) Start(ctx context.Context, name string, spec models.LaunchSpec, secretsFile string) (Handle, error) {
	if err := d.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	env := make([]string, 0, len(spec.Environment))
	for k, v := range spec.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	// Secret variables are read from the artifact here so they reach
	// the container without ever entering the stored launch spec.
	if secretsFile != "" {
		secretEnv, err := readEnvFile(secretsFile)
		if err != nil {
			return "", fmt.Errorf("failed to read secrets artifact: %w", err)
		}
		env = append(env, secretEnv...)
	}

	exposedPorts, portBindings, err := portConfig(spec.Portals)
	if err != nil {
		return "", err
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
	}
	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}

	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: make(map[string]*network.EndpointSettings),
	}
	for _, n := range spec.Networks {
		networkConfig.EndpointsConfig[n] = &network.EndpointSettings{}
	}

	resp, err := d.docker.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Don't leave a created-but-dead container behind.
		_ = d.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return Handle(resp.ID), nil
}

func (d *DockerShim) Stop(ctx context.Context, handle Handle) error {
	err := d.docker.ContainerStop(ctx, string(handle), container.StopOptions{})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	err = d.docker.ContainerRemove(ctx, string(handle), container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (d *DockerShim) Logs(ctx context.Context, handle Handle) ([]string, error) {
	rc, err := d.docker.ContainerLogs(ctx, string(handle), container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer rc.Close()

	// The daemon multiplexes stdout and stderr over one stream.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, fmt.Errorf("failed to demultiplex container logs: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Close releases the underlying Docker client.
func (d *DockerShim) Close() error {
	return d.docker.Close()
}

func (d *DockerShim) ensureImage(ctx context.Context, ref string) error {
	_, _, err := d.docker.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	reader, err := d.docker.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// Consume pull output to ensure pull completes.
	_, err = io.Copy(io.Discard, reader)
	return err
}

func portConfig(portals []models.Portal) (nat.PortSet, nat.PortMap, error) {
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)

	for _, p := range portals {
		protocol := p.Protocol
		if protocol == "" {
			protocol = "tcp"
		}
		natPort, err := nat.NewPort(strings.ToLower(protocol), strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid portal: %w", err)
		}
		exposed[natPort] = struct{}{}
		if p.HostPort > 0 {
			bindings[natPort] = []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: strconv.Itoa(p.HostPort)},
			}
		}
	}
	return exposed, bindings, nil
}

func readEnvFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var env []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		env = append(env, line)
	}
	return env, scanner.Err()
}
