package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Docker implements Engine against the Docker Engine API.
type Docker struct {
	client *dockerclient.Client
	logger zerolog.Logger
}

// NewDocker connects to the daemon at host (or DOCKER_HOST when empty) and
// verifies it answers a ping.
func NewDocker(ctx context.Context, host string) (*Docker, error) {
	opts := []dockerclient.Opt{dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker ping: %w", err)
	}

	d := &Docker{
		client: cli,
		logger: log.With().Str("component", "engine").Str("backend", "docker-api").Logger(),
	}
	d.logger.Info().Msg("docker daemon connected")
	return d, nil
}

func (d *Docker) Name() string { return "docker-api" }

// Close releases the API client.
func (d *Docker) Close() error { return d.client.Close() }

func (d *Docker) Exists(ctx context.Context, name string) (bool, error) {
	_, err := d.client.ContainerInspect(ctx, name)
	if err == nil {
		return true, nil
	}
	if dockerclient.IsErrNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect %s: %w", name, err)
}

func (d *Docker) Status(ctx context.Context, name string) (State, error) {
	inspect, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return StateAbsent, nil
		}
		return StateUnknown, fmt.Errorf("inspect %s: %w", name, err)
	}
	if inspect.State == nil {
		return StateUnknown, nil
	}
	return ParseState(string(inspect.State.Status)), nil
}

func (d *Docker) Start(ctx context.Context, name string) error {
	if err := d.client.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	return nil
}

func (d *Docker) ensureImage(ctx context.Context, img string) error {
	if _, err := d.client.ImageInspect(ctx, img); err == nil {
		return nil
	}

	d.logger.Info().Str("image", img).Msg("image not found locally, pulling")
	reader, err := d.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	io.Copy(io.Discard, reader)
	d.logger.Info().Str("image", img).Msg("image pulled")
	return nil
}

func parseCPUToNanoCPUs(cpuStr string) int64 {
	if strings.HasSuffix(cpuStr, "m") {
		n, _ := strconv.ParseInt(strings.TrimSuffix(cpuStr, "m"), 10, 64)
		return n * 1_000_000
	}
	f, _ := strconv.ParseFloat(cpuStr, 64)
	return int64(f * 1_000_000_000)
}

func (d *Docker) Run(ctx context.Context, req RunRequest) error {
	spec := req.Spec
	if spec.Image == "" {
		return fmt.Errorf("run %s: no image configured", req.Name)
	}
	if err := d.ensureImage(ctx, spec.Image); err != nil {
		return err
	}

	containerCfg := &container.Config{
		Image:      spec.Image,
		Cmd:        req.Command,
		Env:        sortedEnv(spec.Env),
		Labels:     req.Labels,
		WorkingDir: spec.Workdir,
		User:       spec.User,
	}
	hostCfg := &container.HostConfig{}

	if spec.Memory != "" {
		mem, err := units.RAMInBytes(spec.Memory)
		if err != nil {
			return fmt.Errorf("parse memory %q: %w", spec.Memory, err)
		}
		hostCfg.Resources.Memory = mem
	}
	if spec.CPUs != "" {
		hostCfg.Resources.NanoCPUs = parseCPUToNanoCPUs(spec.CPUs)
	}
	if len(spec.Ports) > 0 {
		exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
		if err != nil {
			return fmt.Errorf("parse ports: %w", err)
		}
		containerCfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{spec.Network: {}},
		}
	}

	resp, err := d.client.ContainerCreate(ctx, containerCfg, hostCfg, netCfg, nil, req.Name)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	d.logger.Info().Str("container", req.Name).Str("image", spec.Image).Msg("container created")
	return nil
}

func (d *Docker) Exec(ctx context.Context, name string, argv []string) (ExecResult, error) {
	execID, err := d.client.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("exec create: %w", err)
	}

	resp, err := d.client.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("exec attach: %w", err)
	}
	defer resp.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, resp.Reader); err != nil {
		return ExecResult{Output: buf.String(), ExitCode: -1}, fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return ExecResult{Output: buf.String(), ExitCode: -1}, fmt.Errorf("exec inspect: %w", err)
	}
	return ExecResult{Output: buf.String(), ExitCode: inspect.ExitCode}, nil
}

func (d *Docker) Remove(ctx context.Context, name string) error {
	err := d.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (d *Docker) Logs(ctx context.Context, name string, tail int) (string, error) {
	rc, err := d.client.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("logs %s: %w", name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return buf.String(), fmt.Errorf("read logs %s: %w", name, err)
	}
	return buf.String(), nil
}

func (d *Docker) InspectLabel(ctx context.Context, name, label string) (string, error) {
	inspect, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", name, err)
	}
	if inspect.Config == nil {
		return "", nil
	}
	return inspect.Config.Labels[label], nil
}

func (d *Docker) List(ctx context.Context) ([]Container, error) {
	list, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]Container, 0, len(list))
	for _, c := range list {
		if len(c.Names) == 0 {
			continue
		}
		out = append(out, Container{
			Name:  strings.TrimPrefix(c.Names[0], "/"),
			State: ParseState(string(c.State)),
			Image: c.Image,
		})
	}
	return out, nil
}

var _ Engine = (*Docker)(nil)
