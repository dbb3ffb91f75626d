package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunResult is the outcome of one invocation of the engine binary.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes the engine binary with args. When combined is set, stdout
// and stderr are interleaved into Stdout. A non-zero exit status is reported
// through ExitCode; err is only set when the binary could not be run.
type Runner func(ctx context.Context, binary string, combined bool, args ...string) (RunResult, error)

// CLI drives a docker-compatible binary (docker, podman).
type CLI struct {
	Binary string
	run    Runner
	logger zerolog.Logger
}

// NewCLI returns a CLI engine for binary. A nil runner uses os/exec.
func NewCLI(binary string, run Runner) *CLI {
	if binary == "" {
		binary = "docker"
	}
	if run == nil {
		run = execRunner
	}
	return &CLI{
		Binary: binary,
		run:    run,
		logger: log.With().Str("component", "engine").Str("binary", binary).Logger(),
	}
}

func execRunner(ctx context.Context, binary string, combined bool, args ...string) (RunResult, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	if combined {
		cmd.Stderr = &outBuf
	} else {
		cmd.Stderr = &errBuf
	}

	err := cmd.Run()
	res := RunResult{Stdout: outBuf.String(), Stderr: errBuf.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

func (c *CLI) Name() string { return c.Binary }

func (c *CLI) invoke(ctx context.Context, combined bool, args ...string) (RunResult, error) {
	start := time.Now()
	res, err := c.run(ctx, c.Binary, combined, args...)
	c.logger.Debug().
		Strs("args", args).
		Int("exit_code", res.ExitCode).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("engine command")
	if err != nil {
		return res, fmt.Errorf("%s %s: %w", c.Binary, args[0], err)
	}
	return res, nil
}

func (c *CLI) failure(verb string, res RunResult) error {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	return fmt.Errorf("%s %s exited with %d: %s", c.Binary, verb, res.ExitCode, msg)
}

func isNoSuchContainer(res RunResult) bool {
	msg := strings.ToLower(res.Stderr + res.Stdout)
	return strings.Contains(msg, "no such container") ||
		strings.Contains(msg, "no such object") ||
		strings.Contains(msg, "no container with name")
}

func (c *CLI) Exists(ctx context.Context, name string) (bool, error) {
	res, err := c.invoke(ctx, false, "container", "inspect", "--format", "{{.Id}}", name)
	if err != nil {
		return false, err
	}
	if res.ExitCode == 0 {
		return true, nil
	}
	if isNoSuchContainer(res) {
		return false, nil
	}
	return false, c.failure("inspect", res)
}

func (c *CLI) Status(ctx context.Context, name string) (State, error) {
	res, err := c.invoke(ctx, false, "container", "inspect", "--format", "{{.State.Status}}", name)
	if err != nil {
		return StateUnknown, err
	}
	if res.ExitCode != 0 {
		if isNoSuchContainer(res) {
			return StateAbsent, nil
		}
		return StateUnknown, c.failure("inspect", res)
	}
	return ParseState(strings.TrimSpace(res.Stdout)), nil
}

func (c *CLI) Start(ctx context.Context, name string) error {
	res, err := c.invoke(ctx, false, "start", name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return c.failure("start", res)
	}
	return nil
}

// runArgs builds the argument list for a detached `run`.
func runArgs(req RunRequest) []string {
	args := []string{"run", "-d", "--name", req.Name}

	labels := make([]string, 0, len(req.Labels))
	for k, v := range req.Labels {
		labels = append(labels, k+"="+v)
	}
	sort.Strings(labels)
	for _, l := range labels {
		args = append(args, "--label", l)
	}

	spec := req.Spec
	if spec.Memory != "" {
		args = append(args, "--memory", spec.Memory)
	}
	if spec.CPUs != "" {
		args = append(args, "--cpus", spec.CPUs)
	}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	if spec.Workdir != "" {
		args = append(args, "--workdir", spec.Workdir)
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}
	for _, kv := range sortedEnv(spec.Env) {
		args = append(args, "-e", kv)
	}
	for _, p := range spec.Ports {
		args = append(args, "-p", p)
	}

	args = append(args, spec.Image)
	return append(args, req.Command...)
}

func sortedEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func (c *CLI) Run(ctx context.Context, req RunRequest) error {
	if req.Spec.Image == "" {
		return fmt.Errorf("run %s: no image configured", req.Name)
	}
	res, err := c.invoke(ctx, false, runArgs(req)...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return c.failure("run", res)
	}
	c.logger.Info().Str("container", req.Name).Str("image", req.Spec.Image).Msg("container created")
	return nil
}

func (c *CLI) Exec(ctx context.Context, name string, argv []string) (ExecResult, error) {
	args := append([]string{"exec", name}, argv...)
	res, err := c.invoke(ctx, true, args...)
	if err != nil {
		return ExecResult{ExitCode: -1}, err
	}
	return ExecResult{Output: res.Stdout, ExitCode: res.ExitCode}, nil
}

func (c *CLI) Remove(ctx context.Context, name string) error {
	res, err := c.invoke(ctx, false, "rm", "-f", name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !isNoSuchContainer(res) {
		return c.failure("rm", res)
	}
	return nil
}

func (c *CLI) Logs(ctx context.Context, name string, tail int) (string, error) {
	res, err := c.invoke(ctx, true, "logs", "--tail", strconv.Itoa(tail), name)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", c.failure("logs", res)
	}
	return res.Stdout, nil
}

func (c *CLI) InspectLabel(ctx context.Context, name, label string) (string, error) {
	format := fmt.Sprintf("{{index .Config.Labels %q}}", label)
	res, err := c.invoke(ctx, false, "container", "inspect", "--format", format, name)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", c.failure("inspect", res)
	}
	v := strings.TrimSpace(res.Stdout)
	if v == "<no value>" {
		return "", nil
	}
	return v, nil
}

func (c *CLI) List(ctx context.Context) ([]Container, error) {
	res, err := c.invoke(ctx, false, "ps", "-a",
		"--filter", "label="+LabelManagedBy+"="+ManagedByValue,
		"--format", "{{.Names}}\t{{.State}}\t{{.Image}}")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, c.failure("ps", res)
	}

	var out []Container
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		ct := Container{Name: parts[0], State: StateUnknown}
		if len(parts) > 1 {
			ct.State = ParseState(parts[1])
		}
		if len(parts) > 2 {
			ct.Image = parts[2]
		}
		out = append(out, ct)
	}
	return out, nil
}

// Command implements Launcher.
func (c *CLI) Command(name string, opts ExecOptions, argv ...string) *exec.Cmd {
	args := []string{"exec"}
	if opts.Interactive {
		args = append(args, "-i")
	}
	if opts.TTY {
		args = append(args, "-t")
	}
	for _, kv := range opts.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, name)
	args = append(args, argv...)
	return exec.Command(c.Binary, args...)
}

var (
	_ Engine   = (*CLI)(nil)
	_ Launcher = (*CLI)(nil)
)
