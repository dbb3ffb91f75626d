// Package engine is the narrow verb set boxterm uses to drive a container
// engine: exists, status, start, run, exec, remove, logs, inspect-label and
// list.
//
// Two implementations are provided: [CLI] shells out to a docker-compatible
// binary (docker or podman) and [Docker] talks to the Docker Engine API.
// [CLI] also implements [Launcher], which terminal bridges use to spawn
// long-lived exec subprocesses.
package engine

import (
	"context"
	"os/exec"
)

// Labels stamped on containers created by boxterm.
const (
	LabelManagedBy = "managed-by"
	ManagedByValue = "boxterm"
	LabelCommand   = "boxterm.command"
)

// IdleCommand keeps a detached container alive without doing any work.
var IdleCommand = []string{"tail", "-f", "/dev/null"}

// State is a container status as reported by the engine.
type State string

const (
	StateAbsent     State = "absent"
	StateCreated    State = "created"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StatePaused     State = "paused"
	StateExited     State = "exited"
	StateDead       State = "dead"
	StateRemoving   State = "removing"
	StateUnknown    State = "unknown"
)

// ParseState normalizes an engine status string.
func ParseState(s string) State {
	switch State(s) {
	case StateCreated, StateRunning, StateRestarting, StatePaused,
		StateExited, StateDead, StateRemoving, StateAbsent:
		return State(s)
	case "":
		return StateAbsent
	case "stopped": // podman
		return StateExited
	case "configured": // podman
		return StateCreated
	default:
		return StateUnknown
	}
}

// CreateSpec describes how new containers are created.
type CreateSpec struct {
	Image   string            `yaml:"image"`
	Memory  string            `yaml:"memory"`
	CPUs    string            `yaml:"cpus"`
	Network string            `yaml:"network"`
	Workdir string            `yaml:"workdir"`
	User    string            `yaml:"user"`
	Env     map[string]string `yaml:"env"`
	Ports   []string          `yaml:"ports"`
}

// RunRequest is the input to Engine.Run.
type RunRequest struct {
	Name    string
	Spec    CreateSpec
	Labels  map[string]string
	Command []string
}

// ExecResult is the combined output and exit code of a one-shot exec.
type ExecResult struct {
	Output   string
	ExitCode int
}

// Container is one entry returned by Engine.List.
type Container struct {
	Name  string
	State State
	Image string
}

// Engine is the verb set used by the orchestrator, the exec bridge and the
// gateway.
type Engine interface {
	Name() string
	Exists(ctx context.Context, name string) (bool, error)
	Status(ctx context.Context, name string) (State, error)
	Start(ctx context.Context, name string) error
	Run(ctx context.Context, req RunRequest) error
	// Exec runs argv in the container and returns its combined output. A
	// non-zero exit code is not an error.
	Exec(ctx context.Context, name string, argv []string) (ExecResult, error)
	Remove(ctx context.Context, name string) error
	Logs(ctx context.Context, name string, tail int) (string, error)
	InspectLabel(ctx context.Context, name, label string) (string, error)
	// List returns the containers labelled managed-by=boxterm.
	List(ctx context.Context) ([]Container, error)
}

// ExecOptions controls an interactive exec subprocess.
type ExecOptions struct {
	Interactive bool
	TTY         bool
	Env         []string
}

// Launcher builds the host command that execs argv inside a container. The
// returned command is not started.
type Launcher interface {
	Command(name string, opts ExecOptions, argv ...string) *exec.Cmd
}
