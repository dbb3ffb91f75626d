package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type recordedCall struct {
	binary   string
	combined bool
	args     []string
}

func scriptedRunner(calls *[]recordedCall, results ...RunResult) Runner {
	return func(_ context.Context, binary string, combined bool, args ...string) (RunResult, error) {
		*calls = append(*calls, recordedCall{binary: binary, combined: combined, args: args})
		if len(results) == 0 {
			return RunResult{}, nil
		}
		res := results[0]
		results = results[1:]
		return res, nil
	}
}

func TestCLIExists(t *testing.T) {
	var calls []recordedCall
	c := NewCLI("podman", scriptedRunner(&calls,
		RunResult{Stdout: "abc123\n"},
		RunResult{ExitCode: 125, Stderr: "Error: no such container demo"},
		RunResult{ExitCode: 1, Stderr: "permission denied"},
	))
	ctx := context.Background()

	ok, err := c.Exists(ctx, "demo")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}
	ok, err = c.Exists(ctx, "demo")
	if err != nil || ok {
		t.Fatalf("Exists on missing = %v, %v; want false, nil", ok, err)
	}
	if _, err := c.Exists(ctx, "demo"); err == nil {
		t.Fatal("expected error for unrelated inspect failure")
	}

	if calls[0].binary != "podman" {
		t.Errorf("binary = %q, want podman", calls[0].binary)
	}
	want := []string{"container", "inspect", "--format", "{{.Id}}", "demo"}
	if !reflect.DeepEqual(calls[0].args, want) {
		t.Errorf("args = %v, want %v", calls[0].args, want)
	}
}

func TestCLIStatus(t *testing.T) {
	var calls []recordedCall
	c := NewCLI("", scriptedRunner(&calls,
		RunResult{Stdout: "running\n"},
		RunResult{Stdout: "stopped\n"},
		RunResult{ExitCode: 1, Stderr: "Error: No such object: demo"},
	))
	ctx := context.Background()

	for _, want := range []State{StateRunning, StateExited, StateAbsent} {
		got, err := c.Status(ctx, "demo")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if got != want {
			t.Errorf("Status = %q, want %q", got, want)
		}
	}
	if calls[0].binary != "docker" {
		t.Errorf("default binary = %q, want docker", calls[0].binary)
	}
}

func TestRunArgs(t *testing.T) {
	req := RunRequest{
		Name: "demo",
		Spec: CreateSpec{
			Image:   "ubuntu:24.04",
			Memory:  "512m",
			CPUs:    "1.5",
			Network: "sandbox",
			Env:     map[string]string{"B": "2", "A": "1"},
			Ports:   []string{"8080:80"},
		},
		Labels:  map[string]string{LabelManagedBy: ManagedByValue, LabelCommand: "bash -l"},
		Command: IdleCommand,
	}
	want := []string{
		"run", "-d", "--name", "demo",
		"--label", "boxterm.command=bash -l",
		"--label", "managed-by=boxterm",
		"--memory", "512m", "--cpus", "1.5", "--network", "sandbox",
		"-e", "A=1", "-e", "B=2",
		"-p", "8080:80",
		"ubuntu:24.04", "tail", "-f", "/dev/null",
	}
	if got := runArgs(req); !reflect.DeepEqual(got, want) {
		t.Errorf("runArgs =\n%v\nwant\n%v", got, want)
	}
}

func TestCLIRunRequiresImage(t *testing.T) {
	var calls []recordedCall
	c := NewCLI("docker", scriptedRunner(&calls))
	if err := c.Run(context.Background(), RunRequest{Name: "demo"}); err == nil {
		t.Fatal("expected error without image")
	}
	if len(calls) != 0 {
		t.Errorf("runner invoked %d times, want 0", len(calls))
	}
}

func TestCLIExecNonZeroExitIsNotError(t *testing.T) {
	var calls []recordedCall
	c := NewCLI("docker", scriptedRunner(&calls, RunResult{Stdout: "boom\n", ExitCode: 3}))
	res, err := c.Exec(context.Background(), "demo", []string{"sh", "-lc", "exit 3"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ExitCode != 3 || res.Output != "boom\n" {
		t.Errorf("Exec = %+v", res)
	}
	if !calls[0].combined {
		t.Error("exec should capture combined output")
	}
}

func TestCLIExecRunnerError(t *testing.T) {
	c := NewCLI("docker", func(context.Context, string, bool, ...string) (RunResult, error) {
		return RunResult{}, errors.New("executable file not found")
	})
	res, err := c.Exec(context.Background(), "demo", []string{"true"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
}

func TestCLIRemoveIgnoresMissing(t *testing.T) {
	var calls []recordedCall
	c := NewCLI("docker", scriptedRunner(&calls, RunResult{ExitCode: 1, Stderr: "Error: No such container: demo"}))
	if err := c.Remove(context.Background(), "demo"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestCLIInspectLabel(t *testing.T) {
	var calls []recordedCall
	c := NewCLI("docker", scriptedRunner(&calls,
		RunResult{Stdout: "bash -l\n"},
		RunResult{Stdout: "<no value>\n"},
	))
	ctx := context.Background()

	v, err := c.InspectLabel(ctx, "demo", LabelCommand)
	if err != nil || v != "bash -l" {
		t.Fatalf("InspectLabel = %q, %v", v, err)
	}
	v, err = c.InspectLabel(ctx, "demo", LabelCommand)
	if err != nil || v != "" {
		t.Fatalf("InspectLabel missing = %q, %v", v, err)
	}
	if !strings.Contains(calls[0].args[3], `"boxterm.command"`) {
		t.Errorf("format = %q", calls[0].args[3])
	}
}

func TestCLIList(t *testing.T) {
	var calls []recordedCall
	out := "demo\trunning\tubuntu:24.04\nold\texited\talpine\n\n"
	c := NewCLI("docker", scriptedRunner(&calls, RunResult{Stdout: out}))

	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Container{
		{Name: "demo", State: StateRunning, Image: "ubuntu:24.04"},
		{Name: "old", State: StateExited, Image: "alpine"},
	}
	if !reflect.DeepEqual(list, want) {
		t.Errorf("List = %+v, want %+v", list, want)
	}
	if calls[0].args[3] != "label=managed-by=boxterm" {
		t.Errorf("filter = %q", calls[0].args[3])
	}
}

func TestCLICommand(t *testing.T) {
	c := NewCLI("podman", nil)
	cmd := c.Command("demo", ExecOptions{Interactive: true, TTY: true, Env: []string{"TERM=xterm-256color"}}, "bash", "-l")
	want := []string{"podman", "exec", "-i", "-t", "-e", "TERM=xterm-256color", "demo", "bash", "-l"}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("Args = %v, want %v", cmd.Args, want)
	}
}

func TestParseState(t *testing.T) {
	tests := map[string]State{
		"running":    StateRunning,
		"exited":     StateExited,
		"":           StateAbsent,
		"stopped":    StateExited,
		"configured": StateCreated,
		"weird":      StateUnknown,
	}
	for in, want := range tests {
		if got := ParseState(in); got != want {
			t.Errorf("ParseState(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCPUToNanoCPUs(t *testing.T) {
	if got := parseCPUToNanoCPUs("500m"); got != 500_000_000 {
		t.Errorf("500m = %d", got)
	}
	if got := parseCPUToNanoCPUs("2"); got != 2_000_000_000 {
		t.Errorf("2 = %d", got)
	}
}
