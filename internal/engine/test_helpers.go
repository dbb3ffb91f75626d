package engine

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
)

// FakeContainer is the state Fake keeps per container.
type FakeContainer struct {
	State  State
	Image  string
	Labels map[string]string
}

// Fake is an in-memory Engine and Launcher for tests.
type Fake struct {
	mu         sync.Mutex
	containers map[string]*FakeContainer
	statuses   map[string][]State
	calls      []string

	// StatusErrs are returned (one per call) by Status before any state.
	StatusErrs map[string][]error
	// RunState is the state a container has right after Run. Defaults to running.
	RunState State
	RunErr   error
	StartErr error
	ExecErr  error
	LogsText string
	// ExecFunc overrides the default exec behavior.
	ExecFunc func(name string, argv []string) (ExecResult, error)
	// CommandFunc overrides the command built by Command. By default the
	// command is `cat`, which echoes terminal input back as output.
	CommandFunc func(name string, opts ExecOptions, argv ...string) *exec.Cmd
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*FakeContainer),
		statuses:   make(map[string][]State),
		StatusErrs: make(map[string][]error),
		RunState:   StateRunning,
	}
}

// Put registers a container in the given state.
func (f *Fake) Put(name string, state State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = &FakeContainer{State: state, Image: "fake:latest", Labels: map[string]string{}}
}

// QueueStatus makes the next Status calls for name return states in order.
func (f *Fake) QueueStatus(name string, states ...State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[name] = append(f.statuses[name], states...)
}

// SetRunErr changes RunErr while the fake may be in use.
func (f *Fake) SetRunErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RunErr = err
}

// Container returns a copy of the stored container, if any.
func (f *Fake) Container(name string) (FakeContainer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return FakeContainer{}, false
	}
	return *c, true
}

// Calls returns the verbs invoked so far, formatted as "verb name".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many recorded calls start with prefix.
func (f *Fake) CountCalls(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *Fake) record(verb, name string) {
	f.calls = append(f.calls, verb+" "+name)
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exists", name)
	_, ok := f.containers[name]
	return ok, nil
}

func (f *Fake) Status(_ context.Context, name string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("status", name)

	if errs := f.StatusErrs[name]; len(errs) > 0 {
		f.StatusErrs[name] = errs[1:]
		return StateUnknown, errs[0]
	}
	if q := f.statuses[name]; len(q) > 0 {
		f.statuses[name] = q[1:]
		if c, ok := f.containers[name]; ok {
			c.State = q[0]
		}
		return q[0], nil
	}
	c, ok := f.containers[name]
	if !ok {
		return StateAbsent, nil
	}
	return c.State, nil
}

func (f *Fake) Start(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start", name)
	if f.StartErr != nil {
		return f.StartErr
	}
	c, ok := f.containers[name]
	if !ok {
		return fmt.Errorf("no such container: %s", name)
	}
	c.State = StateRunning
	return nil
}

func (f *Fake) Run(_ context.Context, req RunRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("run", req.Name)
	if f.RunErr != nil {
		return f.RunErr
	}
	labels := make(map[string]string, len(req.Labels))
	for k, v := range req.Labels {
		labels[k] = v
	}
	f.containers[req.Name] = &FakeContainer{State: f.RunState, Image: req.Spec.Image, Labels: labels}
	return nil
}

func (f *Fake) Exec(_ context.Context, name string, argv []string) (ExecResult, error) {
	f.mu.Lock()
	f.record("exec", name)
	fn, execErr := f.ExecFunc, f.ExecErr
	f.mu.Unlock()

	if execErr != nil {
		return ExecResult{ExitCode: -1}, execErr
	}
	if fn != nil {
		return fn(name, argv)
	}
	cmd := strings.Join(argv, " ")
	if len(argv) == 3 && argv[0] == "sh" && argv[1] == "-lc" {
		cmd = argv[2]
	}
	if rest, ok := strings.CutPrefix(cmd, "echo "); ok {
		return ExecResult{Output: rest + "\n", ExitCode: 0}, nil
	}
	if cmd == "true" {
		return ExecResult{}, nil
	}
	return ExecResult{Output: "sh: " + cmd + ": not found\n", ExitCode: 127}, nil
}

func (f *Fake) Remove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove", name)
	delete(f.containers, name)
	return nil
}

func (f *Fake) Logs(_ context.Context, name string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("logs", name)
	return f.LogsText, nil
}

func (f *Fake) InspectLabel(_ context.Context, name, label string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect-label", name)
	c, ok := f.containers[name]
	if !ok {
		return "", fmt.Errorf("no such container: %s", name)
	}
	return c.Labels[label], nil
}

func (f *Fake) List(_ context.Context) ([]Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Container, 0, len(f.containers))
	for name, c := range f.containers {
		out = append(out, Container{Name: name, State: c.State, Image: c.Image})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Command implements Launcher.
func (f *Fake) Command(name string, opts ExecOptions, argv ...string) *exec.Cmd {
	f.mu.Lock()
	f.record("command", name)
	fn := f.CommandFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(name, opts, argv...)
	}
	return exec.Command("cat")
}

var (
	_ Engine   = (*Fake)(nil)
	_ Launcher = (*Fake)(nil)
)
