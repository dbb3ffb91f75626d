package terminal

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gluk-w/boxterm/internal/engine"
)

// Mode is a terminal bridging strategy.
type Mode string

const (
	// ModeAuto tries pty, then shim, then pipe.
	ModeAuto Mode = "auto"
	// ModePTY runs `<engine> exec -it` on a host pseudo-terminal.
	ModePTY Mode = "pty"
	// ModeShim allocates the pseudo-terminal inside the container with
	// python3 or script(1).
	ModeShim Mode = "shim"
	// ModePipe is a plain shell without a terminal.
	ModePipe Mode = "pipe"
)

// ParseMode validates s. The empty string means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModePTY, ModeShim, ModePipe:
		return m, nil
	default:
		return "", fmt.Errorf("unknown terminal mode %q", s)
	}
}

const loginShell = `if command -v bash >/dev/null 2>&1; then exec bash -l; else exec sh -l; fi`

const shimProbe = `command -v python3 || command -v script`

const pythonPTY = `import pty, sys; pty.spawn(sys.argv[1:])`

// Spawner starts bridging subprocesses, choosing a strategy per session.
type Spawner struct {
	launcher     engine.Launcher
	engine       engine.Engine
	mode         Mode
	ptyAvailable func() bool
	logger       zerolog.Logger
}

func NewSpawner(launcher engine.Launcher, eng engine.Engine, mode Mode) *Spawner {
	if mode == "" {
		mode = ModeAuto
	}
	return &Spawner{
		launcher:     launcher,
		engine:       eng,
		mode:         mode,
		ptyAvailable: hostPTYAvailable,
		logger:       log.With().Str("component", "terminal").Logger(),
	}
}

func hostPTYAvailable() bool {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return false
	}
	tty.Close()
	ptmx.Close()
	return true
}

// startupScript is the shell script run inside the container.
func startupScript(command string) string {
	if strings.TrimSpace(command) == "" {
		return loginShell
	}
	return command
}

func terminalEnv(cols, rows int) []string {
	return []string{
		"TERM=xterm-256color",
		"COLUMNS=" + strconv.Itoa(cols),
		"LINES=" + strconv.Itoa(rows),
	}
}

// Spawn starts a shell in container running command (a login shell when
// empty), sized cols x rows, and reports the strategy used.
func (s *Spawner) Spawn(ctx context.Context, container, command string, cols, rows int) (Process, Mode, error) {
	script := startupScript(command)

	if s.mode == ModeAuto || s.mode == ModePTY {
		if s.ptyAvailable() {
			p, err := s.spawnPTY(container, script, cols, rows)
			if err == nil {
				return p, ModePTY, nil
			}
			if s.mode == ModePTY {
				return nil, "", err
			}
			s.logger.Warn().Err(err).Str("container", container).Msg("host pty failed, falling back")
		} else if s.mode == ModePTY {
			return nil, "", fmt.Errorf("host pty unavailable")
		}
	}

	if s.mode == ModeAuto || s.mode == ModeShim {
		argv, ok := s.shimArgv(ctx, container, script, cols, rows)
		if ok {
			cmd := s.launcher.Command(container, engine.ExecOptions{Interactive: true, Env: terminalEnv(cols, rows)}, argv...)
			p, err := startPipe(cmd)
			if err == nil {
				return p, ModeShim, nil
			}
			if s.mode == ModeShim {
				return nil, "", fmt.Errorf("start shim: %w", err)
			}
			s.logger.Warn().Err(err).Str("container", container).Msg("pty shim failed, falling back")
		} else if s.mode == ModeShim {
			return nil, "", fmt.Errorf("no pty shim (python3 or script) in container %s", container)
		}
	}

	cmd := s.launcher.Command(container, engine.ExecOptions{Interactive: true, Env: terminalEnv(cols, rows)}, "sh", "-c", script)
	p, err := startPipe(cmd)
	if err != nil {
		return nil, "", fmt.Errorf("start shell: %w", err)
	}
	return p, ModePipe, nil
}

func (s *Spawner) spawnPTY(container, script string, cols, rows int) (Process, error) {
	cmd := s.launcher.Command(container,
		engine.ExecOptions{Interactive: true, TTY: true, Env: terminalEnv(cols, rows)},
		"sh", "-c", script)
	p, err := startPTY(cmd, cols, rows)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	return p, nil
}

// shimArgv probes the container for a pty helper and builds the command
// that runs script under it.
func (s *Spawner) shimArgv(ctx context.Context, container, script string, cols, rows int) ([]string, bool) {
	res, err := s.engine.Exec(ctx, container, []string{"sh", "-c", shimProbe})
	if err != nil || res.ExitCode != 0 {
		return nil, false
	}

	inner := fmt.Sprintf("stty cols %d rows %d 2>/dev/null; %s", cols, rows, script)
	for _, line := range strings.Split(res.Output, "\n") {
		switch path.Base(strings.TrimSpace(line)) {
		case "python3":
			return []string{"python3", "-c", pythonPTY, "sh", "-c", inner}, true
		case "script":
			return []string{"script", "-qfc", inner, "/dev/null"}, true
		}
	}
	return nil, false
}
