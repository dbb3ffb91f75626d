// Package execbridge runs one-shot commands inside containers and records
// each run in the container's history.
package execbridge

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/gluk-w/boxterm/internal/apperr"
	"github.com/gluk-w/boxterm/internal/engine"
	"github.com/gluk-w/boxterm/internal/history"
	"github.com/gluk-w/boxterm/internal/logutil"
	"github.com/gluk-w/boxterm/internal/metrics"
	"github.com/gluk-w/boxterm/internal/naming"
)

const (
	DefaultOutputLimit = 16000
	DefaultWorkers     = 4
	TruncationMarker   = "\n…[output truncated]"
	NoOutput           = "(no output)"
)

// Result is what a command produced.
type Result struct {
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

// Bridge executes commands through the engine with at most `workers`
// commands in flight.
type Bridge struct {
	engine      engine.Engine
	history     history.Store
	metrics     *metrics.Metrics
	sem         *semaphore.Weighted
	outputLimit int
	logger      zerolog.Logger
}

type Option func(*Bridge)

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithWorkers bounds concurrent runs. 1 serializes every run server-wide.
func WithWorkers(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithOutputLimit sets the output budget in characters.
func WithOutputLimit(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.outputLimit = n
		}
	}
}

func New(eng engine.Engine, store history.Store, opts ...Option) *Bridge {
	b := &Bridge{
		engine:      eng,
		history:     store,
		sem:         semaphore.NewWeighted(DefaultWorkers),
		outputLimit: DefaultOutputLimit,
		logger:      log.With().Str("component", "exec").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes command in a login shell inside name. The command is
// recorded before it runs and its result after, so every call that passes
// validation leaves exactly two messages. A non-zero exit is a normal result;
// an engine failure is recorded with exit code -1 and returned as an error.
func (b *Bridge) Run(ctx context.Context, name, command string) (Result, error) {
	if !naming.Valid(name) {
		return Result{}, apperr.New(apperr.KindValidation, "invalid container name")
	}
	if strings.TrimSpace(command) == "" {
		return Result{}, apperr.New(apperr.KindValidation, "command is required")
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return Result{}, apperr.Wrap(apperr.KindUpstream, err, "waiting for exec slot")
	}
	defer b.sem.Release(1)

	if _, err := b.history.Append(ctx, name, history.RoleUser, command, history.Extra{}); err != nil {
		return Result{}, apperr.Wrap(apperr.KindUpstream, err, "record command")
	}

	// A started command is never canceled; the engine client cannot stop it
	// inside the container anyway.
	start := time.Now()
	res, execErr := b.engine.Exec(context.WithoutCancel(ctx), name, []string{"sh", "-lc", command})
	elapsed := time.Since(start)

	if execErr != nil {
		b.metrics.ObserveExec("error", elapsed)
		b.logger.Warn().Err(execErr).
			Str("container", name).
			Str("command", logutil.SanitizeForLog(command)).
			Msg("exec failed")
		// Detached from ctx so the transcript stays paired even when the
		// request was canceled.
		if _, err := b.history.Append(context.WithoutCancel(ctx), name, history.RoleAssistant,
			"error: "+execErr.Error(), history.WithExitCode(-1)); err != nil {
			b.logger.Error().Err(err).Str("container", name).Msg("cannot record exec failure")
		}
		return Result{ExitCode: -1}, apperr.Wrap(apperr.KindUpstream, execErr, fmt.Sprintf("exec in %s", name))
	}

	out := Sanitize(res.Output, b.outputLimit)
	outcome := "ok"
	if res.ExitCode != 0 {
		outcome = "nonzero"
	}
	b.metrics.ObserveExec(outcome, elapsed)
	b.logger.Info().
		Str("container", name).
		Str("command", logutil.SanitizeForLog(command)).
		Int("exit_code", res.ExitCode).
		Dur("duration", elapsed).
		Msg("exec finished")

	if _, err := b.history.Append(context.WithoutCancel(ctx), name, history.RoleAssistant, out, history.WithExitCode(res.ExitCode)); err != nil {
		return Result{ExitCode: res.ExitCode, Output: out}, apperr.Wrap(apperr.KindUpstream, err, "record result")
	}
	return Result{ExitCode: res.ExitCode, Output: out}, nil
}

// Sanitize strips terminal escape sequences, trims surrounding whitespace
// and truncates to limit characters followed by TruncationMarker. Empty
// output becomes NoOutput.
func Sanitize(raw string, limit int) string {
	s := strings.TrimSpace(ansi.Strip(raw))
	if s == "" {
		return NoOutput
	}
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		n := 0
		for i := range s {
			if n == limit {
				s = s[:i]
				break
			}
			n++
		}
		s += TruncationMarker
	}
	return s
}
