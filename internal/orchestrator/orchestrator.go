// Package orchestrator makes sure a named container exists and is running
// before work is sent to it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/gluk-w/boxterm/internal/engine"
	"github.com/gluk-w/boxterm/internal/metrics"
)

// Readiness polling defaults.
const (
	DefaultBaseDelay = 100 * time.Millisecond
	DefaultMaxDelay  = 2 * time.Second
	DefaultMaxPolls  = 30
	exitedLogTail    = 200
)

// ErrReadyTimeout is returned when a container never reaches running.
var ErrReadyTimeout = errors.New("timed out waiting for container to start")

var errNotReady = errors.New("container not running yet")

// ExitedError reports a container that stopped while we waited for it.
type ExitedError struct {
	Name  string
	State engine.State
	Logs  string
}

func (e *ExitedError) Error() string {
	logs := strings.TrimSpace(e.Logs)
	if logs == "" {
		return fmt.Sprintf("container %s %s during startup", e.Name, e.State)
	}
	return fmt.Sprintf("container %s %s during startup: %s", e.Name, e.State, logs)
}

// Orchestrator drives container lifecycle through an engine.
type Orchestrator struct {
	engine    engine.Engine
	metrics   *metrics.Metrics
	baseDelay time.Duration
	maxDelay  time.Duration
	maxPolls  int
	onDelay   func(time.Duration)
	logger    zerolog.Logger
}

type Option func(*Orchestrator)

// WithMetrics records readiness waits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithBackoff overrides the readiness polling schedule.
func WithBackoff(base, max time.Duration, polls int) Option {
	return func(o *Orchestrator) {
		o.baseDelay = base
		o.maxDelay = max
		o.maxPolls = polls
	}
}

// WithDelayObserver is called with every delay before it is slept.
func WithDelayObserver(fn func(time.Duration)) Option {
	return func(o *Orchestrator) { o.onDelay = fn }
}

func New(eng engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:    eng,
		baseDelay: DefaultBaseDelay,
		maxDelay:  DefaultMaxDelay,
		maxPolls:  DefaultMaxPolls,
		logger:    log.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxPolls < 1 {
		o.maxPolls = 1
	}
	return o
}

// Engine returns the underlying engine.
func (o *Orchestrator) Engine() engine.Engine { return o.engine }

// Ensure makes name exist and run. A missing container is created detached
// with an idle entry command and defaultCommand recorded as a label, then
// waited on. A stopped one is started.
func (o *Orchestrator) Ensure(ctx context.Context, name, defaultCommand string, spec engine.CreateSpec) error {
	exists, err := o.engine.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("check container %s: %w", name, err)
	}

	if !exists {
		o.logger.Info().Str("container", name).Str("image", spec.Image).Msg("creating container")
		err := o.engine.Run(ctx, engine.RunRequest{
			Name: name,
			Spec: spec,
			Labels: map[string]string{
				engine.LabelManagedBy: engine.ManagedByValue,
				engine.LabelCommand:   defaultCommand,
			},
			Command: engine.IdleCommand,
		})
		if err != nil {
			return fmt.Errorf("create container %s: %w", name, err)
		}
		return o.WaitReady(ctx, name)
	}

	state, err := o.engine.Status(ctx, name)
	if err != nil {
		return fmt.Errorf("status of %s: %w", name, err)
	}
	if state == engine.StateRunning {
		return nil
	}

	o.logger.Info().Str("container", name).Str("state", string(state)).Msg("starting container")
	if err := o.engine.Start(ctx, name); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	return nil
}

func (o *Orchestrator) backoff() retry.Backoff {
	b := retry.NewExponential(o.baseDelay)
	b = retry.WithCappedDuration(o.maxDelay, b)
	b = retry.WithMaxRetries(uint64(o.maxPolls-1), b)
	if o.onDelay == nil {
		return b
	}
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		if !stop {
			o.onDelay(d)
		}
		return d, stop
	})
}

// WaitReady polls the container status until it is running. An exited or
// dead container fails immediately with an *ExitedError carrying its logs.
// Status query errors count as a failed poll.
func (o *Orchestrator) WaitReady(ctx context.Context, name string) error {
	start := time.Now()
	polls := 0
	var lastErr error

	err := retry.Do(ctx, o.backoff(), func(ctx context.Context) error {
		polls++
		state, err := o.engine.Status(ctx, name)
		if err != nil {
			lastErr = err
			o.logger.Debug().Err(err).Str("container", name).Int("poll", polls).Msg("status poll failed")
			return retry.RetryableError(err)
		}
		switch state {
		case engine.StateRunning:
			return nil
		case engine.StateExited, engine.StateDead:
			logs, lerr := o.engine.Logs(ctx, name, exitedLogTail)
			if lerr != nil {
				logs = "(logs unavailable: " + lerr.Error() + ")"
			}
			return &ExitedError{Name: name, State: state, Logs: logs}
		default:
			lastErr = nil
			return retry.RetryableError(errNotReady)
		}
	})

	elapsed := time.Since(start)
	var exited *ExitedError
	switch {
	case err == nil:
		o.metrics.ObserveReady("ready", polls, elapsed)
		o.logger.Info().Str("container", name).Int("polls", polls).Dur("waited", elapsed).Msg("container ready")
		return nil
	case errors.As(err, &exited):
		o.metrics.ObserveReady("exited", polls, elapsed)
		o.logger.Warn().Str("container", name).Str("state", string(exited.State)).Msg("container stopped during startup")
		return err
	case ctx.Err() != nil:
		o.metrics.ObserveReady("canceled", polls, elapsed)
		return fmt.Errorf("wait for %s: %w", name, ctx.Err())
	default:
		o.metrics.ObserveReady("timeout", polls, elapsed)
		o.logger.Warn().Str("container", name).Int("polls", polls).Msg("container readiness timed out")
		if lastErr != nil {
			return fmt.Errorf("%w: %s after %d polls (last error: %v)", ErrReadyTimeout, name, polls, lastErr)
		}
		return fmt.Errorf("%w: %s after %d polls", ErrReadyTimeout, name, polls)
	}
}

// DefaultCommand returns the startup command recorded on name, or "".
func (o *Orchestrator) DefaultCommand(ctx context.Context, name string) (string, error) {
	cmd, err := o.engine.InspectLabel(ctx, name, engine.LabelCommand)
	if err != nil {
		return "", fmt.Errorf("read %s label: %w", engine.LabelCommand, err)
	}
	return strings.TrimSpace(cmd), nil
}
