// Package terminal bridges interactive shells inside containers to
// WebSocket clients. A Manager owns the registry of live sessions and
// enforces the session cap.
package terminal

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gluk-w/boxterm/internal/apperr"
	"github.com/gluk-w/boxterm/internal/metrics"
)

const (
	DefaultMaxSessions = 20
	DefaultCols        = 120
	DefaultRows        = 36
	MinCols            = 40
	MinRows            = 12
	MaxDimension       = 500
	DefaultGrace       = 2 * time.Second
)

// ErrCapacity is returned by Reserve when the session cap is reached.
var ErrCapacity = apperr.New(apperr.KindCapacity, "too many terminal sessions")

// Clamp bounds a terminal size to the supported range.
func Clamp(cols, rows int) (int, int) {
	return clamp(cols, MinCols, MaxDimension), clamp(rows, MinRows, MaxDimension)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseSize reads cols and rows query values. Missing or malformed values
// take the defaults; the result is clamped.
func ParseSize(cols, rows string) (int, int) {
	c, err := strconv.Atoi(cols)
	if err != nil {
		c = DefaultCols
	}
	r, err := strconv.Atoi(rows)
	if err != nil {
		r = DefaultRows
	}
	return Clamp(c, r)
}

// Manager tracks live terminal sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	reserved int

	limit   int
	grace   time.Duration
	spawner *Spawner
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type Option func(*Manager)

func WithLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithGrace sets how long a process gets between SIGTERM and SIGKILL.
func WithGrace(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(spawner *Spawner, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		limit:    DefaultMaxSessions,
		grace:    DefaultGrace,
		spawner:  spawner,
		logger:   log.With().Str("component", "terminal").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reservation holds one admission slot until it is released or consumed
// by Open.
type Reservation struct {
	m    *Manager
	once sync.Once
}

// Release gives the slot back. Only the first call counts.
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.m.mu.Lock()
		r.m.reserved--
		r.m.mu.Unlock()
	})
}

// Reserve takes an admission slot, or fails with ErrCapacity when live
// sessions plus pending reservations already reach the limit.
func (m *Manager) Reserve() (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions)+m.reserved >= m.limit {
		m.metrics.TerminalRejected()
		m.logger.Warn().Int("limit", m.limit).Msg("terminal session cap reached")
		return nil, ErrCapacity
	}
	m.reserved++
	return &Reservation{m: m}, nil
}

// Open spawns a shell in container and registers the session, consuming
// res. On failure the reservation is released.
func (m *Manager) Open(ctx context.Context, res *Reservation, container, command string, cols, rows int) (*Session, error) {
	cols, rows = Clamp(cols, rows)
	proc, mode, err := m.spawner.Spawn(ctx, container, command, cols, rows)
	if err != nil {
		res.Release()
		return nil, apperr.Wrap(apperr.KindUpstream, err, "start terminal")
	}

	s := &Session{
		ID:            uuid.NewString(),
		ContainerName: container,
		Mode:          mode,
		CreatedAt:     time.Now().UTC(),
		proc:          proc,
		manager:       m,
		cols:          cols,
		rows:          rows,
		output:        make(chan []byte, outputBuffer),
		pumped:        make(chan struct{}),
		exited:        make(chan struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	res.Release()

	m.metrics.SetTerminalSessions(n)
	m.metrics.TerminalOpened(string(mode))
	m.logger.Info().
		Str("session", s.ID).
		Str("container", container).
		Str("mode", string(mode)).
		Int("cols", cols).
		Int("rows", rows).
		Msg("terminal session opened")

	s.start()
	return s, nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		m.metrics.SetTerminalSessions(n)
		m.logger.Info().Str("session", s.ID).Str("container", s.ContainerName).Msg("terminal session closed")
	}
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns live sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) snapshot(match func(*Session) bool) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if match(s) {
			out = append(out, s)
		}
	}
	return out
}

func closeAll(sessions []*Session) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}

// CloseAllForContainer closes every session attached to container and
// returns how many there were.
func (m *Manager) CloseAllForContainer(container string) int {
	sessions := m.snapshot(func(s *Session) bool { return s.ContainerName == container })
	closeAll(sessions)
	return len(sessions)
}

// Shutdown closes all sessions.
func (m *Manager) Shutdown() {
	sessions := m.snapshot(func(*Session) bool { return true })
	if len(sessions) > 0 {
		m.logger.Info().Int("sessions", len(sessions)).Msg("closing terminal sessions")
	}
	closeAll(sessions)
}
