package handlers

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gluk-w/boxterm/internal/auth"
	"github.com/gluk-w/boxterm/internal/engine"
	"github.com/gluk-w/boxterm/internal/execbridge"
	"github.com/gluk-w/boxterm/internal/history"
	"github.com/gluk-w/boxterm/internal/orchestrator"
	"github.com/gluk-w/boxterm/internal/terminal"
)

// Handler serves the HTTP and WebSocket API. All state lives in the
// injected components.
type Handler struct {
	Sessions     *auth.SessionStore
	Credentials  auth.Credentials
	History      history.Store
	Orchestrator *orchestrator.Orchestrator
	Exec         *execbridge.Bridge
	Terminals    *terminal.Manager

	// CreateSpec and DefaultCommand are used when a container is created.
	CreateSpec     engine.CreateSpec
	DefaultCommand string

	// OriginPatterns lists extra hosts allowed to open terminal WebSockets
	// from a browser. Same-origin requests are always allowed.
	OriginPatterns []string

	logger zerolog.Logger
}

// New returns h ready to serve.
func New(h Handler) *Handler {
	h.logger = log.With().Str("component", "api").Logger()
	return &h
}

func (h *Handler) engine() engine.Engine {
	return h.Orchestrator.Engine()
}
