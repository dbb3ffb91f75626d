package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gluk-w/boxterm/internal/apperr"
	"github.com/gluk-w/boxterm/internal/engine"
	"github.com/gluk-w/boxterm/internal/logutil"
	"github.com/gluk-w/boxterm/internal/naming"
)

type sessionSummary struct {
	Name         string       `json:"name"`
	Status       engine.State `json:"status"`
	Image        string       `json:"image"`
	UpdatedAt    *time.Time   `json:"updatedAt"`
	MessageCount int          `json:"messageCount"`
}

// ListSessions returns managed containers together with every name that
// has stored history, most recently used first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	containers, err := h.engine().List(ctx)
	if err != nil {
		h.writeAppError(w, r, apperr.Wrap(apperr.KindUpstream, err, "list containers"))
		return
	}
	names, err := h.History.ListNames(ctx)
	if err != nil {
		h.writeAppError(w, r, apperr.Wrap(apperr.KindUpstream, err, "list history"))
		return
	}

	byName := make(map[string]*sessionSummary)
	for _, c := range containers {
		if !naming.Valid(c.Name) {
			continue
		}
		byName[c.Name] = &sessionSummary{Name: c.Name, Status: c.State, Image: c.Image}
	}
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			byName[n] = &sessionSummary{Name: n, Status: engine.StateAbsent}
		}
	}

	sessions := make([]sessionSummary, 0, len(byName))
	for name, s := range byName {
		rec, err := h.History.Load(ctx, name)
		if err != nil {
			h.logger.Warn().Err(err).Str("container", name).Msg("cannot load history for listing")
		} else {
			s.UpdatedAt = rec.UpdatedAt
			s.MessageCount = len(rec.Messages)
		}
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i].UpdatedAt, sessions[j].UpdatedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return sessions[i].Name < sessions[j].Name
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// CreateSession ensures a container exists and runs. Without a name one is
// generated.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = naming.Generate()
	}
	if !naming.Valid(name) {
		writeError(w, http.StatusBadRequest, "invalid container name")
		return
	}

	if err := h.Orchestrator.Ensure(r.Context(), name, h.DefaultCommand, h.CreateSpec); err != nil {
		h.writeAppError(w, r, apperr.Wrap(apperr.KindUpstream, err, "ensure container"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	name, err := containerParam(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	rec, err := h.History.Load(r.Context(), name)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":     name,
		"messages": rec.Messages,
	})
}

// RunCommand runs a one-shot command in the container, creating or
// starting it first.
func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	name, err := containerParam(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	var body struct {
		Command string `json:"command"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	ctx := r.Context()
	if err := h.Orchestrator.Ensure(ctx, name, h.DefaultCommand, h.CreateSpec); err != nil {
		h.writeAppError(w, r, apperr.Wrap(apperr.KindUpstream, err, "ensure container"))
		return
	}

	res, err := h.Exec.Run(ctx, name, body.Command)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RemoveSession closes the container's terminals and removes the container.
// History is kept.
func (h *Handler) RemoveSession(w http.ResponseWriter, r *http.Request) {
	name, err := containerParam(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.removeContainer(r, name); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": true, "name": name})
}

// RemoveSessionWithHistory removes the container, if any, and its history.
func (h *Handler) RemoveSessionWithHistory(w http.ResponseWriter, r *http.Request) {
	name, err := containerParam(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.removeContainer(r, name); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.History.Remove(r.Context(), name); err != nil {
		h.writeAppError(w, r, apperr.Wrap(apperr.KindUpstream, err, "remove history"))
		return
	}
	h.logger.Info().Str("container", logutil.SanitizeForLog(name)).Msg("history removed")
	writeJSON(w, http.StatusOK, map[string]interface{}{"removedHistory": true, "name": name})
}

func (h *Handler) removeContainer(r *http.Request, name string) error {
	if n := h.Terminals.CloseAllForContainer(name); n > 0 {
		h.logger.Info().Str("container", name).Int("terminals", n).Msg("closed terminals of removed container")
	}
	if err := h.engine().Remove(r.Context(), name); err != nil {
		return apperr.Wrap(apperr.KindUpstream, err, "remove container")
	}
	h.logger.Info().Str("container", name).Msg("container removed")
	return nil
}

func (h *Handler) ListTerminals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"terminals": h.Terminals.List()})
}
