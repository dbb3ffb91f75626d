package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gluk-w/boxterm/internal/auth"
	"github.com/gluk-w/boxterm/internal/logutil"
	"github.com/gluk-w/boxterm/internal/middleware"
)

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.Credentials.Verify(body.Username, body.Password) {
		h.logger.Warn().Str("username", logutil.SanitizeForLog(body.Username)).Msg("failed login")
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	sessionID, err := h.Sessions.Create(body.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	middleware.SetSessionCookie(w, r, sessionID, h.Sessions.TTL())
	h.logger.Info().Str("username", logutil.SanitizeForLog(body.Username)).Msg("login")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"username": body.Username,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		h.Sessions.Invalidate(cookie.Value)
	}
	middleware.ClearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.Unauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":  sess.Username,
		"expiresAt": sess.ExpiresAt,
	})
}
