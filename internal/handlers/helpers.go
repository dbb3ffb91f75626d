package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/boxterm/internal/apperr"
	"github.com/gluk-w/boxterm/internal/naming"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError answers with the status of err's kind.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Wrap(apperr.KindValidation, err, "invalid request body")
}

// containerParam returns the validated {name} URL parameter.
func containerParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if !naming.Valid(name) {
		return "", apperr.New(apperr.KindValidation, "invalid container name")
	}
	return name, nil
}
