package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/arena"
)

// maxBodyBytes caps request bodies. Every payload is a handful of ids.
const maxBodyBytes = 16 << 10

var errInvalidJSON = errors.New("invalid JSON")

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// statusFor maps an arena failure category to its HTTP status.
func statusFor(kind arena.Kind) int {
	switch kind {
	case arena.KindValidation:
		return http.StatusBadRequest
	case arena.KindAuth:
		return http.StatusUnauthorized
	case arena.KindConflict:
		return http.StatusConflict
	case arena.KindGone:
		return http.StatusGone
	case arena.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := arena.KindOf(err)
	h.metrics.IncRejected(string(kind))

	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "Internal server error."
	} else {
		log.Debug().
			Err(err).
			Str("kind", string(kind)).
			Str("path", r.URL.Path).
			Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeInvalidJSON(w http.ResponseWriter, err error) {
	h.metrics.IncRejected(string(arena.KindValidation))
	log.Debug().Err(err).Msg("invalid request body")
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON."})
}

// decode reads a single JSON object from the request body.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return nil
}
