package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/apperr"
)

const unexpectedMessage = "an unexpected error occurred"

// respondJSON writes the response envelope: success, an optional message and
// an optional payload under key.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, key string, payload any) {
	body := map[string]any{"success": status < http.StatusBadRequest}
	if key != "" {
		body[key] = payload
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("encode response")
	}
}

func respondMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"success": status < http.StatusBadRequest, "message": message}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("encode response")
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalid, apperr.KindInvalidState:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err to a status code. Unexpected failures are logged and
// answered with a generic message that reveals nothing about the cause.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindUnexpected {
		respondMessage(w, r, statusFor(appErr.Kind), appErr.Message)
		return
	}

	zerolog.Ctx(r.Context()).Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	respondMessage(w, r, http.StatusInternalServerError, unexpectedMessage)
}

// decodeBody decodes a JSON body into dst. An empty body is accepted when
// optional is set and leaves dst untouched.
func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Invalid("invalid request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Invalid("invalid %s", name)
	}
	return id, nil
}

// queryInt returns the integer query parameter, or 0 when it is absent or
// malformed; services replace zero values with their defaults.
func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
