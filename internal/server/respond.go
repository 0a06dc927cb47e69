package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/vocabox/pkg/audio/media"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("server: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// isMalformedPayload reports whether err stems from bad base64.
func isMalformedPayload(err error) bool {
	var cie base64.CorruptInputError
	return errors.As(err, &cie)
}

// payloadStatus maps a pipeline error to an HTTP status.
func payloadStatus(err error) int {
	if isMalformedPayload(err) || errors.Is(err, media.ErrInvalidName) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
