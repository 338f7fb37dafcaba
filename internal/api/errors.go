package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBridgeError maps an error from the bridge service onto a response.
// Codes are the command acknowledgement codes in lower case.
func writeBridgeError(w http.ResponseWriter, err error) {
	if errors.Is(err, openwebnet.ErrUnknownThing) || errors.Is(err, openwebnet.ErrUnknownBridge) {
		writeNotFound(w, err.Error())
		return
	}

	code := openwebnet.AckCode(err)
	status := http.StatusBadGateway
	switch code {
	case openwebnet.ErrCodeInvalidCommand, openwebnet.ErrCodeUnsupportedChannel:
		status = http.StatusBadRequest
	case openwebnet.ErrCodeNotConfigured:
		status = http.StatusConflict
	case openwebnet.ErrCodeBridgeOffline:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, strings.ToLower(code), err.Error())
}
