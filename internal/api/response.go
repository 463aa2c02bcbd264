package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// errorBody is the error envelope payload.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a success envelope {"data": data} with the given status.
// Uses buffer-first strategy so headers are only sent after successful
// encoding; an encoding failure can still return a proper 500.
func WriteJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	writeEnvelope(w, status, map[string]any{"data": data}, logger)
}

// WriteError writes an error envelope {"error": {"code", "message"}}.
// code is a stable machine-readable identifier; message is human-readable
// and must never contain internal error text.
func WriteError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	writeEnvelope(w, status, map[string]any{"error": errorBody{Code: code, Message: message}}, logger)
}

func writeEnvelope(w http.ResponseWriter, status int, envelope any, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(envelope); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}
