package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes caps request bodies; order submissions are small.
const maxBodyBytes = 1 << 20

// errorResponse is the error envelope every non-2xx response uses.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode failures here mean the client went away; the status line
	// is already written, so there is nothing left to report.
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error envelope with a machine-readable code and
// a human-readable message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorResponse{Error: code, Message: message})
}

// ParseJSON decodes the request body into v. The body must be a single
// JSON document with no unknown fields, sent with an application/json
// Content-Type, and no larger than maxBodyBytes.
func ParseJSON(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("Request body exceeds %d bytes", maxBodyBytes)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("Request body must not be empty")
		default:
			return fmt.Errorf("Request body must be valid JSON: %v", err)
		}
	}
	// Reject trailing garbage after the document.
	if dec.More() {
		return fmt.Errorf("Request body must contain a single JSON document")
	}
	return nil
}
