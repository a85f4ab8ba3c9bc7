package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/vaultrun/internal/apperrors"
)

// decodeJSON reads and decodes a JSON request body into dst, rejecting
// unknown fields the way the teacher's contracts are parsed strictly.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("httpapi: decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(requestIDContextKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// writeAppError translates an internal/apperrors-classified error into the
// §7 status table and an error response, centralizing per-component
// translation the way spec §7 requires.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	code := "internal_error"
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		code = "validation_error"
	case errors.Is(err, apperrors.ErrAuth):
		code = "authentication_error"
	case errors.Is(err, apperrors.ErrTransient):
		code = "transient_error"
	case errors.Is(err, apperrors.ErrPolicyRejected):
		code = "policy_rejected"
	case errors.Is(err, apperrors.ErrIntegrityViolation):
		code = "integrity_violation"
	}
	writeError(w, r, status, code, err.Error())
}
