package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/arcadia-hq/arcadia-sdk/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteBaseError renders a structured error, falling back to a generic
// internal error envelope for plain errors.
func WriteBaseError(w http.ResponseWriter, status int, err error, meta map[string]string) error {
	if base, ok := serrors.UnwrapBase(err); ok {
		return WriteError(w, status, base.Code, base.Message, meta)
	}
	return WriteError(w, status, "INTERNAL_SERVER_ERROR", "internal server error", meta)
}
