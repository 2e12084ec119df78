package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/lock"
	"github.com/forgellm/forge/internal/supervisor"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound  = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeParseFailed     = "PARSE_FAILED"
	ErrCodeStoreFailed     = "STORE_FAILED"
	ErrCodeLockHeld        = "LOCK_HELD"
	ErrCodeBusy            = "SUPERVISOR_BUSY"
	ErrCodeLaunchFailed    = "LAUNCH_FAILED"
	ErrCodeCommandFailed   = "COMMAND_FAILED"
	ErrCodeUnknown         = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	env := JSONEnvelope{
		Success: true,
		Data:    data,
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	env := JSONEnvelope{
		Success: false,
		Error:   ErrorToJSON(err),
	}
	return writeJSONEnvelope(w, env)
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var fe *errors.Error
	if stderrors.As(err, &fe) {
		code := mapErrorCode(fe.Code, fe.Message)
		if stderrors.Is(err, supervisor.ErrBusy) {
			code = ErrCodeBusy
		}
		return &JSONError{
			Code:       code,
			Message:    fe.Message,
			Suggestion: fe.Suggestion,
		}
	}

	if stderrors.Is(err, lock.ErrLocked) {
		return &JSONError{Code: ErrCodeLockHeld, Message: err.Error()}
	}

	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(internalCode, message string) string {
	switch internalCode {
	case errors.ErrConfig:
		// Distinguish between not found and invalid
		msgLower := strings.ToLower(message)
		if strings.Contains(msgLower, "config file not found") || strings.Contains(msgLower, "specified config file not found") {
			return ErrCodeConfigNotFound
		}
		if strings.Contains(msgLower, "no session") {
			return ErrCodeSessionNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrParse:
		return ErrCodeParseFailed
	case errors.ErrStore:
		return ErrCodeStoreFailed
	case errors.ErrLock:
		return ErrCodeLockHeld
	case errors.ErrLaunch:
		return ErrCodeLaunchFailed
	case errors.ErrExec:
		return ErrCodeCommandFailed
	}
	return ErrCodeUnknown
}
