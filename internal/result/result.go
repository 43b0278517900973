// Package result defines the typed outcome of one scripting-host invocation
// and the parser that produces it from raw subprocess output. Every failure
// mode crossing the bridge boundary is a classified Failure value; raw host
// diagnostics are never surfaced uncategorized.
package result

import (
	"encoding/json"
	"fmt"
)

// Code identifies a failure category.
type Code string

const (
	CodeNotRunning       Code = "not_running"
	CodePermissionDenied Code = "permission_denied"
	CodeTimeout          Code = "timeout"
	CodeScriptTooLarge   Code = "script_too_large"
	CodeParseFailure     Code = "parse_failure"
	CodeValidation       Code = "validation_error"
	CodeApplication      Code = "application_error"
	CodeBridge           Code = "bridge_failure"
	CodeSchemaMismatch   Code = "schema_mismatch"
)

// Recoverable reports whether a caller may retry this category with backoff.
// PermissionDenied and Validation need external remediation first; the rest
// of the non-recoverable set indicates a defect in the request or the script.
func (c Code) Recoverable() bool {
	switch c {
	case CodeTimeout, CodeNotRunning, CodeApplication:
		return true
	default:
		return false
	}
}

// Failure carries one classified failure across the subsystem boundary.
// It implements error so it can travel ordinary error paths.
type Failure struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Context     string `json:"context,omitempty"` // "primary" or "bridge"
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
}

func (f *Failure) Error() string {
	if f.Context != "" && f.Context != "primary" {
		return fmt.Sprintf("%s (%s): %s", f.Code, f.Context, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewFailure builds a Failure with the category's recoverability and default
// remediation suggestion filled in.
func NewFailure(code Code, message string) *Failure {
	return &Failure{
		Code:        code,
		Message:     message,
		Context:     "primary",
		Recoverable: code.Recoverable(),
		Suggestion:  defaultSuggestion(code),
	}
}

// Failuref is NewFailure with a format string.
func Failuref(code Code, format string, args ...interface{}) *Failure {
	return NewFailure(code, fmt.Sprintf(format, args...))
}

func defaultSuggestion(code Code) string {
	switch code {
	case CodeNotRunning:
		return "Launch OmniFocus and retry; the scripting host only answers while the app is running."
	case CodePermissionDenied:
		return "Grant automation access in System Settings > Privacy & Security > Automation, then retry."
	case CodeTimeout:
		return "Retry with a smaller query or a longer timeout; if this was a write, verify its effect before retrying."
	case CodeScriptTooLarge:
		return "Reduce the request size (fewer items per batch, shorter notes); the host truncates oversized scripts."
	case CodeParseFailure:
		return "Output was truncated or malformed; narrow the query or reduce requested fields and retry."
	case CodeValidation:
		return "Fix the rejected parameter and resubmit; nothing was sent to the application."
	case CodeApplication:
		return "Check that the referenced item still exists; transient application errors can be retried."
	case CodeBridge:
		return "The nested evaluation context rejected the call; retry, or use the primary-only variant if one exists."
	case CodeSchemaMismatch:
		return "The application returned an unexpected shape; this usually indicates a version mismatch."
	default:
		return ""
	}
}

// Result is the outcome of one invocation. Exactly one of Data or Fail is
// set: a successful parse yields the raw payload, anything else yields a
// classified Failure.
type Result struct {
	Data json.RawMessage `json:"data,omitempty"`
	Fail *Failure        `json:"failure,omitempty"`
}

// Success wraps a payload.
func Success(data json.RawMessage) Result {
	return Result{Data: data}
}

// Failed wraps a failure.
func Failed(f *Failure) Result {
	return Result{Fail: f}
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.Fail == nil
}

// DecodeInto unmarshals a successful payload into v.
func (r Result) DecodeInto(v interface{}) error {
	if r.Fail != nil {
		return r.Fail
	}
	if len(r.Data) == 0 {
		return NewFailure(CodeParseFailure, "empty payload")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return Failuref(CodeSchemaMismatch, "payload does not decode: %v", err)
	}
	return nil
}
