package result

import (
	"encoding/json"
	"strings"
)

// Sentinels framing the structured payload on the host's stdout. Scripts
// emit them on their own lines; everything outside the frame is diagnostic
// text and is never treated as payload.
const (
	BeginSentinel = "-----BEGIN FOCUSBRIDGE RESULT-----"
	EndSentinel   = "-----END FOCUSBRIDGE RESULT-----"
)

// Raw is the subset of subprocess output the parser consumes. The executor
// fills it; keeping it here leaves the parser free of process-level imports.
type Raw struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool // either output channel hit its cap
}

// envelope is the JSON object every generated script returns inside the
// sentinel frame.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// Parse turns raw host output into a classified Result. Classification
// order matters: executor-level conditions (timeout, truncation) are
// decided before the payload is trusted, and script-emitted error
// envelopes are classified before any schema check runs.
func Parse(raw Raw, schema *Schema) Result {
	if raw.TimedOut {
		return Failed(NewFailure(CodeTimeout, "script execution timed out"))
	}

	payload, ok, truncated := extractPayload(raw.Stdout)
	if !ok {
		if truncated || raw.Truncated {
			// A started but unterminated frame is the signature of output
			// truncation, not of an application error.
			return Failed(NewFailure(CodeParseFailure, "structured output truncated before the end marker"))
		}
		if code := ClassifyHostError(raw.Stderr); code != "" {
			return Failed(Failuref(code, "host reported: %s", condense(raw.Stderr)))
		}
		if raw.ExitCode != 0 {
			return Failed(Failuref(CodeParseFailure, "host exited %d without a structured payload", raw.ExitCode))
		}
		return Failed(NewFailure(CodeParseFailure, "no structured payload in host output"))
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		if raw.Truncated {
			return Failed(NewFailure(CodeParseFailure, "structured output truncated mid-payload"))
		}
		return Failed(Failuref(CodeParseFailure, "payload is not valid JSON: %v", err))
	}

	if !env.OK {
		return Failed(classifyEnvelope(env.Error))
	}

	if schema != nil {
		if err := schema.Validate(env.Data); err != nil {
			return Failed(Failuref(CodeSchemaMismatch, "payload shape mismatch: %v", err))
		}
	}

	return Success(env.Data)
}

// extractPayload scans stdout line-wise for the sentinel frame. Returns the
// framed text, whether a complete frame was found, and whether a frame was
// started but never closed.
func extractPayload(stdout string) (payload string, ok bool, truncated bool) {
	lines := strings.Split(stdout, "\n")
	started := false
	var body []string
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if !started {
			if trimmed == BeginSentinel {
				started = true
			}
			continue
		}
		if trimmed == EndSentinel {
			return strings.Join(body, "\n"), true, false
		}
		body = append(body, trimmed)
	}
	if started {
		return "", false, true
	}
	return "", false, false
}

// classifyEnvelope maps a script-emitted error to a failure category.
func classifyEnvelope(e *envelopeError) *Failure {
	if e == nil {
		return NewFailure(CodeApplication, "script reported failure without detail")
	}

	var f *Failure
	if e.Context == "bridge" {
		f = NewFailure(CodeBridge, e.Message)
	} else if code := ClassifyHostError(e.Name + ": " + e.Message); code != "" {
		f = NewFailure(code, e.Message)
	} else {
		f = NewFailure(CodeApplication, e.Message)
	}
	f.Context = e.Context
	if f.Context == "" {
		f.Context = "primary"
	}
	return f
}

// ClassifyHostError categorizes osascript/Apple-event diagnostic text by
// substring. Returns "" when no category matches; callers decide the
// fallback.
func ClassifyHostError(text string) Code {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)

	// Application not running: Apple event error -600, or the launch
	// refusal phrasing newer macOS releases use.
	if strings.Contains(lower, "isn't running") ||
		strings.Contains(lower, "is not running") ||
		strings.Contains(lower, "(-600)") ||
		strings.Contains(lower, "application can't be launched") {
		return CodeNotRunning
	}

	// Automation permission refusals: -1743 (errAEEventNotPermitted) and
	// the privilege violation variant -10004.
	if strings.Contains(lower, "not authorized") ||
		strings.Contains(lower, "not allowed assistive access") ||
		strings.Contains(lower, "(-1743)") ||
		strings.Contains(lower, "(-10004)") {
		return CodePermissionDenied
	}

	// Apple event timeout -1712.
	if strings.Contains(lower, "(-1712)") ||
		strings.Contains(lower, "timed out") {
		return CodeTimeout
	}

	// osascript refuses to compile the script. With a machine-built script
	// the usual cause is the host's size ceiling chopping it mid-token.
	if strings.Contains(lower, "syntax error") ||
		strings.Contains(lower, "unexpected token") ||
		strings.Contains(lower, "unexpected end of script") {
		return CodeParseFailure
	}

	if strings.Contains(lower, "can't get object") ||
		strings.Contains(lower, "(-1728)") {
		return CodeApplication
	}

	return ""
}

// condense flattens diagnostic text to a single trimmed line for messages.
func condense(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", " | ")
	if len(s) > 200 {
		return s[:197] + "..."
	}
	return s
}
