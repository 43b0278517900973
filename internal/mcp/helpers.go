package mcp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"focusbridge-mcp-server/internal/result"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// getBoolArg extracts a boolean argument with default.
func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return fallback
}

// getBoolPtrArg distinguishes "absent" from "false": tri-state knobs like
// flagged or in_inbox only filter when the caller actually sent them.
func getBoolPtrArg(args map[string]interface{}, key string) *bool {
	val, ok := args[key]
	if !ok {
		return nil
	}
	if b, ok := val.(bool); ok {
		return &b
	}
	return nil
}

func getStringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// getTimeArg parses an RFC3339 date argument. A present-but-malformed
// value is an error, not a silent nil; date typos must not widen queries.
func getTimeArg(args map[string]interface{}, key string) (*time.Time, error) {
	raw := strings.TrimSpace(getStringArg(args, key))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339 (like 2026-03-14T12:00:00Z), got %q", key, raw)
	}
	return &ts, nil
}

func argPresent(args map[string]interface{}, key string) bool {
	_, ok := args[key]
	return ok
}

func argHasNonEmptyString(args map[string]interface{}, key string) bool {
	raw, ok := args[key]
	if !ok {
		return false
	}
	value, ok := raw.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(value) != ""
}

func argHasInt(args map[string]interface{}, key string) bool {
	raw, ok := args[key]
	if !ok {
		return false
	}
	switch raw.(type) {
	case int, int8, int16, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func normalizeView(view string) string {
	switch strings.ToLower(view) {
	case "summary", "compact", "full":
		return strings.ToLower(view)
	default:
		return "compact"
	}
}

func ternaryStatus(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// softFailure shapes an error as a tool payload. Classified failures keep
// their code and suggestion so agents can branch without string matching.
func softFailure(err error) map[string]interface{} {
	resp := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	var f *result.Failure
	if errors.As(err, &f) {
		resp["error"] = f.Message
		resp["error_code"] = string(f.Code)
		if f.Suggestion != "" {
			resp["suggestion"] = f.Suggestion
		}
		if f.Recoverable {
			resp["recoverable"] = true
		}
	}
	return resp
}

func softFailuref(format string, args ...interface{}) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	}
}
