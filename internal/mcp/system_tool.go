package mcp

import (
	"context"
	"fmt"
	"strings"

	"focusbridge-mcp-server/internal/catalog"
	"focusbridge-mcp-server/internal/config"
)

const defaultTraceCount = 20

// FocusSystemTool exposes server health and maintenance: host probes,
// cache introspection, and the invocation trace tail.
type FocusSystemTool struct {
	svc *catalog.Service
	cfg config.Config
}

func (t *FocusSystemTool) Name() string { return "focus-system" }
func (t *FocusSystemTool) Description() string {
	return `Inspect and maintain the bridge -- health, cache, traces.

ACTIONS:
  diagnostics: Host reachability, app version, entity counts, cache stats,
               pending invocations (default). If OmniFocus is unreachable
               the report still returns, with host_error explaining why.
  ping:        Smallest possible round trip through the scripting host.
  cache_stats: Hit/miss counters and entries per category.
  cache_clear: Drop every cached entry. Next reads go to the host.
  traces:      Tail of recent invocations (params: limit, default 20).
  operations:  Every scriptable operation and its script tier.

EXAMPLES:
  {action:"diagnostics"}
  {action:"traces", limit:50}

WHEN TO USE:
  "Is OmniFocus reachable?"           -> diagnostics or ping
  "Why is this answer stale?"         -> cache_stats, then cache_clear
  "What did the server actually run?" -> traces`
}

func (t *FocusSystemTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "What to inspect or do",
				"enum":        []string{"diagnostics", "ping", "cache_stats", "cache_clear", "traces", "operations"},
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Max traces returned (default 20)",
			},
		},
	}
}

func (t *FocusSystemTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	action := strings.ToLower(strings.TrimSpace(getStringArg(args, "action")))
	if action == "" {
		action = "diagnostics"
	}

	response := map[string]interface{}{
		"success": true,
		"action":  action,
	}

	switch action {
	case "diagnostics":
		diag, err := t.svc.RunDiagnostics(ctx)
		if err != nil {
			return softFailure(err), nil
		}
		if diag.HostError != nil {
			response["summary"] = fmt.Sprintf("host unreachable: %s", diag.HostError.Message)
		} else if diag.App != nil {
			response["summary"] = fmt.Sprintf("%s %s reachable", diag.App.Name, diag.App.Version)
		}
		response["data"] = diag
		response["meta"] = diag.Meta
		return response, nil

	case "ping":
		res, err := t.svc.Ping(ctx)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("pong from %s", res.App)
		response["data"] = res
		response["meta"] = res.Meta
		return response, nil

	case "cache_stats":
		stats := t.svc.CacheStats()
		response["data"] = stats
		return response, nil

	case "cache_clear":
		dropped := t.svc.ClearCache()
		response["summary"] = fmt.Sprintf("dropped %d cached entries", dropped)
		response["data"] = map[string]interface{}{"dropped": dropped}
		return response, nil

	case "traces":
		limit := getIntArg(args, "limit", defaultTraceCount)
		if limit <= 0 {
			limit = defaultTraceCount
		}
		traces := t.svc.RecentTraces(limit)
		response["summary"] = fmt.Sprintf("%d recent invocations", len(traces))
		response["data"] = map[string]interface{}{"traces": traces, "count": len(traces)}
		return response, nil

	case "operations":
		ops := t.svc.Operations()
		response["summary"] = fmt.Sprintf("%d operations", len(ops))
		response["data"] = map[string]interface{}{"operations": ops}
		return response, nil

	default:
		return softFailuref("unknown action %q (want diagnostics, ping, cache_stats, cache_clear, traces, or operations)", action), nil
	}
}
