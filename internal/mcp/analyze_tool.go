package mcp

import (
	"context"
	"fmt"
	"strings"

	"focusbridge-mcp-server/internal/catalog"
)

// FocusAnalyzeTool serves the derived reports. Both are computed in Go
// over one snapshot and cached on the analytics TTL, so repeated asks in
// a conversation stay cheap.
type FocusAnalyzeTool struct {
	svc *catalog.Service
}

func (t *FocusAnalyzeTool) Name() string { return "focus-analyze" }
func (t *FocusAnalyzeTool) Description() string {
	return `Analyze OmniFocus -- overdue pressure and completion trends.

USE THIS TOOL for rollups. For listing the actual tasks, use focus-observe.

QUICK START (use intent for common asks):
  intent:"triage"         -> What is overdue and where is it piling up?
  intent:"standup"        -> What got done in the last day?
  intent:"weekly_review"  -> Completion trend over the last 7 days

REPORTS (explicit control):
  overdue:       Count, flagged share, oldest due date, per-project breakdown.
                 Only tasks carrying their own due date count; inherited
                 dates mark the carrying row, not every child.
  productivity:  Completions per calendar day over a trailing window
                 (params: days, 1-90, default 7), average per day, top
                 projects by completions.

VIEWS:
  summary: Headline numbers only.
  compact: Plus per-project breakdown. Default.
  full:    Everything, including the full per-day series.

EXAMPLES:
  {intent:"triage"}
  {report:"productivity", days:30, view:"full"}`
}

func (t *FocusAnalyzeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"intent": map[string]interface{}{
				"type":        "string",
				"description": "Preset that fills report/view defaults when explicit knobs are omitted",
				"enum":        []string{"triage", "standup", "weekly_review"},
			},
			"report": map[string]interface{}{
				"type":        "string",
				"description": "Which report to compute",
				"enum":        []string{"overdue", "productivity"},
			},
			"days": map[string]interface{}{
				"type":        "integer",
				"description": "Trailing window for productivity (1-90, default 7)",
			},
			"view": map[string]interface{}{
				"type":        "string",
				"description": "summary|compact|full",
				"enum":        []string{"summary", "compact", "full"},
			},
		},
	}
}

func (t *FocusAnalyzeTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	intent := strings.ToLower(strings.TrimSpace(getStringArg(args, "intent")))
	intentCfg, hasIntent := resolveAnalyzeIntentDefaults(intent)

	report := strings.ToLower(getStringArg(args, "report"))
	view := normalizeView(getStringArg(args, "view"))
	days := getIntArg(args, "days", 0)

	intentApplied := false
	if hasIntent {
		if !argHasNonEmptyString(args, "report") && intentCfg.report != "" {
			report = intentCfg.report
			intentApplied = true
		}
		if !argHasNonEmptyString(args, "view") && intentCfg.view != "" {
			view = intentCfg.view
			intentApplied = true
		}
		if !argHasInt(args, "days") && intentCfg.days > 0 {
			days = intentCfg.days
			intentApplied = true
		}
	}
	if report == "" {
		report = "overdue"
	}

	response := map[string]interface{}{
		"success":        true,
		"intent":         ternaryStatus(hasIntent, intent, "custom"),
		"intent_applied": intentApplied,
		"report":         report,
		"view":           view,
	}

	switch report {
	case "overdue":
		rep, err := t.svc.Overdue(ctx)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = overdueSummary(rep)
		response["meta"] = rep.Meta
		switch view {
		case "summary":
			response["data"] = map[string]interface{}{
				"total":   rep.Total,
				"flagged": rep.Flagged,
				"oldest":  rep.Oldest,
			}
		case "compact":
			response["data"] = map[string]interface{}{
				"total":      rep.Total,
				"flagged":    rep.Flagged,
				"oldest":     rep.Oldest,
				"by_project": rep.ByProject,
			}
		default:
			response["data"] = rep
		}
		return response, nil

	case "productivity":
		rep, err := t.svc.Productivity(ctx, days)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("%d completed over %d days (%.1f/day)", rep.Completed, rep.Days, rep.AveragePerDay)
		response["meta"] = rep.Meta
		switch view {
		case "summary":
			response["data"] = map[string]interface{}{
				"days":            rep.Days,
				"completed":       rep.Completed,
				"average_per_day": rep.AveragePerDay,
			}
		case "compact":
			response["data"] = map[string]interface{}{
				"days":              rep.Days,
				"completed":         rep.Completed,
				"completed_flagged": rep.CompletedFlagged,
				"average_per_day":   rep.AveragePerDay,
				"top_projects":      rep.TopProjects,
			}
		default:
			response["data"] = rep
		}
		return response, nil

	default:
		return softFailuref("unknown report %q (want overdue or productivity)", report), nil
	}
}

func overdueSummary(rep *catalog.OverdueReport) string {
	if rep.Total == 0 {
		return "nothing overdue"
	}
	out := fmt.Sprintf("%d overdue (%d flagged)", rep.Total, rep.Flagged)
	if rep.Oldest != nil {
		out += fmt.Sprintf(", oldest due %s", rep.Oldest.Format("2006-01-02"))
	}
	return out
}

type analyzeIntentDefaults struct {
	report string
	view   string
	days   int
}

func resolveAnalyzeIntentDefaults(intent string) (analyzeIntentDefaults, bool) {
	switch intent {
	case "triage":
		return analyzeIntentDefaults{report: "overdue", view: "compact"}, true
	case "standup":
		return analyzeIntentDefaults{report: "productivity", view: "summary", days: 1}, true
	case "weekly_review":
		return analyzeIntentDefaults{report: "productivity", view: "compact", days: 7}, true
	default:
		return analyzeIntentDefaults{}, false
	}
}
