package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"focusbridge-mcp-server/internal/catalog"
	"focusbridge-mcp-server/internal/filter"
)

const defaultObserveMaxItems = 20

// FocusObserveTool is the consolidated read surface: task queries,
// single-entity fetches, structure listings, and effective-date lookups.
type FocusObserveTool struct {
	svc *catalog.Service
	// now anchors relative due windows; nil means time.Now.
	now func() time.Time
}

func (t *FocusObserveTool) Name() string { return "focus-observe" }
func (t *FocusObserveTool) Description() string {
	return `Read from OmniFocus -- tasks, projects, tags, folders, inherited dates.

USE THIS TOOL to see what is in the database before acting. Start here.

QUICK START (use intent for common asks):
  intent:"inbox"            -> Unprocessed inbox tasks
  intent:"today"            -> Available tasks due by end of today
  intent:"overdue"          -> Incomplete tasks already past due
  intent:"next_actions"     -> Available (unblocked, undeferred) tasks
  intent:"flagged"          -> Flagged incomplete tasks
  intent:"review_projects"  -> Active projects

MODES (explicit control -- override intent defaults):
  tasks:     Query tasks with filters (default)
  task:      Fetch one task by id (params: id)
  projects:  List projects (params: project_status, search, folder_id)
  project:   Fetch one project by id (params: id)
  tags:      List all tags
  folders:   List all folders
  effective: Resolve inherited defer/due dates for task ids (params: ids)

TASK FILTERS (tasks mode):
  status:       any|incomplete|completed|dropped|available
  flagged:      true/false (omit to not filter)
  in_inbox:     true/false (omit to not filter)
  project_ids:  ["id", ...]
  tags:         ["name", ...] with tag_match any|all
  search:       substring over name and note
  due_within:   overdue|today|week (relative due window)
  due_before / due_after / defer_before / defer_after: RFC3339 timestamps
  has_due_date: true/false
  fields:       projection (default: id, name, completed, flagged, due_date,
                project_id, tag_names; derived: available, blocked,
                effective_defer_date)
  sort_by:      order|name|due|defer (+ sort_desc), limit

VIEWS (control output size):
  summary: Counts only. Start here for large databases.
  compact: Rows capped at max_items (default 20). Default.
  full:    All rows plus scan statistics.

EXAMPLES:
  {intent:"today"}
  {mode:"tasks", status:"available", tags:["errands"], sort_by:"due"}
  {mode:"task", id:"hT9xK2"}
  {mode:"effective", ids:["hT9xK2","aB3cD4"]}

The meta block on every response says whether the answer came from cache
("hit") or a fresh host call ("miss"). Writes through focus-act refresh it.

NEXT STEP: Use task/project ids from results in focus-act to make changes.`
}

func (t *FocusObserveTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"intent": map[string]interface{}{
				"type":        "string",
				"description": "Preset that fills mode/filter defaults when explicit knobs are omitted",
				"enum":        []string{"inbox", "today", "overdue", "next_actions", "flagged", "review_projects"},
			},
			"mode": map[string]interface{}{
				"type":        "string",
				"description": "What to read",
				"enum":        []string{"tasks", "task", "projects", "project", "tags", "folders", "effective"},
			},
			"view": map[string]interface{}{
				"type":        "string",
				"description": "Disclosure depth: summary|compact|full",
				"enum":        []string{"summary", "compact", "full"},
			},
			"max_items": map[string]interface{}{
				"type":        "integer",
				"description": "Max rows returned in compact view (default 20)",
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Entity id for task/project modes",
			},
			"ids": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Task ids for effective mode",
			},
			"status": map[string]interface{}{
				"type":        "string",
				"description": "Task lifecycle filter",
				"enum":        []string{"any", "incomplete", "completed", "dropped", "available"},
			},
			"flagged":  map[string]interface{}{"type": "boolean"},
			"in_inbox": map[string]interface{}{"type": "boolean"},
			"project_ids": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"tag_match": map[string]interface{}{
				"type": "string",
				"enum": []string{"any", "all"},
			},
			"search": map[string]interface{}{
				"type":        "string",
				"description": "Case-insensitive substring over name and note",
			},
			"due_within": map[string]interface{}{
				"type":        "string",
				"description": "Relative due window resolved server-side",
				"enum":        []string{"overdue", "today", "week"},
			},
			"due_before":   map[string]interface{}{"type": "string", "description": "RFC3339"},
			"due_after":    map[string]interface{}{"type": "string", "description": "RFC3339"},
			"defer_before": map[string]interface{}{"type": "string", "description": "RFC3339"},
			"defer_after":  map[string]interface{}{"type": "string", "description": "RFC3339"},
			"has_due_date": map[string]interface{}{"type": "boolean"},
			"fields": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Row projection; derived fields cost extra per task",
			},
			"sort_by": map[string]interface{}{
				"type": "string",
				"enum": []string{"order", "name", "due", "defer"},
			},
			"sort_desc": map[string]interface{}{"type": "boolean"},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Scan result window (default 100, max 1000)",
			},
			"project_status": map[string]interface{}{
				"type":        "string",
				"description": "Project filter for projects mode",
				"enum":        []string{"active", "on_hold", "done", "dropped"},
			},
			"folder_id": map[string]interface{}{
				"type":        "string",
				"description": "Containing folder filter for projects mode",
			},
		},
	}
}

func (t *FocusObserveTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	intent := strings.ToLower(strings.TrimSpace(getStringArg(args, "intent")))
	intentCfg, hasIntent := resolveObserveIntentDefaults(intent)

	mode := strings.ToLower(getStringArg(args, "mode"))
	view := normalizeView(getStringArg(args, "view"))
	maxItems := getIntArg(args, "max_items", defaultObserveMaxItems)
	status := strings.ToLower(getStringArg(args, "status"))
	dueWithin := strings.ToLower(getStringArg(args, "due_within"))
	sortBy := strings.ToLower(getStringArg(args, "sort_by"))
	projectStatus := strings.ToLower(getStringArg(args, "project_status"))
	flagged := getBoolPtrArg(args, "flagged")
	inInbox := getBoolPtrArg(args, "in_inbox")

	intentApplied := false
	if hasIntent {
		if !argHasNonEmptyString(args, "mode") && intentCfg.mode != "" {
			mode = intentCfg.mode
			intentApplied = true
		}
		if !argHasNonEmptyString(args, "view") && intentCfg.view != "" {
			view = intentCfg.view
			intentApplied = true
		}
		if !argHasInt(args, "max_items") && intentCfg.maxItems > 0 {
			maxItems = intentCfg.maxItems
			intentApplied = true
		}
		if !argHasNonEmptyString(args, "status") && intentCfg.status != "" {
			status = intentCfg.status
			intentApplied = true
		}
		if !argHasNonEmptyString(args, "due_within") && intentCfg.dueWithin != "" {
			dueWithin = intentCfg.dueWithin
			intentApplied = true
		}
		if !argHasNonEmptyString(args, "sort_by") && intentCfg.sortBy != "" {
			sortBy = intentCfg.sortBy
			intentApplied = true
		}
		if !argHasNonEmptyString(args, "project_status") && intentCfg.projectStatus != "" {
			projectStatus = intentCfg.projectStatus
			intentApplied = true
		}
		if !argPresent(args, "flagged") && intentCfg.flagged != nil {
			flagged = intentCfg.flagged
			intentApplied = true
		}
		if !argPresent(args, "in_inbox") && intentCfg.inInbox != nil {
			inInbox = intentCfg.inInbox
			intentApplied = true
		}
	}

	if mode == "" {
		mode = "tasks"
	}
	if maxItems <= 0 {
		maxItems = defaultObserveMaxItems
	}

	response := map[string]interface{}{
		"success":        true,
		"intent":         ternaryStatus(hasIntent, intent, "custom"),
		"intent_applied": intentApplied,
		"mode":           mode,
		"view":           view,
	}

	switch mode {
	case "tasks":
		return t.observeTasks(ctx, args, response, observeTaskKnobs{
			view:      view,
			maxItems:  maxItems,
			status:    status,
			dueWithin: dueWithin,
			sortBy:    sortBy,
			flagged:   flagged,
			inInbox:   inInbox,
		})

	case "task":
		id := strings.TrimSpace(getStringArg(args, "id"))
		if id == "" {
			return softFailuref("id is required for task mode"), nil
		}
		res, err := t.svc.GetTask(ctx, id)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("task %s", res.Task.ID)
		response["data"] = map[string]interface{}{"task": res.Task}
		response["meta"] = res.Meta
		return response, nil

	case "projects":
		list, err := t.svc.QueryProjects(ctx, catalog.ProjectQuery{
			Status:   projectStatus,
			Search:   getStringArg(args, "search"),
			FolderID: getStringArg(args, "folder_id"),
		})
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("%d of %d projects", len(list.Projects), list.Total)
		response["meta"] = list.Meta
		switch view {
		case "summary":
			response["data"] = map[string]interface{}{"returned": len(list.Projects), "total": list.Total}
		case "compact":
			limited := list.Projects
			if len(limited) > maxItems {
				limited = limited[:maxItems]
				response["truncated"] = true
			}
			response["data"] = map[string]interface{}{"projects": limited, "total": list.Total}
		default:
			response["data"] = map[string]interface{}{"projects": list.Projects, "total": list.Total}
		}
		return response, nil

	case "project":
		id := strings.TrimSpace(getStringArg(args, "id"))
		if id == "" {
			return softFailuref("id is required for project mode"), nil
		}
		res, err := t.svc.GetProject(ctx, id)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("project %s", res.Project.ID)
		response["data"] = map[string]interface{}{"project": res.Project}
		response["meta"] = res.Meta
		return response, nil

	case "tags":
		list, err := t.svc.ListTags(ctx)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("%d tags", len(list.Tags))
		response["meta"] = list.Meta
		if view == "summary" {
			response["data"] = map[string]interface{}{"count": len(list.Tags)}
		} else {
			response["data"] = map[string]interface{}{"tags": list.Tags}
		}
		return response, nil

	case "folders":
		list, err := t.svc.ListFolders(ctx)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("%d folders", len(list.Folders))
		response["meta"] = list.Meta
		if view == "summary" {
			response["data"] = map[string]interface{}{"count": len(list.Folders)}
		} else {
			response["data"] = map[string]interface{}{"folders": list.Folders}
		}
		return response, nil

	case "effective":
		ids := getStringSliceArg(args, "ids")
		if len(ids) == 0 {
			return softFailuref("ids is required for effective mode"), nil
		}
		res, err := t.svc.EffectiveDates(ctx, ids)
		if err != nil {
			return softFailure(err), nil
		}
		response["summary"] = fmt.Sprintf("%d tasks resolved via %s", len(res.Tasks), res.Source)
		response["data"] = map[string]interface{}{"source": res.Source, "tasks": res.Tasks}
		response["meta"] = res.Meta
		return response, nil

	default:
		return softFailuref("unknown mode %q (want tasks, task, projects, project, tags, folders, or effective)", mode), nil
	}
}

type observeTaskKnobs struct {
	view      string
	maxItems  int
	status    string
	dueWithin string
	sortBy    string
	flagged   *bool
	inInbox   *bool
}

func (t *FocusObserveTool) observeTasks(ctx context.Context, args map[string]interface{}, response map[string]interface{}, knobs observeTaskKnobs) (interface{}, error) {
	pred := filter.Predicate{
		Status:     filter.Status(knobs.status),
		Flagged:    knobs.flagged,
		InInbox:    knobs.inInbox,
		ProjectIDs: getStringSliceArg(args, "project_ids"),
		Tags:       getStringSliceArg(args, "tags"),
		TagMatch:   filter.TagMatch(strings.ToLower(getStringArg(args, "tag_match"))),
		Search:     getStringArg(args, "search"),
		HasDueDate: getBoolPtrArg(args, "has_due_date"),
	}

	var err error
	if pred.DueBefore, err = getTimeArg(args, "due_before"); err != nil {
		return softFailure(err), nil
	}
	if pred.DueAfter, err = getTimeArg(args, "due_after"); err != nil {
		return softFailure(err), nil
	}
	if pred.DeferBefore, err = getTimeArg(args, "defer_before"); err != nil {
		return softFailure(err), nil
	}
	if pred.DeferAfter, err = getTimeArg(args, "defer_after"); err != nil {
		return softFailure(err), nil
	}

	if knobs.dueWithin != "" && pred.DueBefore == nil {
		cutoff, wErr := t.resolveDueWindow(knobs.dueWithin)
		if wErr != nil {
			return softFailure(wErr), nil
		}
		pred.DueBefore = cutoff
	}

	opts := filter.Options{
		Limit:    getIntArg(args, "limit", 0),
		Fields:   getStringSliceArg(args, "fields"),
		SortBy:   knobs.sortBy,
		SortDesc: getBoolArg(args, "sort_desc", false),
	}

	rows, err := t.svc.QueryTasks(ctx, catalog.TaskQuery{Predicate: pred, Options: opts})
	if err != nil {
		return softFailure(err), nil
	}

	response["summary"] = fmt.Sprintf("%d of %d matching tasks (scanned %d)", len(rows.Rows), rows.Stats.Matched, rows.Stats.Scanned)
	response["meta"] = rows.Meta
	switch knobs.view {
	case "summary":
		response["data"] = map[string]interface{}{
			"returned": len(rows.Rows),
			"matched":  rows.Stats.Matched,
			"scanned":  rows.Stats.Scanned,
		}
	case "compact":
		limited := rows.Rows
		if len(limited) > knobs.maxItems {
			limited = limited[:knobs.maxItems]
			response["truncated"] = true
		}
		response["data"] = map[string]interface{}{"rows": limited, "matched": rows.Stats.Matched}
	default:
		response["data"] = map[string]interface{}{
			"rows":         rows.Rows,
			"stats":        rows.Stats,
			"generated_at": rows.GeneratedAt,
		}
	}
	return response, nil
}

// resolveDueWindow turns a relative bucket into an absolute cutoff. "today"
// and "week" use the local calendar day so they match what the app shows.
func (t *FocusObserveTool) resolveDueWindow(window string) (*time.Time, error) {
	nowFn := t.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch window {
	case "overdue":
		return &now, nil
	case "today":
		cutoff := midnight.AddDate(0, 0, 1)
		return &cutoff, nil
	case "week":
		cutoff := midnight.AddDate(0, 0, 7)
		return &cutoff, nil
	default:
		return nil, fmt.Errorf("unknown due_within %q (want overdue, today, or week)", window)
	}
}

type observeIntentDefaults struct {
	mode          string
	view          string
	maxItems      int
	status        string
	dueWithin     string
	sortBy        string
	projectStatus string
	flagged       *bool
	inInbox       *bool
}

func resolveObserveIntentDefaults(intent string) (observeIntentDefaults, bool) {
	yes := true
	switch intent {
	case "inbox":
		return observeIntentDefaults{
			mode:     "tasks",
			view:     "compact",
			maxItems: 25,
			status:   "incomplete",
			sortBy:   "order",
			inInbox:  &yes,
		}, true
	case "today":
		return observeIntentDefaults{
			mode:      "tasks",
			view:      "compact",
			maxItems:  25,
			status:    "available",
			dueWithin: "today",
			sortBy:    "due",
		}, true
	case "overdue":
		return observeIntentDefaults{
			mode:      "tasks",
			view:      "compact",
			maxItems:  25,
			status:    "incomplete",
			dueWithin: "overdue",
			sortBy:    "due",
		}, true
	case "next_actions":
		return observeIntentDefaults{
			mode:     "tasks",
			view:     "compact",
			maxItems: 15,
			status:   "available",
			sortBy:   "due",
		}, true
	case "flagged":
		return observeIntentDefaults{
			mode:     "tasks",
			view:     "compact",
			maxItems: 25,
			status:   "incomplete",
			flagged:  &yes,
		}, true
	case "review_projects":
		return observeIntentDefaults{
			mode:          "projects",
			view:          "compact",
			maxItems:      25,
			projectStatus: "active",
		}, true
	default:
		return observeIntentDefaults{}, false
	}
}
