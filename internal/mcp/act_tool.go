package mcp

import (
	"context"
	"fmt"
	"strings"

	"focusbridge-mcp-server/internal/bridge"
	"focusbridge-mcp-server/internal/catalog"
)

const defaultActMaxItems = 20

// FocusActTool is the consolidated write surface. Operations run in
// sequence; by default the first failure stops the rest, since later
// steps usually depend on earlier ones having happened.
type FocusActTool struct {
	svc *catalog.Service
}

func (t *FocusActTool) Name() string { return "focus-act" }
func (t *FocusActTool) Description() string {
	return `Change OmniFocus -- create, update, complete, move, tag, schedule.

USE THIS TOOL to make changes. Use focus-observe first to get ids.

OPERATIONS (pass as array -- multiple ops execute in sequence):

  Tasks:
    {type:"create_task", name:"Pay rent", due_date:"2026-04-01T09:00:00Z",
     project_id:"...", flagged:true, tags:["home"], estimated_minutes:15,
     repetition:{rule:"FREQ=MONTHLY", method:"fixed"}}
    {type:"create_many", items:[{name:"a"},{name:"b"}]}   -> Bulk create (max 500)
    {type:"update_task", id:"...", name:"New name", clear:["due_date"]}
    {type:"complete_task", id:"..."}                      -> undo:true to reopen
    {type:"drop_task", id:"..."}
    {type:"delete_task", id:"..."}                        -> Permanent, no undo
    {type:"move_task", id:"...", project_id:"..."}        -> or parent_task_id / to_inbox:true
    {type:"assign_tags", id:"...", tags:["errands","home"]}
    {type:"set_repetition", id:"...", rule:"FREQ=WEEKLY;BYDAY=MO", method:"fixed"}
    {type:"set_repetition", id:"...", clear:true}         -> Remove recurrence

  Projects:
    {type:"create_project", name:"Q2 planning", folder_id:"...", sequential:true}
    {type:"update_project", id:"...", status:"on_hold", clear_due_date:true}
    {type:"delete_project", id:"..."}
    {type:"move_project", id:"...", folder_id:"..."}      -> Omit folder_id for library root

  Structure:
    {type:"create_tag", name:"errands", parent_id:"..."}
    {type:"create_folder", name:"Work", parent_id:"..."}

DATES are RFC3339 (2026-04-01T09:00:00Z). Clearing a date goes through
clear:["due_date"] on tasks or clear_due_date:true on projects; sending an
empty string does not clear.

REPETITION methods: fixed (calendar), defer_after_completion, due_after_completion.
Method defaults to fixed when omitted. Tags, repetition, and moves need the
secondary scripting context (host.enable_bridge, on by default).

OPTIONS:
  stop_on_error: true (default) -- halt sequence on first failure
  view: summary|compact|full (default compact) -- per-op result detail

Failed operations report error_code and a suggestion; recoverable codes
(timeout, not_running) are safe to retry.

MULTI-STEP EXAMPLE (weekly review cleanup):
  {operations:[
    {type:"complete_task", id:"t1"},
    {type:"move_task", id:"t2", project_id:"p9"},
    {type:"update_task", id:"t3", clear:["due_date"], flagged:false}
  ]}`
}

func (t *FocusActTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operations": map[string]interface{}{
				"type":        "array",
				"description": "Write operations to execute in order",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"type": map[string]interface{}{
							"type": "string",
							"enum": []string{
								"create_task", "create_many", "update_task", "complete_task",
								"drop_task", "delete_task", "move_task", "assign_tags",
								"set_repetition", "create_project", "update_project",
								"delete_project", "move_project", "create_tag", "create_folder",
							},
						},
					},
					"required": []string{"type"},
				},
			},
			"stop_on_error": map[string]interface{}{
				"type":        "boolean",
				"description": "Stop at first failed operation (default true)",
			},
			"view": map[string]interface{}{
				"type":        "string",
				"description": "summary|compact|full",
				"enum":        []string{"summary", "compact", "full"},
			},
			"max_items": map[string]interface{}{
				"type":        "integer",
				"description": "Max operation results returned in compact view (default 20)",
			},
		},
		"required": []string{"operations"},
	}
}

func (t *FocusActTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawOps, ok := args["operations"].([]interface{})
	if !ok || len(rawOps) == 0 {
		return softFailuref("operations must be a non-empty array"), nil
	}

	stopOnError := getBoolArg(args, "stop_on_error", true)
	view := normalizeView(getStringArg(args, "view"))
	maxItems := getIntArg(args, "max_items", defaultActMaxItems)
	if maxItems <= 0 {
		maxItems = defaultActMaxItems
	}

	results := make([]map[string]interface{}, 0, len(rawOps))
	succeeded := 0
	failed := 0
	stopped := false

	for idx, raw := range rawOps {
		op, ok := raw.(map[string]interface{})
		if !ok {
			results = append(results, map[string]interface{}{
				"index":   idx,
				"type":    "unknown",
				"success": false,
				"error":   "operation must be an object",
			})
			failed++
			if stopOnError {
				stopped = idx < len(rawOps)-1
				break
			}
			continue
		}

		opType := strings.ToLower(strings.TrimSpace(getStringArg(op, "type")))
		entry := map[string]interface{}{
			"index": idx,
			"type":  opType,
		}

		data, err := t.runOp(ctx, opType, op)
		if err != nil {
			// A dead parent context is the caller giving up on the whole
			// sequence, not a per-op outcome.
			if ctx.Err() != nil {
				return nil, err
			}
			failure := softFailure(err)
			entry["success"] = false
			entry["error"] = failure["error"]
			if code, ok := failure["error_code"]; ok {
				entry["error_code"] = code
			}
			if suggestion, ok := failure["suggestion"]; ok {
				entry["suggestion"] = suggestion
			}
			failed++
			results = append(results, entry)
			if stopOnError {
				stopped = idx < len(rawOps)-1
				break
			}
			continue
		}

		entry["success"] = true
		if view != "summary" {
			entry["data"] = data
		}
		succeeded++
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"success": failed == 0,
		"view":    view,
		"counts": map[string]interface{}{
			"total":     len(rawOps),
			"succeeded": succeeded,
			"failed":    failed,
		},
		"stopped_early": stopped,
	}

	switch view {
	case "summary":
		failures := make([]map[string]interface{}, 0, failed)
		for _, entry := range results {
			if ok, _ := entry["success"].(bool); !ok {
				failures = append(failures, entry)
			}
		}
		if len(failures) > 0 {
			response["failures"] = failures
		}
	case "compact":
		if len(results) > maxItems {
			response["results"] = results[:maxItems]
			response["truncated"] = true
		} else {
			response["results"] = results
		}
	default:
		response["results"] = results
	}
	return response, nil
}

func (t *FocusActTool) runOp(ctx context.Context, opType string, op map[string]interface{}) (interface{}, error) {
	switch opType {
	case "create_task":
		spec, err := taskSpecFromMap(op)
		if err != nil {
			return nil, err
		}
		return t.svc.CreateTask(ctx, spec)

	case "create_many":
		items, ok := op["items"].([]interface{})
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("create_many needs a non-empty items array")
		}
		specs := make([]catalog.TaskSpec, 0, len(items))
		for i, raw := range items {
			m, ok := raw.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("items[%d] must be an object", i)
			}
			spec, err := taskSpecFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("items[%d]: %w", i, err)
			}
			specs = append(specs, spec)
		}
		return t.svc.BatchCreateTasks(ctx, specs)

	case "update_task":
		changes, err := taskChangesFromMap(op)
		if err != nil {
			return nil, err
		}
		return t.svc.UpdateTask(ctx, getStringArg(op, "id"), changes)

	case "complete_task":
		return t.svc.CompleteTask(ctx, getStringArg(op, "id"), getBoolArg(op, "undo", false))

	case "drop_task":
		return t.svc.DropTask(ctx, getStringArg(op, "id"))

	case "delete_task":
		return t.svc.DeleteTask(ctx, getStringArg(op, "id"))

	case "move_task":
		target := bridge.MoveTarget{
			ToInbox:      getBoolArg(op, "to_inbox", false),
			ProjectID:    getStringArg(op, "project_id"),
			ParentTaskID: getStringArg(op, "parent_task_id"),
		}
		return t.svc.MoveTask(ctx, getStringArg(op, "id"), target)

	case "assign_tags":
		return t.svc.AssignTags(ctx, getStringArg(op, "id"), getStringSliceArg(op, "tags"))

	case "set_repetition":
		if getBoolArg(op, "clear", false) {
			return t.svc.SetRepetition(ctx, getStringArg(op, "id"), nil)
		}
		method := strings.ToLower(strings.TrimSpace(getStringArg(op, "method")))
		if method == "" {
			method = string(bridge.RepeatFixed)
		}
		rep := bridge.Repetition{
			Rule:   getStringArg(op, "rule"),
			Method: bridge.RepetitionMethod(method),
		}
		return t.svc.SetRepetition(ctx, getStringArg(op, "id"), &rep)

	case "create_project":
		spec, err := projectSpecFromMap(op)
		if err != nil {
			return nil, err
		}
		return t.svc.CreateProject(ctx, spec)

	case "update_project":
		changes, err := projectChangesFromMap(op)
		if err != nil {
			return nil, err
		}
		return t.svc.UpdateProject(ctx, getStringArg(op, "id"), changes)

	case "delete_project":
		return t.svc.DeleteProject(ctx, getStringArg(op, "id"))

	case "move_project":
		return t.svc.MoveProject(ctx, getStringArg(op, "id"), getStringArg(op, "folder_id"))

	case "create_tag":
		return t.svc.CreateTag(ctx, getStringArg(op, "name"), getStringArg(op, "parent_id"))

	case "create_folder":
		return t.svc.CreateFolder(ctx, getStringArg(op, "name"), getStringArg(op, "parent_id"))

	default:
		return nil, fmt.Errorf("unknown operation type %q", opType)
	}
}

func taskSpecFromMap(op map[string]interface{}) (catalog.TaskSpec, error) {
	spec := catalog.TaskSpec{
		Name:         getStringArg(op, "name"),
		Note:         getStringArg(op, "note"),
		ProjectID:    getStringArg(op, "project_id"),
		ParentTaskID: getStringArg(op, "parent_task_id"),
		Flagged:      getBoolArg(op, "flagged", false),
		Tags:         getStringSliceArg(op, "tags"),
	}
	var err error
	if spec.DeferDate, err = getTimeArg(op, "defer_date"); err != nil {
		return spec, err
	}
	if spec.DueDate, err = getTimeArg(op, "due_date"); err != nil {
		return spec, err
	}
	if argPresent(op, "estimated_minutes") {
		minutes := getIntArg(op, "estimated_minutes", 0)
		spec.EstimatedMinutes = &minutes
	}
	if rep := asMap(op["repetition"]); len(rep) > 0 {
		method := strings.ToLower(strings.TrimSpace(getStringArg(rep, "method")))
		if method == "" {
			method = string(bridge.RepeatFixed)
		}
		spec.Repetition = &bridge.Repetition{
			Rule:   getStringArg(rep, "rule"),
			Method: bridge.RepetitionMethod(method),
		}
	}
	return spec, nil
}

func taskChangesFromMap(op map[string]interface{}) (catalog.TaskChanges, error) {
	var changes catalog.TaskChanges
	if argPresent(op, "name") {
		name := getStringArg(op, "name")
		changes.Name = &name
	}
	if argPresent(op, "note") {
		note := getStringArg(op, "note")
		changes.Note = &note
	}
	changes.Flagged = getBoolPtrArg(op, "flagged")
	changes.Sequential = getBoolPtrArg(op, "sequential")
	var err error
	if changes.DeferDate, err = getTimeArg(op, "defer_date"); err != nil {
		return changes, err
	}
	if changes.DueDate, err = getTimeArg(op, "due_date"); err != nil {
		return changes, err
	}
	if argPresent(op, "estimated_minutes") {
		minutes := getIntArg(op, "estimated_minutes", 0)
		changes.EstimatedMinutes = &minutes
	}
	changes.Clear = getStringSliceArg(op, "clear")
	return changes, nil
}

func projectSpecFromMap(op map[string]interface{}) (catalog.ProjectSpec, error) {
	spec := catalog.ProjectSpec{
		Name:       getStringArg(op, "name"),
		Note:       getStringArg(op, "note"),
		FolderID:   getStringArg(op, "folder_id"),
		Sequential: getBoolPtrArg(op, "sequential"),
	}
	var err error
	if spec.DeferDate, err = getTimeArg(op, "defer_date"); err != nil {
		return spec, err
	}
	if spec.DueDate, err = getTimeArg(op, "due_date"); err != nil {
		return spec, err
	}
	return spec, nil
}

func projectChangesFromMap(op map[string]interface{}) (catalog.ProjectChanges, error) {
	var changes catalog.ProjectChanges
	if argPresent(op, "name") {
		name := getStringArg(op, "name")
		changes.Name = &name
	}
	if argPresent(op, "note") {
		note := getStringArg(op, "note")
		changes.Note = &note
	}
	if argPresent(op, "status") {
		status := getStringArg(op, "status")
		changes.Status = &status
	}
	changes.Sequential = getBoolPtrArg(op, "sequential")
	var err error
	if changes.DeferDate, err = getTimeArg(op, "defer_date"); err != nil {
		return changes, err
	}
	if changes.DueDate, err = getTimeArg(op, "due_date"); err != nil {
		return changes, err
	}
	changes.ClearDeferDate = getBoolArg(op, "clear_defer_date", false)
	changes.ClearDueDate = getBoolArg(op, "clear_due_date", false)
	return changes, nil
}
