// Package bridge holds the secondary-context escalation pieces: the Omni
// Automation fragments a primary script can hand to the host's nested
// evaluation call, and the Go-side shaping for their arguments. Fragments
// are static source; every dynamic value reaches them as a JSON-bound
// argument object, never as spliced text.
package bridge

import (
	"fmt"
	"strings"
	"time"
)

// Fragment names, used as keys in the embedded fragment table and in
// diagnostics.
const (
	FragAssignTags    = "assignTags"
	FragMoveTask      = "moveTask"
	FragMoveProject   = "moveProject"
	FragSetRepetition = "setRepetition"
	FragBulkEffective = "bulkEffective"
)

// Fragments maps fragment name to Omni Automation source. Each fragment
// sees its arguments as the pre-parsed object __bargs and must complete
// with a JSON string of {ok, data} or {ok:false, error} so the primary
// context can parse the reply it gets back.
func Fragments() map[string]string {
	return map[string]string{
		FragAssignTags:    fragmentAssignTags,
		FragMoveTask:      fragmentMoveTask,
		FragMoveProject:   fragmentMoveProject,
		FragSetRepetition: fragmentSetRepetition,
		FragBulkEffective: fragmentBulkEffective,
	}
}

const fragmentAssignTags = `
const task = Task.byIdentifier(__bargs.taskId);
if (!task) { JSON.stringify({ok:false, error:'no task with id ' + __bargs.taskId}); }
const added = [];
for (let i = 0; i < __bargs.tags.length; i++) {
  const name = __bargs.tags[i];
  let tag = flattenedTags.byName(name);
  if (!tag) { tag = new Tag(name); }
  task.addTag(tag);
  added.push(tag.name);
}
JSON.stringify({ok:true, data:{taskId: task.id.primaryKey, tags: added}});
`

const fragmentMoveTask = `
const task = Task.byIdentifier(__bargs.taskId);
if (!task) { JSON.stringify({ok:false, error:'no task with id ' + __bargs.taskId}); }
let position = null;
let movedTo = '';
if (__bargs.toInbox) {
  position = inbox.ending;
  movedTo = 'inbox';
} else if (__bargs.projectId) {
  const proj = flattenedProjects.byIdentifier(__bargs.projectId);
  if (!proj) { JSON.stringify({ok:false, error:'no project with id ' + __bargs.projectId}); }
  position = proj.ending;
  movedTo = 'project:' + proj.id.primaryKey;
} else if (__bargs.parentTaskId) {
  const parent = Task.byIdentifier(__bargs.parentTaskId);
  if (!parent) { JSON.stringify({ok:false, error:'no task with id ' + __bargs.parentTaskId}); }
  position = parent.ending;
  movedTo = 'task:' + parent.id.primaryKey;
}
if (position === null) {
  JSON.stringify({ok:false, error:'no move target given'});
} else {
  moveTasks([task], position);
  JSON.stringify({ok:true, data:{taskId: task.id.primaryKey, movedTo: movedTo}});
}
`

const fragmentMoveProject = `
const proj = flattenedProjects.byIdentifier(__bargs.projectId);
if (!proj) { JSON.stringify({ok:false, error:'no project with id ' + __bargs.projectId}); }
let position = library.ending;
let movedTo = 'library';
if (__bargs.folderId) {
  const folder = flattenedFolders.byIdentifier(__bargs.folderId);
  if (!folder) { JSON.stringify({ok:false, error:'no folder with id ' + __bargs.folderId}); }
  position = folder.ending;
  movedTo = 'folder:' + folder.id.primaryKey;
}
moveSections([proj], position);
JSON.stringify({ok:true, data:{projectId: proj.id.primaryKey, movedTo: movedTo}});
`

const fragmentSetRepetition = `
const task = Task.byIdentifier(__bargs.taskId);
if (!task) { JSON.stringify({ok:false, error:'no task with id ' + __bargs.taskId}); }
if (__bargs.clear) {
  task.repetitionRule = null;
  JSON.stringify({ok:true, data:{taskId: task.id.primaryKey, repetition: null}});
} else {
  const method = Task.RepetitionMethod[__bargs.method];
  if (!method) { JSON.stringify({ok:false, error:'unknown repetition method ' + __bargs.method}); }
  task.repetitionRule = new Task.RepetitionRule(__bargs.rule, method);
  JSON.stringify({ok:true, data:{taskId: task.id.primaryKey, repetition: __bargs.rule, method: __bargs.method}});
}
`

const fragmentBulkEffective = `
const rows = [];
for (let i = 0; i < __bargs.ids.length; i++) {
  const id = __bargs.ids[i];
  const t = Task.byIdentifier(id);
  if (!t) { rows.push({id: id, found: false}); continue; }
  rows.push({
    id: id,
    found: true,
    effectiveDeferDate: t.effectiveDeferDate ? t.effectiveDeferDate.toISOString() : null,
    effectiveDueDate: t.effectiveDueDate ? t.effectiveDueDate.toISOString() : null,
    repetition: t.repetitionRule ? t.repetitionRule.ruleString : null,
    taskStatus: String(t.taskStatus)
  });
}
JSON.stringify({ok:true, data:{tasks: rows}});
`

// RepetitionMethod is the recurrence anchoring a caller may request.
type RepetitionMethod string

const (
	RepeatFixed                RepetitionMethod = "fixed"
	RepeatDeferAfterCompletion RepetitionMethod = "defer_after_completion"
	RepeatDueAfterCompletion   RepetitionMethod = "due_after_completion"
)

// secondaryName maps the wire value to the enum key the secondary context
// understands.
var secondaryName = map[RepetitionMethod]string{
	RepeatFixed:                "Fixed",
	RepeatDeferAfterCompletion: "DeferUntilDate",
	RepeatDueAfterCompletion:   "DueDate",
}

// Repetition is a validated recurrence request: an ICS RRULE body plus the
// anchoring method.
type Repetition struct {
	Rule   string           `json:"rule"`
	Method RepetitionMethod `json:"method"`
}

// Validate checks the rule syntax shallowly and the method against the
// known set. Full RRULE validation belongs to the application; this only
// rejects shapes that could never work.
func (r Repetition) Validate() error {
	rule := strings.TrimSpace(r.Rule)
	if rule == "" {
		return fmt.Errorf("repetition rule is required")
	}
	if !strings.Contains(strings.ToUpper(rule), "FREQ=") {
		return fmt.Errorf("repetition rule must carry a FREQ clause, got %q", r.Rule)
	}
	if _, ok := secondaryName[r.Method]; !ok {
		return fmt.Errorf("unknown repetition method %q (want fixed, defer_after_completion, or due_after_completion)", r.Method)
	}
	return nil
}

// Params returns the recurrence in the shape the secondary context wants:
// the trimmed rule plus the method under its secondary enum name.
func (r Repetition) Params() map[string]interface{} {
	return map[string]interface{}{
		"rule":   strings.TrimSpace(r.Rule),
		"method": secondaryName[r.Method],
	}
}

// Args returns the argument object for the setRepetition fragment.
func (r Repetition) Args(taskID string) map[string]interface{} {
	args := r.Params()
	args["taskId"] = taskID
	return args
}

// ClearRepetitionArgs returns the argument object that removes a task's
// recurrence.
func ClearRepetitionArgs(taskID string) map[string]interface{} {
	return map[string]interface{}{"taskId": taskID, "clear": true}
}

// MoveTarget names where a task should land. Exactly one field may be set.
type MoveTarget struct {
	ToInbox      bool   `json:"to_inbox,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	ParentTaskID string `json:"parent_task_id,omitempty"`
}

// Validate rejects ambiguous or empty targets before any script is built.
func (m MoveTarget) Validate() error {
	set := 0
	if m.ToInbox {
		set++
	}
	if m.ProjectID != "" {
		set++
	}
	if m.ParentTaskID != "" {
		set++
	}
	if set == 0 {
		return fmt.Errorf("move target required: one of to_inbox, project_id, parent_task_id")
	}
	if set > 1 {
		return fmt.Errorf("move target must name exactly one destination")
	}
	return nil
}

// Args returns the argument object for the moveTask fragment.
func (m MoveTarget) Args(taskID string) map[string]interface{} {
	args := map[string]interface{}{"taskId": taskID}
	if m.ToInbox {
		args["toInbox"] = true
	}
	if m.ProjectID != "" {
		args["projectId"] = m.ProjectID
	}
	if m.ParentTaskID != "" {
		args["parentTaskId"] = m.ParentTaskID
	}
	return args
}

// EffectiveDates is a Go-side stand-in for the bulkEffective fragment used
// when escalation is disabled: derived dates computed from a snapshot
// instead of from the secondary context. Reads that need exact
// post-write secondary-context state must still use the fragment; values
// here can trail a bridge write that has not round-tripped yet.
type EffectiveDates struct {
	ID                 string     `json:"id"`
	Found              bool       `json:"found"`
	EffectiveDeferDate *time.Time `json:"effectiveDeferDate,omitempty"`
	EffectiveDueDate   *time.Time `json:"effectiveDueDate,omitempty"`
}
