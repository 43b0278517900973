package script

import (
	"sort"

	"focusbridge-mcp-server/internal/result"
)

// operation is one registry entry: the tier its body needs, the body
// itself, and the payload shape it promises.
type operation struct {
	tier   Tier
	body   string
	schema *result.Schema
}

// Operations returns every registered operation id in sorted order.
func Operations() []string {
	out := make([]string, 0, len(operations))
	for op := range operations {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Known reports whether an operation id is registered.
func Known(op string) bool {
	_, ok := operations[op]
	return ok
}

// TierOf returns the tier an operation builds at.
func TierOf(op string) (Tier, bool) {
	spec, ok := operations[op]
	if !ok {
		return TierMinimal, false
	}
	return spec.tier, true
}

var operations = map[string]operation{
	"task.snapshot": {
		tier: TierStandard,
		body: bodyTaskSnapshot,
		schema: result.ObjectSchema(map[string]result.Kind{
			"tasks":       result.KindArray,
			"projects":    result.KindArray,
			"generatedAt": result.KindString,
		}),
	},
	"task.get": {
		tier:   TierStandard,
		body:   bodyTaskGet,
		schema: result.ObjectSchema(map[string]result.Kind{"task": result.KindObject}),
	},
	"task.create": {
		tier:   TierFull,
		body:   bodyTaskCreate,
		schema: result.ObjectSchema(map[string]result.Kind{"task": result.KindObject, "bridge": result.KindObject}),
	},
	"task.create_many": {
		tier:   TierFull,
		body:   bodyTaskCreateMany,
		schema: result.ObjectSchema(map[string]result.Kind{"created": result.KindNumber, "results": result.KindArray}),
	},
	"task.update": {
		tier:   TierStandard,
		body:   bodyTaskUpdate,
		schema: result.ObjectSchema(map[string]result.Kind{"task": result.KindObject}),
	},
	"task.complete": {
		tier:   TierStandard,
		body:   bodyTaskComplete,
		schema: result.ObjectSchema(map[string]result.Kind{"task": result.KindObject}),
	},
	"task.drop": {
		tier:   TierStandard,
		body:   bodyTaskDrop,
		schema: result.ObjectSchema(map[string]result.Kind{"task": result.KindObject}),
	},
	"task.delete": {
		tier:   TierStandard,
		body:   bodyTaskDelete,
		schema: result.ObjectSchema(map[string]result.Kind{"deleted": result.KindString}),
	},
	"task.move": {
		tier:   TierFull,
		body:   bodyTaskMove,
		schema: result.ObjectSchema(map[string]result.Kind{"moved": result.KindObject}),
	},
	"task.assign_tags": {
		tier:   TierFull,
		body:   bodyTaskAssignTags,
		schema: result.ObjectSchema(map[string]result.Kind{"assigned": result.KindObject}),
	},
	"task.set_repetition": {
		tier:   TierFull,
		body:   bodyTaskSetRepetition,
		schema: result.ObjectSchema(map[string]result.Kind{"repetition": result.KindObject}),
	},
	"task.effective": {
		tier:   TierFull,
		body:   bodyTaskEffective,
		schema: result.ObjectSchema(map[string]result.Kind{"tasks": result.KindArray}),
	},
	"project.list": {
		tier:   TierStandard,
		body:   bodyProjectList,
		schema: result.ObjectSchema(map[string]result.Kind{"projects": result.KindArray}),
	},
	"project.get": {
		tier:   TierStandard,
		body:   bodyProjectGet,
		schema: result.ObjectSchema(map[string]result.Kind{"project": result.KindObject}),
	},
	"project.create": {
		tier:   TierStandard,
		body:   bodyProjectCreate,
		schema: result.ObjectSchema(map[string]result.Kind{"project": result.KindObject}),
	},
	"project.update": {
		tier:   TierStandard,
		body:   bodyProjectUpdate,
		schema: result.ObjectSchema(map[string]result.Kind{"project": result.KindObject}),
	},
	"project.delete": {
		tier:   TierStandard,
		body:   bodyProjectDelete,
		schema: result.ObjectSchema(map[string]result.Kind{"deleted": result.KindString}),
	},
	"project.move": {
		tier:   TierFull,
		body:   bodyProjectMove,
		schema: result.ObjectSchema(map[string]result.Kind{"moved": result.KindObject}),
	},
	"tag.list": {
		tier:   TierStandard,
		body:   bodyTagList,
		schema: result.ObjectSchema(map[string]result.Kind{"tags": result.KindArray}),
	},
	"tag.create": {
		tier:   TierStandard,
		body:   bodyTagCreate,
		schema: result.ObjectSchema(map[string]result.Kind{"tag": result.KindObject}),
	},
	"folder.list": {
		tier:   TierStandard,
		body:   bodyFolderList,
		schema: result.ObjectSchema(map[string]result.Kind{"folders": result.KindArray}),
	},
	"folder.create": {
		tier:   TierStandard,
		body:   bodyFolderCreate,
		schema: result.ObjectSchema(map[string]result.Kind{"folder": result.KindObject}),
	},
	"system.diagnostics": {
		tier: TierStandard,
		body: bodySystemDiagnostics,
		schema: result.ObjectSchema(map[string]result.Kind{
			"app":    result.KindObject,
			"counts": result.KindObject,
		}),
	},
	"system.ping": {
		tier:   TierMinimal,
		body:   bodySystemPing,
		schema: result.ObjectSchema(map[string]result.Kind{"pong": result.KindBool, "app": result.KindString}),
	},
}

const bodyTaskSnapshot = `const skip = {completed: args.skipCompleted === true, dropped: args.skipDropped === true};
const tasks = __scanTasks(doc, skip);
const projAll = doc.flattenedProjects();
const projects = [];
for (let i = 0; i < projAll.length; i++) { projects.push(__projectRow(projAll[i])); }
return {tasks: tasks, projects: projects, generatedAt: new Date().toISOString()};`

const bodyTaskGet = `return {task: __taskRow(__findTask(doc, String(args.id)))};`

const bodyTaskCreate = `const t = __createTask(app, doc, args);
const id = String(t.id());
const bridged = {};
if (args.tags && args.tags.length > 0) {
  try {
    bridged.tags = __bridge(app, __frag.assignTags, {taskId: id, tags: args.tags});
  } catch (e) {
    e.message = 'task ' + id + ' was created, then ' + e.message;
    throw e;
  }
}
if (args.repetition) {
  try {
    bridged.repetition = __bridge(app, __frag.setRepetition, {taskId: id, rule: args.repetition.rule, method: args.repetition.method});
  } catch (e) {
    e.message = 'task ' + id + ' was created, then ' + e.message;
    throw e;
  }
}
return {task: __taskRow(t), bridge: bridged};`

const bodyTaskCreateMany = `const items = args.items || [];
const rows = [];
let created = 0;
for (let i = 0; i < items.length; i++) {
  const item = items[i];
  try {
    const t = __createTask(app, doc, item);
    const id = String(t.id());
    if (item.tags && item.tags.length > 0) {
      __bridge(app, __frag.assignTags, {taskId: id, tags: item.tags});
    }
    created++;
    rows.push({ok: true, index: i, task: __taskRow(t)});
  } catch (e) {
    rows.push({ok: false, index: i, error: (e && e.message) ? String(e.message) : String(e)});
  }
}
return {created: created, results: rows};`

const bodyTaskUpdate = `const t = __findTask(doc, String(args.id));
const set = args.set || {};
if (set.name !== undefined) { t.name = String(set.name); }
if (set.note !== undefined) { t.note = String(set.note); }
if (set.flagged !== undefined) { t.flagged = set.flagged === true; }
if (set.sequential !== undefined) { t.sequential = set.sequential === true; }
if (set.deferDate !== undefined) { t.deferDate = set.deferDate ? new Date(set.deferDate) : null; }
if (set.dueDate !== undefined) { t.dueDate = set.dueDate ? new Date(set.dueDate) : null; }
if (set.estimatedMinutes !== undefined) { t.estimatedMinutes = set.estimatedMinutes; }
const clear = args.clear || [];
for (let i = 0; i < clear.length; i++) {
  const f = String(clear[i]);
  if (f === 'deferDate') { t.deferDate = null; }
  else if (f === 'dueDate') { t.dueDate = null; }
  else if (f === 'estimatedMinutes') { t.estimatedMinutes = null; }
  else if (f === 'note') { t.note = ''; }
  else { throw __err('ValidationError', 'cannot clear field ' + f); }
}
return {task: __taskRow(t)};`

const bodyTaskComplete = `const t = __findTask(doc, String(args.id));
if (args.undo === true) { app.markIncomplete(t); } else { app.markComplete(t); }
return {task: __taskRow(t)};`

const bodyTaskDrop = `const t = __findTask(doc, String(args.id));
app.markDropped(t);
return {task: __taskRow(t)};`

const bodyTaskDelete = `const t = __findTask(doc, String(args.id));
const id = String(t.id());
app.delete(t);
return {deleted: id};`

const bodyTaskMove = `__findTask(doc, String(args.taskId));
return {moved: __bridge(app, __frag.moveTask, args)};`

const bodyTaskAssignTags = `__findTask(doc, String(args.taskId));
return {assigned: __bridge(app, __frag.assignTags, {taskId: String(args.taskId), tags: args.tags || []})};`

const bodyTaskSetRepetition = `__findTask(doc, String(args.taskId));
return {repetition: __bridge(app, __frag.setRepetition, args)};`

const bodyTaskEffective = `return __bridge(app, __frag.bulkEffective, {ids: args.ids || []});`

const bodyProjectList = `const all = doc.flattenedProjects();
const rows = [];
for (let i = 0; i < all.length; i++) { rows.push(__projectRow(all[i])); }
return {projects: rows};`

const bodyProjectGet = `return {project: __projectRow(__findProject(doc, String(args.id)))};`

const bodyProjectCreate = `if (!args.name) { throw __err('ValidationError', 'project name is required'); }
const props = {name: String(args.name)};
if (args.note) { props.note = String(args.note); }
if (args.sequential !== undefined && args.sequential !== null) { props.sequential = args.sequential === true; }
if (args.deferDate) { props.deferDate = new Date(args.deferDate); }
if (args.dueDate) { props.dueDate = new Date(args.dueDate); }
const p = app.Project(props);
if (args.folderId) {
  __findFolder(doc, String(args.folderId)).projects.push(p);
} else {
  doc.projects.push(p);
}
return {project: __projectRow(p)};`

const bodyProjectUpdate = `const p = __findProject(doc, String(args.id));
const set = args.set || {};
if (set.name !== undefined) { p.name = String(set.name); }
if (set.note !== undefined) { p.note = String(set.note); }
if (set.sequential !== undefined) { p.sequential = set.sequential === true; }
if (set.deferDate !== undefined) { p.deferDate = set.deferDate ? new Date(set.deferDate) : null; }
if (set.dueDate !== undefined) { p.dueDate = set.dueDate ? new Date(set.dueDate) : null; }
if (set.status !== undefined) {
  const raw = {active: 'active status', on_hold: 'on hold status', done: 'done status', dropped: 'dropped status'}[String(set.status)];
  if (!raw) { throw __err('ValidationError', 'unknown project status ' + set.status); }
  p.status = raw;
}
return {project: __projectRow(p)};`

const bodyProjectDelete = `const p = __findProject(doc, String(args.id));
const id = String(p.id());
app.delete(p);
return {deleted: id};`

const bodyProjectMove = `__findProject(doc, String(args.projectId));
return {moved: __bridge(app, __frag.moveProject, args)};`

const bodyTagList = `const all = doc.flattenedTags();
const rows = [];
for (let i = 0; i < all.length; i++) { rows.push(__tagRow(all[i])); }
return {tags: rows};`

const bodyTagCreate = `if (!args.name) { throw __err('ValidationError', 'tag name is required'); }
const g = app.Tag({name: String(args.name)});
if (args.parentId) {
  __findTag(doc, String(args.parentId)).tags.push(g);
} else {
  doc.tags.push(g);
}
return {tag: __tagRow(g)};`

const bodyFolderList = `const all = doc.flattenedFolders();
const rows = [];
for (let i = 0; i < all.length; i++) { rows.push(__folderRow(all[i])); }
return {folders: rows};`

const bodyFolderCreate = `if (!args.name) { throw __err('ValidationError', 'folder name is required'); }
const f = app.Folder({name: String(args.name)});
if (args.parentId) {
  __findFolder(doc, String(args.parentId)).folders.push(f);
} else {
  doc.folders.push(f);
}
return {folder: __folderRow(f)};`

const bodySystemDiagnostics = `const counts = {
  tasks: __get(function () { return doc.flattenedTasks().length; }, 0),
  projects: __get(function () { return doc.flattenedProjects().length; }, 0),
  tags: __get(function () { return doc.flattenedTags().length; }, 0),
  folders: __get(function () { return doc.flattenedFolders().length; }, 0)
};
return {
  app: {name: String(app.name()), version: __get(function () { return String(app.version()); }, '')},
  document: __get(function () { return String(doc.name()); }, ''),
  counts: counts
};`

const bodySystemPing = `return {pong: true, app: String(app.name()), at: new Date().toISOString()};`
