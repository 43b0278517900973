package script

// The tier libraries below are JavaScript for Automation source. Property
// reads on scripting objects can throw at any time, so every read goes
// through __get, which turns a throw into a fallback value instead of a
// failed script.

const libMinimal = `'use strict';
const __BEGIN = '-----BEGIN FOCUSBRIDGE RESULT-----';
const __END = '-----END FOCUSBRIDGE RESULT-----';
function __frame(obj) { return __BEGIN + '\n' + JSON.stringify(obj) + '\n' + __END; }
function __get(fn, fallback) { try { const v = fn(); return (v === undefined || v === null) ? fallback : v; } catch (e) { return fallback; } }
function __iso(d) { return (d instanceof Date) ? d.toISOString() : null; }
function __err(name, message) { const e = new Error(message); e.name = name; return e; }
function __failFrom(e) {
  const name = (e && e.name) ? String(e.name) : 'Error';
  const message = (e && e.message) ? String(e.message) : String(e);
  const ctx = (e && e.focusbridgeContext) ? String(e.focusbridgeContext) : 'primary';
  return {ok: false, error: {name: name, message: message, context: ctx}};
}`

const libStandard = `function __taskRow(t) {
  return {
    id: String(t.id()),
    name: __get(function () { return String(t.name()); }, ''),
    note: __get(function () { return String(t.note()); }, ''),
    completed: __get(function () { return t.completed() === true; }, false),
    dropped: __get(function () { return t.dropped() === true; }, false),
    flagged: __get(function () { return t.flagged() === true; }, false),
    inInbox: __get(function () { return t.inInbox() === true; }, false),
    sequential: __get(function () { return t.sequential() === true; }, false),
    deferDate: __iso(__get(function () { return t.deferDate(); }, null)),
    dueDate: __iso(__get(function () { return t.dueDate(); }, null)),
    completionDate: __iso(__get(function () { return t.completionDate(); }, null)),
    estimatedMinutes: __get(function () { return t.estimatedMinutes(); }, null),
    projectId: __get(function () { return String(t.containingProject().id()); }, null),
    parentId: __get(function () { return String(t.parentTask().id()); }, null),
    tags: __get(function () { return t.tags().map(function (g) { return String(g.id()); }); }, []),
    tagNames: __get(function () { return t.tags().map(function (g) { return String(g.name()); }); }, [])
  };
}
function __projStatus(p) {
  const raw = __get(function () { return String(p.status()); }, 'active status');
  if (raw.indexOf('on hold') >= 0) { return 'on_hold'; }
  if (raw.indexOf('done') >= 0) { return 'done'; }
  if (raw.indexOf('dropped') >= 0) { return 'dropped'; }
  return 'active';
}
function __projectRow(p) {
  return {
    id: String(p.id()),
    name: __get(function () { return String(p.name()); }, ''),
    status: __projStatus(p),
    sequential: __get(function () { return p.sequential() === true; }, false),
    folderId: __get(function () { return String(p.folder().id()); }, null),
    rootTaskId: __get(function () { return String(p.rootTask().id()); }, null),
    deferDate: __iso(__get(function () { return p.deferDate(); }, null)),
    dueDate: __iso(__get(function () { return p.dueDate(); }, null)),
    taskCount: __get(function () { return p.numberOfTasks(); }, 0),
    availableCount: __get(function () { return p.numberOfAvailableTasks(); }, 0),
    completedCount: __get(function () { return p.numberOfCompletedTasks(); }, 0)
  };
}
function __tagRow(g) {
  return {
    id: String(g.id()),
    name: __get(function () { return String(g.name()); }, ''),
    parentId: __get(function () {
      const c = g.container();
      return (String(c.class()) === 'tag') ? String(c.id()) : null;
    }, null),
    availableCount: __get(function () { return g.availableTaskCount(); }, 0)
  };
}
function __folderRow(f) {
  return {
    id: String(f.id()),
    name: __get(function () { return String(f.name()); }, ''),
    parentId: __get(function () {
      const c = f.container();
      return (String(c.class()) === 'folder') ? String(c.id()) : null;
    }, null)
  };
}
function __findTask(doc, id) {
  try { const t = doc.flattenedTasks.byId(id); t.id(); return t; } catch (e) {}
  throw __err('TaskNotFound', 'no task with id ' + id);
}
function __findProject(doc, id) {
  try { const p = doc.flattenedProjects.byId(id); p.id(); return p; } catch (e) {}
  throw __err('ProjectNotFound', 'no project with id ' + id);
}
function __findTag(doc, id) {
  try { const g = doc.flattenedTags.byId(id); g.id(); return g; } catch (e) {}
  throw __err('TagNotFound', 'no tag with id ' + id);
}
function __findFolder(doc, id) {
  try { const f = doc.flattenedFolders.byId(id); f.id(); return f; } catch (e) {}
  throw __err('FolderNotFound', 'no folder with id ' + id);
}
function __scanTasks(doc, skip) {
  skip = skip || {};
  const all = doc.flattenedTasks();
  const rows = [];
  for (let i = 0; i < all.length; i++) {
    const t = all[i];
    if (skip.completed && __get(function () { return t.completed() === true; }, false)) { continue; }
    if (skip.dropped && __get(function () { return t.dropped() === true; }, false)) { continue; }
    const row = __taskRow(t);
    row.order = i;
    rows.push(row);
  }
  return rows;
}
function __createTask(app, doc, spec) {
  if (!spec || !spec.name) { throw __err('ValidationError', 'task name is required'); }
  const props = {name: String(spec.name)};
  if (spec.note) { props.note = String(spec.note); }
  if (spec.flagged !== undefined && spec.flagged !== null) { props.flagged = spec.flagged === true; }
  if (spec.deferDate) { props.deferDate = new Date(spec.deferDate); }
  if (spec.dueDate) { props.dueDate = new Date(spec.dueDate); }
  if (spec.estimatedMinutes !== undefined && spec.estimatedMinutes !== null) { props.estimatedMinutes = spec.estimatedMinutes; }
  let t = null;
  if (spec.projectId) {
    const p = __findProject(doc, spec.projectId);
    t = app.Task(props);
    p.tasks.push(t);
  } else if (spec.parentTaskId) {
    const parent = __findTask(doc, spec.parentTaskId);
    t = app.Task(props);
    parent.tasks.push(t);
  } else {
    t = app.InboxTask(props);
    doc.inboxTasks.push(t);
  }
  return t;
}`

// libFull provides __bridge, the hop into the secondary scripting context.
// Arguments cross as one JSON binding and the reply comes back as a JSON
// string, so both directions survive arbitrary caller values. Failures are
// re-thrown tagged with focusbridgeContext so the envelope reports where
// they happened.
const libFull = `function __bridgeErr(name, message) {
  const e = __err(name, message);
  e.focusbridgeContext = 'bridge';
  return e;
}
function __bridge(app, source, args) {
  const src = 'const __bargs = ' + JSON.stringify(args) + ';\n' + source;
  let reply;
  try {
    reply = app.evaluateJavascript(src);
  } catch (e) {
    throw __bridgeErr((e && e.name) ? String(e.name) : 'BridgeError', (e && e.message) ? String(e.message) : String(e));
  }
  let parsed;
  try {
    parsed = JSON.parse(String(reply));
  } catch (e) {
    throw __bridgeErr('BridgeError', 'unparseable reply from secondary context: ' + String(reply).slice(0, 200));
  }
  if (!parsed || parsed.ok !== true) {
    throw __bridgeErr('BridgeError', (parsed && parsed.error) ? String(parsed.error) : 'secondary context reported failure');
  }
  return parsed.data;
}`

// tierSource returns the library text for a tier. Higher tiers always
// contain the lower ones, so bodies can rely on every helper below their
// own tier.
func tierSource(t Tier) string {
	switch t {
	case TierMinimal:
		return libMinimal
	case TierStandard:
		return libMinimal + "\n" + libStandard
	default:
		return libMinimal + "\n" + libStandard + "\n" + libFull + "\n" + fragmentTable()
	}
}
