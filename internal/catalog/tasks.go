package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"focusbridge-mcp-server/internal/bridge"
	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/correlation"
	"focusbridge-mcp-server/internal/filter"
	"focusbridge-mcp-server/internal/model"
	"focusbridge-mcp-server/internal/recorder"
)

// Batch limits. Chunking keeps every generated script far from the size
// ceiling; the concurrency cap keeps a big batch from monopolizing the
// host.
const (
	batchChunkSize   = 25
	batchConcurrency = 3
	maxBatchItems    = 500
)

// TaskQuery is one read over tasks: a predicate plus result shaping.
type TaskQuery struct {
	Predicate filter.Predicate `json:"predicate"`
	Options   filter.Options   `json:"options"`
}

// TaskRows is a query result: projected rows plus scan statistics.
type TaskRows struct {
	Rows        []filter.Row `json:"rows"`
	Stats       filter.Stats `json:"stats"`
	GeneratedAt time.Time    `json:"generated_at"`
	Meta        Meta         `json:"meta"`
}

// QueryTasks runs a predicate over a task snapshot. Responses are cached
// under a hash of the normalized query; any task write clears them.
func (s *Service) QueryTasks(ctx context.Context, q TaskQuery) (*TaskRows, error) {
	pred, err := q.Predicate.Normalize()
	if err != nil {
		return nil, validationf("invalid predicate: %v", err)
	}
	opts, err := q.Options.Normalize()
	if err != nil {
		return nil, validationf("invalid options: %v", err)
	}

	key := correlation.QueryKey("tasks", filter.CanonicalKey(pred, opts))
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.(*TaskRows); good {
			out := *hit
			out.Meta = Meta{Operation: "task.query", Cache: CacheHit}
			s.record(traceHit("task.query"))
			return &out, nil
		}
	}

	// Incomplete and available predicates never match finished rows, so
	// the dump can skip them at the source.
	openOnly := pred.Status == filter.StatusIncomplete || pred.Status == filter.StatusAvailable
	snap, meta, err := s.snapshot(ctx, openOnly)
	if err != nil {
		return nil, err
	}

	rows, stats, err := filter.Apply(snap, pred, opts, s.now())
	if err != nil {
		return nil, validationf("%v", err)
	}

	out := &TaskRows{
		Rows:        rows,
		Stats:       stats,
		GeneratedAt: snap.GeneratedAt,
		Meta: Meta{
			Operation:  "task.query",
			Invocation: meta.Invocation,
			DurationMS: meta.DurationMS,
			Cache:      meta.Cache,
		},
	}
	s.cacheSet(cache.CategoryTasks, key, out)
	return out, nil
}

// TaskResult is a single-task payload.
type TaskResult struct {
	Task *model.Task `json:"task"`
	Meta Meta        `json:"meta"`
}

// GetTask fetches one task by id.
func (s *Service) GetTask(ctx context.Context, id string) (*TaskResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("task id is required")
	}

	key := correlation.EntityKey("task", id)
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.(*model.Task); good {
			s.record(traceHit("task.get"))
			return &TaskResult{Task: hit, Meta: Meta{Operation: "task.get", Cache: CacheHit}}, nil
		}
	}

	res, meta, err := s.invoke(ctx, "task.get", map[string]interface{}{"id": id}, s.missState())
	if err != nil {
		return nil, err
	}
	var payload struct {
		Task *model.Task `json:"task"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	s.cacheSet(cache.CategoryTasks, key, payload.Task)
	return &TaskResult{Task: payload.Task, Meta: meta}, nil
}

// TaskSpec describes one task to create.
type TaskSpec struct {
	Name             string             `json:"name"`
	Note             string             `json:"note,omitempty"`
	ProjectID        string             `json:"project_id,omitempty"`
	ParentTaskID     string             `json:"parent_task_id,omitempty"`
	Flagged          bool               `json:"flagged,omitempty"`
	DeferDate        *time.Time         `json:"defer_date,omitempty"`
	DueDate          *time.Time         `json:"due_date,omitempty"`
	EstimatedMinutes *int               `json:"estimated_minutes,omitempty"`
	Tags             []string           `json:"tags,omitempty"`
	Repetition       *bridge.Repetition `json:"repetition,omitempty"`
}

func (t TaskSpec) validate(bridgeOn bool) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name is required")
	}
	if t.ProjectID != "" && t.ParentTaskID != "" {
		return fmt.Errorf("project_id and parent_task_id are mutually exclusive")
	}
	if !bridgeOn && (len(t.Tags) > 0 || t.Repetition != nil) {
		return fmt.Errorf("tags and repetition need the secondary scripting context, which host.enable_bridge has turned off")
	}
	if t.Repetition != nil {
		if err := t.Repetition.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t TaskSpec) params() map[string]interface{} {
	p := map[string]interface{}{"name": t.Name}
	if t.Note != "" {
		p["note"] = t.Note
	}
	if t.Flagged {
		p["flagged"] = true
	}
	if t.ProjectID != "" {
		p["projectId"] = t.ProjectID
	}
	if t.ParentTaskID != "" {
		p["parentTaskId"] = t.ParentTaskID
	}
	if t.DeferDate != nil {
		p["deferDate"] = t.DeferDate.UTC().Format(time.RFC3339)
	}
	if t.DueDate != nil {
		p["dueDate"] = t.DueDate.UTC().Format(time.RFC3339)
	}
	if t.EstimatedMinutes != nil {
		p["estimatedMinutes"] = *t.EstimatedMinutes
	}
	if len(t.Tags) > 0 {
		p["tags"] = t.Tags
	}
	if t.Repetition != nil {
		p["repetition"] = t.Repetition.Params()
	}
	return p
}

// CreateTask creates one task. Destination defaults to the inbox; tags
// and repetition ride through the secondary context after creation, so a
// bridge failure here can leave a created task behind (the failure
// message names its id).
func (s *Service) CreateTask(ctx context.Context, spec TaskSpec) (*TaskResult, error) {
	if err := spec.validate(s.bridgeOn()); err != nil {
		return nil, validationf("%v", err)
	}

	res, meta, err := s.invoke(ctx, "task.create", spec.params(), "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Task *model.Task `json:"task"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateTaskWrite(len(spec.Tags) > 0)
	return &TaskResult{Task: payload.Task, Meta: meta}, nil
}

// BatchItem is the outcome for one spec in a batch, in input order.
type BatchItem struct {
	Index int         `json:"index"`
	OK    bool        `json:"ok"`
	Task  *model.Task `json:"task,omitempty"`
	Error string      `json:"error,omitempty"`
}

// BatchResult summarizes a batch creation.
type BatchResult struct {
	Created int         `json:"created"`
	Failed  int         `json:"failed"`
	Items   []BatchItem `json:"items"`
	Meta    Meta        `json:"meta"`
}

// BatchCreateTasks creates many tasks with bounded parallel chunks. Items
// fail independently inside a chunk; a chunk-level failure (timeout,
// host unreachable) fails the whole call after cache invalidation, since
// earlier chunks may already have written.
func (s *Service) BatchCreateTasks(ctx context.Context, specs []TaskSpec) (*BatchResult, error) {
	if len(specs) == 0 {
		return nil, validationf("batch requires at least one task")
	}
	if len(specs) > maxBatchItems {
		return nil, validationf("batch of %d items exceeds the limit of %d", len(specs), maxBatchItems)
	}

	bridgeOn := s.bridgeOn()
	touchesTags := false
	for i, spec := range specs {
		if err := spec.validate(bridgeOn); err != nil {
			return nil, validationf("item %d: %v", i, err)
		}
		if len(spec.Tags) > 0 {
			touchesTags = true
		}
	}

	start := time.Now()
	items := make([]BatchItem, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for offset := 0; offset < len(specs); offset += batchChunkSize {
		offset := offset
		end := offset + batchChunkSize
		if end > len(specs) {
			end = len(specs)
		}
		chunk := specs[offset:end]

		g.Go(func() error {
			specMaps := make([]map[string]interface{}, len(chunk))
			for i, spec := range chunk {
				specMaps[i] = spec.params()
			}
			res, _, err := s.invoke(gctx, "task.create_many", map[string]interface{}{"items": specMaps}, "")
			if err != nil {
				return fmt.Errorf("items %d-%d: %w", offset, end-1, err)
			}
			var payload struct {
				Created int `json:"created"`
				Results []struct {
					OK    bool        `json:"ok"`
					Index int         `json:"index"`
					Task  *model.Task `json:"task"`
					Error string      `json:"error"`
				} `json:"results"`
			}
			if err := res.DecodeInto(&payload); err != nil {
				return fmt.Errorf("items %d-%d: %w", offset, end-1, err)
			}
			for _, r := range payload.Results {
				global := offset + r.Index
				if global < 0 || global >= len(items) {
					continue
				}
				// Chunks cover disjoint index ranges, so no lock is needed.
				items[global] = BatchItem{Index: global, OK: r.OK, Task: r.Task, Error: r.Error}
			}
			return nil
		})
	}

	waitErr := g.Wait()
	s.invalidateTaskWrite(touchesTags)
	if waitErr != nil {
		return nil, waitErr
	}

	out := &BatchResult{
		Items: items,
		Meta:  Meta{Operation: "task.create_many", DurationMS: time.Since(start).Milliseconds()},
	}
	for _, item := range items {
		if item.OK {
			out.Created++
		} else {
			out.Failed++
		}
	}
	return out, nil
}

// TaskChanges carries the fields to set and clear on a task. Nil pointers
// leave fields alone; Clear removes values, keeping "set to zero" and
// "leave alone" distinguishable.
type TaskChanges struct {
	Name             *string    `json:"name,omitempty"`
	Note             *string    `json:"note,omitempty"`
	Flagged          *bool      `json:"flagged,omitempty"`
	Sequential       *bool      `json:"sequential,omitempty"`
	DeferDate        *time.Time `json:"defer_date,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	Clear            []string   `json:"clear,omitempty"`
}

var clearableTaskFields = map[string]string{
	"defer_date":        "deferDate",
	"due_date":          "dueDate",
	"estimated_minutes": "estimatedMinutes",
	"note":              "note",
}

// UpdateTask applies changes to one task.
func (s *Service) UpdateTask(ctx context.Context, id string, changes TaskChanges) (*TaskResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("task id is required")
	}

	set := map[string]interface{}{}
	if changes.Name != nil {
		if strings.TrimSpace(*changes.Name) == "" {
			return nil, validationf("task name cannot be empty")
		}
		set["name"] = *changes.Name
	}
	if changes.Note != nil {
		set["note"] = *changes.Note
	}
	if changes.Flagged != nil {
		set["flagged"] = *changes.Flagged
	}
	if changes.Sequential != nil {
		set["sequential"] = *changes.Sequential
	}
	if changes.DeferDate != nil {
		set["deferDate"] = changes.DeferDate.UTC().Format(time.RFC3339)
	}
	if changes.DueDate != nil {
		set["dueDate"] = changes.DueDate.UTC().Format(time.RFC3339)
	}
	if changes.EstimatedMinutes != nil {
		set["estimatedMinutes"] = *changes.EstimatedMinutes
	}

	clear := make([]string, 0, len(changes.Clear))
	for _, f := range changes.Clear {
		mapped, ok := clearableTaskFields[strings.ToLower(strings.TrimSpace(f))]
		if !ok {
			return nil, validationf("field %q cannot be cleared (want defer_date, due_date, estimated_minutes, or note)", f)
		}
		clear = append(clear, mapped)
	}
	if len(set) == 0 && len(clear) == 0 {
		return nil, validationf("update requires at least one change")
	}

	params := map[string]interface{}{"id": id, "set": set}
	if len(clear) > 0 {
		params["clear"] = clear
	}

	res, meta, err := s.invoke(ctx, "task.update", params, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Task *model.Task `json:"task"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateTaskWrite(false)
	return &TaskResult{Task: payload.Task, Meta: meta}, nil
}

// CompleteTask marks a task done, or un-does that with undo set.
func (s *Service) CompleteTask(ctx context.Context, id string, undo bool) (*TaskResult, error) {
	return s.taskStateChange(ctx, "task.complete", id, map[string]interface{}{"id": id, "undo": undo})
}

// DropTask marks a task dropped.
func (s *Service) DropTask(ctx context.Context, id string) (*TaskResult, error) {
	return s.taskStateChange(ctx, "task.drop", id, map[string]interface{}{"id": id})
}

func (s *Service) taskStateChange(ctx context.Context, op, id string, params map[string]interface{}) (*TaskResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("task id is required")
	}
	res, meta, err := s.invoke(ctx, op, params, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Task *model.Task `json:"task"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	s.invalidateTaskWrite(false)
	return &TaskResult{Task: payload.Task, Meta: meta}, nil
}

// DeleteResult reports a removal.
type DeleteResult struct {
	Deleted string `json:"deleted"`
	Meta    Meta   `json:"meta"`
}

// DeleteTask removes a task permanently.
func (s *Service) DeleteTask(ctx context.Context, id string) (*DeleteResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("task id is required")
	}
	res, meta, err := s.invoke(ctx, "task.delete", map[string]interface{}{"id": id}, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Deleted string `json:"deleted"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	s.invalidateTaskWrite(false)
	return &DeleteResult{Deleted: payload.Deleted, Meta: meta}, nil
}

// MoveResult reports where an item landed.
type MoveResult struct {
	ID      string `json:"id"`
	MovedTo string `json:"moved_to"`
	Meta    Meta   `json:"meta"`
}

// MoveTask relocates a task with identity preserved. Moving runs entirely
// in the secondary context; there is no primary-context fallback that
// keeps the task id stable.
func (s *Service) MoveTask(ctx context.Context, id string, target bridge.MoveTarget) (*MoveResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("task id is required")
	}
	if !s.bridgeOn() {
		return nil, validationf("moving needs the secondary scripting context, which host.enable_bridge has turned off")
	}
	if err := target.Validate(); err != nil {
		return nil, validationf("%v", err)
	}

	res, meta, err := s.invoke(ctx, "task.move", target.Args(id), "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Moved struct {
			TaskID  string `json:"taskId"`
			MovedTo string `json:"movedTo"`
		} `json:"moved"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateTaskWrite(false)
	return &MoveResult{ID: payload.Moved.TaskID, MovedTo: payload.Moved.MovedTo, Meta: meta}, nil
}

// TagAssignment reports the tags now on a task.
type TagAssignment struct {
	TaskID string   `json:"task_id"`
	Tags   []string `json:"tags"`
	Meta   Meta     `json:"meta"`
}

// AssignTags adds tags to a task, minting any that do not exist yet.
func (s *Service) AssignTags(ctx context.Context, id string, tags []string) (*TagAssignment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("task id is required")
	}
	if len(tags) == 0 {
		return nil, validationf("at least one tag is required")
	}
	if !s.bridgeOn() {
		return nil, validationf("tag assignment needs the secondary scripting context, which host.enable_bridge has turned off")
	}

	res, meta, err := s.invoke(ctx, "task.assign_tags", map[string]interface{}{"taskId": id, "tags": tags}, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Assigned struct {
			TaskID string   `json:"taskId"`
			Tags   []string `json:"tags"`
		} `json:"assigned"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateTaskWrite(true)
	return &TagAssignment{TaskID: payload.Assigned.TaskID, Tags: payload.Assigned.Tags, Meta: meta}, nil
}

// RepetitionResult reports a task's recurrence after a change.
type RepetitionResult struct {
	TaskID string  `json:"task_id"`
	Rule   *string `json:"rule"`
	Method string  `json:"method,omitempty"`
	Meta   Meta    `json:"meta"`
}

// SetRepetition installs a recurrence rule on a task, or clears it when
// rep is nil.
func (s *Service) SetRepetition(ctx context.Context, id string, rep *bridge.Repetition) (*RepetitionResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("task id is required")
	}
	if !s.bridgeOn() {
		return nil, validationf("repetition needs the secondary scripting context, which host.enable_bridge has turned off")
	}

	var params map[string]interface{}
	if rep == nil {
		params = bridge.ClearRepetitionArgs(id)
	} else {
		if err := rep.Validate(); err != nil {
			return nil, validationf("%v", err)
		}
		params = rep.Args(id)
	}

	res, meta, err := s.invoke(ctx, "task.set_repetition", params, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Repetition struct {
			TaskID string  `json:"taskId"`
			Rule   *string `json:"repetition"`
			Method string  `json:"method"`
		} `json:"repetition"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateTaskWrite(false)
	return &RepetitionResult{
		TaskID: payload.Repetition.TaskID,
		Rule:   payload.Repetition.Rule,
		Method: payload.Repetition.Method,
		Meta:   meta,
	}, nil
}

// EffectiveRow is one task's inherited scheduling state.
type EffectiveRow struct {
	ID                 string     `json:"id"`
	Found              bool       `json:"found"`
	EffectiveDeferDate *time.Time `json:"effectiveDeferDate,omitempty"`
	EffectiveDueDate   *time.Time `json:"effectiveDueDate,omitempty"`
	Repetition         *string    `json:"repetition,omitempty"`
	TaskStatus         string     `json:"taskStatus,omitempty"`
}

// EffectiveResult carries effective dates plus where they came from.
type EffectiveResult struct {
	// Source is "bridge" when the secondary context answered, "snapshot"
	// when the dates were derived Go-side with escalation off.
	Source string         `json:"source"`
	Tasks  []EffectiveRow `json:"tasks"`
	Meta   Meta           `json:"meta"`
}

// EffectiveDates resolves inherited defer/due dates for a set of tasks.
// With the bridge enabled the secondary context answers authoritatively;
// without it the dates are derived from a snapshot, which matches the
// application's inheritance rules but can trail an un-round-tripped
// secondary write and omits repetition summaries.
func (s *Service) EffectiveDates(ctx context.Context, ids []string) (*EffectiveResult, error) {
	if len(ids) == 0 {
		return nil, validationf("at least one task id is required")
	}

	if s.bridgeOn() {
		res, meta, err := s.invoke(ctx, "task.effective", map[string]interface{}{"ids": ids}, "")
		if err != nil {
			return nil, err
		}
		var payload struct {
			Tasks []EffectiveRow `json:"tasks"`
		}
		if err := res.DecodeInto(&payload); err != nil {
			return nil, err
		}
		return &EffectiveResult{Source: "bridge", Tasks: payload.Tasks, Meta: meta}, nil
	}

	snap, meta, err := s.snapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	rows := make([]EffectiveRow, 0, len(ids))
	for _, id := range ids {
		t := snap.Task(id)
		if t == nil {
			rows = append(rows, EffectiveRow{ID: id})
			continue
		}
		rows = append(rows, EffectiveRow{
			ID:                 id,
			Found:              true,
			EffectiveDeferDate: snap.EffectiveDeferDate(t),
			EffectiveDueDate:   snap.EffectiveDueDate(t),
		})
	}
	meta.Operation = "task.effective"
	return &EffectiveResult{Source: "snapshot", Tasks: rows, Meta: meta}, nil
}

func traceHit(op string) recorder.Trace {
	return recorder.Trace{Operation: op, Cache: CacheHit, Outcome: "ok"}
}
