// Package filter is the query engine over snapshots. The host's own query
// primitives stall badly on large databases, so everything here is a plain
// linear scan in Go: cheap field checks run first, derived checks run
// last, and the scan stops as soon as the limit is reached when no sort
// demands a full pass.
package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"focusbridge-mcp-server/internal/model"
)

// Status selects tasks by lifecycle state.
type Status string

const (
	StatusAny        Status = "any"
	StatusIncomplete Status = "incomplete"
	StatusCompleted  Status = "completed"
	StatusDropped    Status = "dropped"
	// StatusAvailable selects workable tasks: incomplete, unblocked, not
	// deferred, and inside an active project if any. It is the only
	// status that needs derived state.
	StatusAvailable Status = "available"
)

// TagMatch selects how multiple requested tags combine.
type TagMatch string

const (
	TagMatchAny TagMatch = "any"
	TagMatchAll TagMatch = "all"
)

// Predicate is one task query. Zero values mean "do not filter on this".
type Predicate struct {
	Status      Status     `json:"status,omitempty"`
	Flagged     *bool      `json:"flagged,omitempty"`
	InInbox     *bool      `json:"in_inbox,omitempty"`
	ProjectIDs  []string   `json:"project_ids,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	TagMatch    TagMatch   `json:"tag_match,omitempty"`
	Search      string     `json:"search,omitempty"`
	DueBefore   *time.Time `json:"due_before,omitempty"`
	DueAfter    *time.Time `json:"due_after,omitempty"`
	DeferBefore *time.Time `json:"defer_before,omitempty"`
	DeferAfter  *time.Time `json:"defer_after,omitempty"`
	HasDueDate  *bool      `json:"has_due_date,omitempty"`
}

// Limits on the result window.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Field names a caller may project. Derived fields cost a containment
// walk per task and are skipped unless asked for.
var knownFields = map[string]bool{
	"id": true, "name": true, "note": true,
	"completed": true, "dropped": true, "flagged": true,
	"in_inbox": true, "sequential": true,
	"defer_date": true, "due_date": true, "completion_date": true,
	"estimated_minutes": true,
	"project_id":        true, "project_name": true, "parent_id": true,
	"tags": true, "tag_names": true, "order": true,
	"available": true, "blocked": true, "effective_defer_date": true,
}

var derivedFields = map[string]bool{
	"available": true, "blocked": true, "effective_defer_date": true,
}

// DefaultFields is the projection used when the caller names none.
var DefaultFields = []string{"id", "name", "completed", "flagged", "due_date", "project_id", "tag_names"}

var sortKeys = map[string]bool{"order": true, "name": true, "due": true, "defer": true}

// Options shape the result window and projection.
type Options struct {
	Limit    int      `json:"limit,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	SortBy   string   `json:"sort_by,omitempty"`
	SortDesc bool     `json:"sort_desc,omitempty"`
}

// Normalize validates the predicate and rewrites it into canonical form:
// defaulted enums, trimmed lowercase tags and search text. The returned
// predicate is what cache keys and scans should use.
func (p Predicate) Normalize() (Predicate, error) {
	out := p
	if out.Status == "" {
		out.Status = StatusAny
	}
	switch out.Status {
	case StatusAny, StatusIncomplete, StatusCompleted, StatusDropped, StatusAvailable:
	default:
		return out, fmt.Errorf("unknown status %q (want any, incomplete, completed, dropped, or available)", out.Status)
	}
	if out.TagMatch == "" {
		out.TagMatch = TagMatchAny
	}
	switch out.TagMatch {
	case TagMatchAny, TagMatchAll:
	default:
		return out, fmt.Errorf("unknown tag_match %q (want any or all)", out.TagMatch)
	}
	if len(out.Tags) > 0 {
		tags := make([]string, 0, len(out.Tags))
		for _, tag := range out.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				tags = append(tags, tag)
			}
		}
		sort.Strings(tags)
		out.Tags = tags
	}
	if len(out.ProjectIDs) > 0 {
		ids := append([]string(nil), out.ProjectIDs...)
		sort.Strings(ids)
		out.ProjectIDs = ids
	}
	out.Search = strings.ToLower(strings.TrimSpace(out.Search))
	if out.DueBefore != nil && out.DueAfter != nil && !out.DueAfter.Before(*out.DueBefore) {
		return out, fmt.Errorf("due window is empty: due_after %s is not before due_before %s", out.DueAfter.Format(time.RFC3339), out.DueBefore.Format(time.RFC3339))
	}
	if out.DeferBefore != nil && out.DeferAfter != nil && !out.DeferAfter.Before(*out.DeferBefore) {
		return out, fmt.Errorf("defer window is empty: defer_after %s is not before defer_before %s", out.DeferAfter.Format(time.RFC3339), out.DeferBefore.Format(time.RFC3339))
	}
	return out, nil
}

// Normalize validates the options and fills defaults.
func (o Options) Normalize() (Options, error) {
	out := o
	if out.Limit < 0 {
		return out, fmt.Errorf("limit must not be negative, got %d", out.Limit)
	}
	if out.Limit == 0 {
		out.Limit = DefaultLimit
	}
	if out.Limit > MaxLimit {
		out.Limit = MaxLimit
	}
	if len(out.Fields) == 0 {
		out.Fields = append([]string(nil), DefaultFields...)
	} else {
		fields := make([]string, 0, len(out.Fields))
		seen := make(map[string]bool, len(out.Fields))
		for _, f := range out.Fields {
			f = strings.ToLower(strings.TrimSpace(f))
			if f == "" || seen[f] {
				continue
			}
			if !knownFields[f] {
				return out, fmt.Errorf("unknown field %q", f)
			}
			seen[f] = true
			fields = append(fields, f)
		}
		out.Fields = fields
	}
	if out.SortBy == "" {
		out.SortBy = "order"
	}
	if !sortKeys[out.SortBy] {
		return out, fmt.Errorf("unknown sort_by %q (want order, name, due, or defer)", out.SortBy)
	}
	return out, nil
}

// CanonicalKey renders a normalized predicate and options pair as a
// deterministic string for cache correlation.
func CanonicalKey(p Predicate, o Options) string {
	// json.Marshal on structs is field-ordered, so equal queries always
	// render identically.
	raw, _ := json.Marshal(struct {
		P Predicate `json:"p"`
		O Options   `json:"o"`
	}{p, o})
	return string(raw)
}

// Row is one projected task.
type Row map[string]interface{}

// Stats describe what one scan did.
type Stats struct {
	Scanned        int  `json:"scanned"`
	Matched        int  `json:"matched"`
	Returned       int  `json:"returned"`
	ExpensiveEvals int  `json:"expensive_evals"`
	EarlyExit      bool `json:"early_exit"`
}

// Apply scans the snapshot. The predicate and options are normalized
// here, so callers may pass them raw. Matching runs cheap checks before
// derived ones; with the default document-order sort the scan stops at
// the limit, otherwise every task is visited so the sort sees the full
// match set.
func Apply(s *model.Snapshot, p Predicate, o Options, now time.Time) ([]Row, Stats, error) {
	np, err := p.Normalize()
	if err != nil {
		return nil, Stats{}, err
	}
	no, err := o.Normalize()
	if err != nil {
		return nil, Stats{}, err
	}

	m := &matcher{snap: s, pred: np, opts: no, now: now}
	if len(np.ProjectIDs) > 0 {
		m.projects = make(map[string]bool, len(np.ProjectIDs))
		for _, id := range np.ProjectIDs {
			m.projects[id] = true
		}
	}

	canExitEarly := no.SortBy == "order" && !no.SortDesc
	var matched []*model.Task
	for _, t := range s.Tasks {
		if canExitEarly && len(matched) >= no.Limit {
			m.stats.EarlyExit = true
			break
		}
		m.stats.Scanned++
		if m.matches(t) {
			matched = append(matched, t)
		}
	}
	m.stats.Matched = len(matched)

	sortTasks(matched, no)
	if len(matched) > no.Limit {
		matched = matched[:no.Limit]
	}

	rows := make([]Row, 0, len(matched))
	for _, t := range matched {
		rows = append(rows, m.project(t))
	}
	m.stats.Returned = len(rows)
	return rows, m.stats, nil
}

type matcher struct {
	snap     *model.Snapshot
	pred     Predicate
	opts     Options
	now      time.Time
	projects map[string]bool
	stats    Stats
}

func (m *matcher) matches(t *model.Task) bool {
	p := m.pred

	// Cheap flag and membership checks first.
	switch p.Status {
	case StatusIncomplete:
		if t.Completed || t.Dropped {
			return false
		}
	case StatusCompleted:
		if !t.Completed {
			return false
		}
	case StatusDropped:
		if !t.Dropped {
			return false
		}
	case StatusAvailable:
		// Derived part runs last; reject the cheap exclusions now.
		if t.Completed || t.Dropped {
			return false
		}
	}
	if p.Flagged != nil && t.Flagged != *p.Flagged {
		return false
	}
	if p.InInbox != nil && t.InInbox != *p.InInbox {
		return false
	}
	if m.projects != nil && !m.projects[t.ProjectID] {
		return false
	}
	if p.HasDueDate != nil && (t.DueDate != nil) != *p.HasDueDate {
		return false
	}
	if p.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*p.DueBefore)) {
		return false
	}
	if p.DueAfter != nil && (t.DueDate == nil || !t.DueDate.After(*p.DueAfter)) {
		return false
	}
	if p.DeferBefore != nil && (t.DeferDate == nil || !t.DeferDate.Before(*p.DeferBefore)) {
		return false
	}
	if p.DeferAfter != nil && (t.DeferDate == nil || !t.DeferDate.After(*p.DeferAfter)) {
		return false
	}

	// Text checks: tag membership, then substring search.
	if len(p.Tags) > 0 && !m.tagsMatch(t) {
		return false
	}
	if p.Search != "" {
		if !strings.Contains(strings.ToLower(t.Name), p.Search) &&
			!strings.Contains(strings.ToLower(t.Note), p.Search) {
			return false
		}
	}

	// Derived availability last; it walks the containment chain.
	if p.Status == StatusAvailable {
		m.stats.ExpensiveEvals++
		if !m.snap.Available(t, m.now) {
			return false
		}
	}
	return true
}

func (m *matcher) tagsMatch(t *model.Task) bool {
	have := make(map[string]bool, len(t.TagNames))
	for _, name := range t.TagNames {
		have[strings.ToLower(name)] = true
	}
	if m.pred.TagMatch == TagMatchAll {
		for _, want := range m.pred.Tags {
			if !have[want] {
				return false
			}
		}
		return true
	}
	for _, want := range m.pred.Tags {
		if have[want] {
			return true
		}
	}
	return false
}

// project builds the output row. Derived fields are only computed when
// the projection names them.
func (m *matcher) project(t *model.Task) Row {
	row := make(Row, len(m.opts.Fields))
	for _, f := range m.opts.Fields {
		switch f {
		case "id":
			row[f] = t.ID
		case "name":
			row[f] = t.Name
		case "note":
			row[f] = t.Note
		case "completed":
			row[f] = t.Completed
		case "dropped":
			row[f] = t.Dropped
		case "flagged":
			row[f] = t.Flagged
		case "in_inbox":
			row[f] = t.InInbox
		case "sequential":
			row[f] = t.Sequential
		case "defer_date":
			row[f] = t.DeferDate
		case "due_date":
			row[f] = t.DueDate
		case "completion_date":
			row[f] = t.CompletionDate
		case "estimated_minutes":
			row[f] = t.EstimatedMinutes
		case "project_id":
			row[f] = t.ProjectID
		case "project_name":
			if p := m.snap.ContainingProject(t); p != nil {
				row[f] = p.Name
			} else {
				row[f] = ""
			}
		case "parent_id":
			row[f] = t.ParentID
		case "tags":
			row[f] = t.Tags
		case "tag_names":
			row[f] = t.TagNames
		case "order":
			row[f] = t.Order
		case "available":
			m.stats.ExpensiveEvals++
			row[f] = m.snap.Available(t, m.now)
		case "blocked":
			m.stats.ExpensiveEvals++
			row[f] = m.snap.Blocked(t)
		case "effective_defer_date":
			m.stats.ExpensiveEvals++
			row[f] = m.snap.EffectiveDeferDate(t)
		}
	}
	return row
}

func sortTasks(tasks []*model.Task, o Options) {
	if o.SortBy == "order" && !o.SortDesc {
		return
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		var c int
		switch o.SortBy {
		case "name":
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "due":
			c = dateCompare(a.DueDate, b.DueDate, o.SortDesc)
		case "defer":
			c = dateCompare(a.DeferDate, b.DeferDate, o.SortDesc)
		default:
			c = a.Order - b.Order
		}
		if o.SortBy == "name" || o.SortBy == "order" {
			if o.SortDesc {
				c = -c
			}
		}
		if c == 0 {
			return a.Order < b.Order
		}
		return c < 0
	})
}

// dateCompare orders dates with nil always last, in either direction.
func dateCompare(a, b *time.Time, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c := 0
	if a.Before(*b) {
		c = -1
	} else if b.Before(*a) {
		c = 1
	}
	if desc {
		c = -c
	}
	return c
}
