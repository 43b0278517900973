package model

import (
	"sort"
	"sync"
	"time"
)

// Snapshot indexes one dump and answers derived questions about it. The
// indexes are fixed after construction; blocking lookups memoize under a
// lock, so a Snapshot is safe to share across goroutines.
type Snapshot struct {
	Tasks       []*Task
	Projects    []*Project
	GeneratedAt time.Time

	byID       map[string]*Task
	projByID   map[string]*Project
	rootToProj map[string]*Project
	children   map[string][]*Task

	mu          sync.Mutex
	blockedMemo map[string]bool
}

// NewSnapshot builds the indexes for a dump. Sibling lists come out sorted
// by document order.
func NewSnapshot(d Dump) *Snapshot {
	s := &Snapshot{
		Tasks:       d.Tasks,
		Projects:    d.Projects,
		GeneratedAt: d.GeneratedAt,
		byID:        make(map[string]*Task, len(d.Tasks)),
		projByID:    make(map[string]*Project, len(d.Projects)),
		rootToProj:  make(map[string]*Project, len(d.Projects)),
		children:    make(map[string][]*Task),
		blockedMemo: make(map[string]bool),
	}
	for _, t := range d.Tasks {
		s.byID[t.ID] = t
		if t.ParentID != "" {
			s.children[t.ParentID] = append(s.children[t.ParentID], t)
		}
	}
	for _, p := range d.Projects {
		s.projByID[p.ID] = p
		if p.RootTaskID != "" {
			s.rootToProj[p.RootTaskID] = p
		}
	}
	for _, siblings := range s.children {
		sort.Slice(siblings, func(i, j int) bool { return siblings[i].Order < siblings[j].Order })
	}
	return s
}

// Task returns the task with the given id, or nil.
func (s *Snapshot) Task(id string) *Task {
	return s.byID[id]
}

// Project returns the project with the given id, or nil.
func (s *Snapshot) Project(id string) *Project {
	return s.projByID[id]
}

// Children returns a parent's direct children in document order.
func (s *Snapshot) Children(parentID string) []*Task {
	return s.children[parentID]
}

// ContainingProject returns the project a task ultimately lives in, or nil
// for inbox tasks.
func (s *Snapshot) ContainingProject(t *Task) *Project {
	if t.ProjectID == "" {
		return nil
	}
	return s.projByID[t.ProjectID]
}

// Blocked reports whether a task is transitively blocked: a preceding
// incomplete sibling under a sequential container, or any blocked
// ancestor, keeps it from being workable.
func (s *Snapshot) Blocked(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedLocked(t.ID, make(map[string]bool))
}

func (s *Snapshot) blockedLocked(id string, visiting map[string]bool) bool {
	if v, ok := s.blockedMemo[id]; ok {
		return v
	}
	if visiting[id] {
		// Broken parent links cannot form a real cycle; treat one as
		// unblocked rather than recurse forever.
		return false
	}
	visiting[id] = true

	t := s.byID[id]
	if t == nil {
		return false
	}

	blocked := false
	if s.containerSequential(t) {
		for _, sib := range s.children[t.ParentID] {
			if sib.ID == t.ID {
				break
			}
			if !sib.Completed && !sib.Dropped {
				blocked = true
				break
			}
		}
	}
	if !blocked && t.ParentID != "" {
		if parent := s.byID[t.ParentID]; parent != nil {
			blocked = s.blockedLocked(parent.ID, visiting)
		}
	}

	s.blockedMemo[id] = blocked
	return blocked
}

// containerSequential reports whether the task's immediate container
// completes in order. The container is either a parent task or, for
// top-level project tasks, the project itself through its root task.
func (s *Snapshot) containerSequential(t *Task) bool {
	if t.ParentID == "" {
		return false
	}
	if parent := s.byID[t.ParentID]; parent != nil {
		return parent.Sequential
	}
	if p := s.rootToProj[t.ParentID]; p != nil {
		return p.Sequential
	}
	return false
}

// EffectiveDeferDate returns the latest defer date along the task's
// containment chain, or nil when nothing defers it. Ancestor and project
// defers push availability later even when the task itself has none.
func (s *Snapshot) EffectiveDeferDate(t *Task) *time.Time {
	latest := t.DeferDate
	seen := map[string]bool{t.ID: true}
	cur := t
	for cur.ParentID != "" && !seen[cur.ParentID] {
		seen[cur.ParentID] = true
		parent := s.byID[cur.ParentID]
		if parent == nil {
			break
		}
		latest = laterOf(latest, parent.DeferDate)
		cur = parent
	}
	if p := s.ContainingProject(t); p != nil {
		latest = laterOf(latest, p.DeferDate)
	}
	return latest
}

// EffectiveDueDate returns the nearest due date governing the task: its
// own when set, otherwise the closest ancestor's, otherwise the containing
// project's. Unlike defers, due dates inherit rather than accumulate.
func (s *Snapshot) EffectiveDueDate(t *Task) *time.Time {
	if t.DueDate != nil {
		return t.DueDate
	}
	seen := map[string]bool{t.ID: true}
	cur := t
	for cur.ParentID != "" && !seen[cur.ParentID] {
		seen[cur.ParentID] = true
		parent := s.byID[cur.ParentID]
		if parent == nil {
			break
		}
		if parent.DueDate != nil {
			return parent.DueDate
		}
		cur = parent
	}
	if p := s.ContainingProject(t); p != nil {
		return p.DueDate
	}
	return nil
}

// Available reports whether a task is workable right now: not completed,
// not dropped, not blocked, not deferred past now, and not parked inside
// an inactive project. Inbox tasks have no project to gate them.
func (s *Snapshot) Available(t *Task, now time.Time) bool {
	if t.Completed || t.Dropped {
		return false
	}
	if s.Blocked(t) {
		return false
	}
	if d := s.EffectiveDeferDate(t); d != nil && d.After(now) {
		return false
	}
	if p := s.ContainingProject(t); p != nil && p.Status != ProjectActive {
		return false
	}
	return true
}

func laterOf(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.After(*a) {
		return b
	}
	return a
}
