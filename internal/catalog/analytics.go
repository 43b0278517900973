package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/correlation"
	"focusbridge-mcp-server/internal/model"
)

// topProjectLimit caps the per-project breakdown in reports.
const topProjectLimit = 5

// ProjectCount is one project's share of a report.
type ProjectCount struct {
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	Count       int        `json:"count"`
	Oldest      *time.Time `json:"oldest,omitempty"`
}

// OverdueReport summarizes tasks whose due date has passed.
type OverdueReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Total       int            `json:"total"`
	Flagged     int            `json:"flagged"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
	ByProject   []ProjectCount `json:"by_project"`
	Meta        Meta           `json:"meta"`
}

// Overdue reports incomplete tasks past their due date, grouped by
// project. A task counts only when it carries its own due date; a date
// inherited from a parent or project marks the carrying row overdue, not
// every row under it.
func (s *Service) Overdue(ctx context.Context) (*OverdueReport, error) {
	key := correlation.QueryKey("analytics", "overdue")
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.(*OverdueReport); good {
			out := *hit
			out.Meta = Meta{Operation: "analytics.overdue", Cache: CacheHit}
			s.record(traceHit("analytics.overdue"))
			return &out, nil
		}
	}

	snap, meta, err := s.snapshot(ctx, true)
	if err != nil {
		return nil, err
	}

	now := s.now()
	byProject := map[string]*ProjectCount{}
	report := &OverdueReport{GeneratedAt: snap.GeneratedAt}
	for _, t := range snap.Tasks {
		if t.Completed || t.Dropped || t.DueDate == nil || !t.DueDate.Before(now) {
			continue
		}
		report.Total++
		if t.Flagged {
			report.Flagged++
		}
		if report.Oldest == nil || t.DueDate.Before(*report.Oldest) {
			report.Oldest = t.DueDate
		}
		pc, ok := byProject[t.ProjectID]
		if !ok {
			pc = &ProjectCount{ProjectID: t.ProjectID, ProjectName: projectName(snap, t.ProjectID)}
			byProject[t.ProjectID] = pc
		}
		pc.Count++
		if pc.Oldest == nil || t.DueDate.Before(*pc.Oldest) {
			pc.Oldest = t.DueDate
		}
	}
	report.ByProject = rankProjects(byProject, 0)
	report.Meta = Meta{
		Operation:  "analytics.overdue",
		Invocation: meta.Invocation,
		DurationMS: meta.DurationMS,
		Cache:      meta.Cache,
	}

	s.cacheSet(cache.CategoryAnalytics, key, report)
	return report, nil
}

// DayCount is one calendar day's completions.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ProductivityReport summarizes completions over a trailing window.
type ProductivityReport struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	Days             int            `json:"days"`
	Completed        int            `json:"completed"`
	CompletedFlagged int            `json:"completed_flagged"`
	AveragePerDay    float64        `json:"average_per_day"`
	PerDay           []DayCount     `json:"per_day"`
	TopProjects      []ProjectCount `json:"top_projects"`
	Meta             Meta           `json:"meta"`
}

// Productivity reports completions over the trailing days window, bucketed
// by UTC calendar day. Days outside 1 through 90 are clamped; zero takes
// the 7 day default. Every day in the window appears in PerDay, zero or
// not.
func (s *Service) Productivity(ctx context.Context, days int) (*ProductivityReport, error) {
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	key := correlation.QueryKey("analytics", fmt.Sprintf("productivity:%d", days))
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.(*ProductivityReport); good {
			out := *hit
			out.Meta = Meta{Operation: "analytics.productivity", Cache: CacheHit}
			s.record(traceHit("analytics.productivity"))
			return &out, nil
		}
	}

	snap, meta, err := s.snapshot(ctx, false)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	perDay := make([]DayCount, 0, days)
	dayIndex := make(map[string]int, days)
	for i := days - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		dayIndex[date] = len(perDay)
		perDay = append(perDay, DayCount{Date: date})
	}

	report := &ProductivityReport{GeneratedAt: snap.GeneratedAt, Days: days, PerDay: perDay}
	byProject := map[string]*ProjectCount{}
	for _, t := range snap.Tasks {
		if !t.Completed || t.CompletionDate == nil {
			continue
		}
		date := t.CompletionDate.UTC().Format("2006-01-02")
		idx, inWindow := dayIndex[date]
		if !inWindow {
			continue
		}
		report.PerDay[idx].Count++
		report.Completed++
		if t.Flagged {
			report.CompletedFlagged++
		}
		pc, ok := byProject[t.ProjectID]
		if !ok {
			pc = &ProjectCount{ProjectID: t.ProjectID, ProjectName: projectName(snap, t.ProjectID)}
			byProject[t.ProjectID] = pc
		}
		pc.Count++
	}
	report.AveragePerDay = float64(report.Completed) / float64(days)
	report.TopProjects = rankProjects(byProject, topProjectLimit)
	report.Meta = Meta{
		Operation:  "analytics.productivity",
		Invocation: meta.Invocation,
		DurationMS: meta.DurationMS,
		Cache:      meta.Cache,
	}

	s.cacheSet(cache.CategoryAnalytics, key, report)
	return report, nil
}

func projectName(snap *model.Snapshot, id string) string {
	if id == "" {
		return "Inbox"
	}
	if p := snap.Project(id); p != nil {
		return p.Name
	}
	return id
}

func rankProjects(byProject map[string]*ProjectCount, limit int) []ProjectCount {
	out := make([]ProjectCount, 0, len(byProject))
	for _, pc := range byProject {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ProjectName < out[j].ProjectName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
