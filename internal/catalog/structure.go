package catalog

import (
	"context"
	"strings"
	"time"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/correlation"
	"focusbridge-mcp-server/internal/model"
)

// ProjectQuery narrows a project listing. All zero values mean "no
// constraint".
type ProjectQuery struct {
	Status   string `json:"status,omitempty"`
	Search   string `json:"search,omitempty"`
	FolderID string `json:"folder_id,omitempty"`
}

var projectStatuses = map[string]model.ProjectStatus{
	"active":  model.ProjectActive,
	"on_hold": model.ProjectOnHold,
	"done":    model.ProjectDone,
	"dropped": model.ProjectDropped,
}

// ProjectList is a project listing result.
type ProjectList struct {
	Projects []*model.Project `json:"projects"`
	Total    int              `json:"total"`
	Meta     Meta             `json:"meta"`
}

// QueryProjects lists projects matching a query. The host always returns
// the full set; narrowing happens here, so every query variant shares one
// cached listing.
func (s *Service) QueryProjects(ctx context.Context, q ProjectQuery) (*ProjectList, error) {
	var status model.ProjectStatus
	if q.Status != "" {
		mapped, ok := projectStatuses[strings.ToLower(strings.TrimSpace(q.Status))]
		if !ok {
			return nil, validationf("unknown project status %q (want active, on_hold, done, or dropped)", q.Status)
		}
		status = mapped
	}

	all, meta, err := s.projectListing(ctx)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]*model.Project, 0, len(all))
	for _, p := range all {
		if status != "" && p.Status != status {
			continue
		}
		if q.FolderID != "" && p.FolderID != q.FolderID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		matched = append(matched, p)
	}

	meta.Operation = "project.query"
	return &ProjectList{Projects: matched, Total: len(all), Meta: meta}, nil
}

func (s *Service) projectListing(ctx context.Context) ([]*model.Project, Meta, error) {
	key := correlation.QueryKey("projects", "all")
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.([]*model.Project); good {
			s.record(traceHit("project.list"))
			return hit, Meta{Operation: "project.list", Cache: CacheHit}, nil
		}
	}

	res, meta, err := s.invoke(ctx, "project.list", nil, s.missState())
	if err != nil {
		return nil, Meta{}, err
	}
	var payload struct {
		Projects []*model.Project `json:"projects"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, Meta{}, err
	}
	s.cacheSet(cache.CategoryProjects, key, payload.Projects)
	return payload.Projects, meta, nil
}

// ProjectResult is a single-project payload.
type ProjectResult struct {
	Project *model.Project `json:"project"`
	Meta    Meta           `json:"meta"`
}

// GetProject fetches one project by id.
func (s *Service) GetProject(ctx context.Context, id string) (*ProjectResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("project id is required")
	}

	key := correlation.EntityKey("project", id)
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.(*model.Project); good {
			s.record(traceHit("project.get"))
			return &ProjectResult{Project: hit, Meta: Meta{Operation: "project.get", Cache: CacheHit}}, nil
		}
	}

	res, meta, err := s.invoke(ctx, "project.get", map[string]interface{}{"id": id}, s.missState())
	if err != nil {
		return nil, err
	}
	var payload struct {
		Project *model.Project `json:"project"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	s.cacheSet(cache.CategoryProjects, key, payload.Project)
	return &ProjectResult{Project: payload.Project, Meta: meta}, nil
}

// ProjectSpec describes a project to create.
type ProjectSpec struct {
	Name       string     `json:"name"`
	Note       string     `json:"note,omitempty"`
	FolderID   string     `json:"folder_id,omitempty"`
	Sequential *bool      `json:"sequential,omitempty"`
	DeferDate  *time.Time `json:"defer_date,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// CreateProject creates a project, in a folder when FolderID is set.
func (s *Service) CreateProject(ctx context.Context, spec ProjectSpec) (*ProjectResult, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, validationf("project name is required")
	}

	params := map[string]interface{}{"name": spec.Name}
	if spec.Note != "" {
		params["note"] = spec.Note
	}
	if spec.FolderID != "" {
		params["folderId"] = spec.FolderID
	}
	if spec.Sequential != nil {
		params["sequential"] = *spec.Sequential
	}
	if spec.DeferDate != nil {
		params["deferDate"] = spec.DeferDate.UTC().Format(time.RFC3339)
	}
	if spec.DueDate != nil {
		params["dueDate"] = spec.DueDate.UTC().Format(time.RFC3339)
	}

	res, meta, err := s.invoke(ctx, "project.create", params, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Project *model.Project `json:"project"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateStructural(cache.CategoryProjects)
	return &ProjectResult{Project: payload.Project, Meta: meta}, nil
}

// ProjectChanges carries project fields to change. Nil pointers leave
// fields alone; the Clear flags null dates out.
type ProjectChanges struct {
	Name           *string    `json:"name,omitempty"`
	Note           *string    `json:"note,omitempty"`
	Status         *string    `json:"status,omitempty"`
	Sequential     *bool      `json:"sequential,omitempty"`
	DeferDate      *time.Time `json:"defer_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	ClearDeferDate bool       `json:"clear_defer_date,omitempty"`
	ClearDueDate   bool       `json:"clear_due_date,omitempty"`
}

// UpdateProject applies changes to one project.
func (s *Service) UpdateProject(ctx context.Context, id string, changes ProjectChanges) (*ProjectResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("project id is required")
	}

	set := map[string]interface{}{}
	if changes.Name != nil {
		if strings.TrimSpace(*changes.Name) == "" {
			return nil, validationf("project name cannot be empty")
		}
		set["name"] = *changes.Name
	}
	if changes.Note != nil {
		set["note"] = *changes.Note
	}
	if changes.Status != nil {
		if _, ok := projectStatuses[strings.ToLower(strings.TrimSpace(*changes.Status))]; !ok {
			return nil, validationf("unknown project status %q (want active, on_hold, done, or dropped)", *changes.Status)
		}
		set["status"] = strings.ToLower(strings.TrimSpace(*changes.Status))
	}
	if changes.Sequential != nil {
		set["sequential"] = *changes.Sequential
	}
	// A JSON null under a date key means "clear"; an absent key means
	// "leave alone". The script body relies on that distinction.
	if changes.ClearDeferDate {
		set["deferDate"] = nil
	} else if changes.DeferDate != nil {
		set["deferDate"] = changes.DeferDate.UTC().Format(time.RFC3339)
	}
	if changes.ClearDueDate {
		set["dueDate"] = nil
	} else if changes.DueDate != nil {
		set["dueDate"] = changes.DueDate.UTC().Format(time.RFC3339)
	}
	if len(set) == 0 {
		return nil, validationf("update requires at least one change")
	}

	res, meta, err := s.invoke(ctx, "project.update", map[string]interface{}{"id": id, "set": set}, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Project *model.Project `json:"project"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateStructural(cache.CategoryProjects)
	return &ProjectResult{Project: payload.Project, Meta: meta}, nil
}

// DeleteProject removes a project and everything under it.
func (s *Service) DeleteProject(ctx context.Context, id string) (*DeleteResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("project id is required")
	}
	res, meta, err := s.invoke(ctx, "project.delete", map[string]interface{}{"id": id}, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Deleted string `json:"deleted"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	s.invalidateStructural(cache.CategoryProjects)
	return &DeleteResult{Deleted: payload.Deleted, Meta: meta}, nil
}

// MoveProject relocates a project into a folder, or to the library root
// when folderID is empty.
func (s *Service) MoveProject(ctx context.Context, id, folderID string) (*MoveResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationf("project id is required")
	}
	if !s.bridgeOn() {
		return nil, validationf("moving needs the secondary scripting context, which host.enable_bridge has turned off")
	}

	params := map[string]interface{}{"projectId": id}
	if folderID != "" {
		params["folderId"] = folderID
	}

	res, meta, err := s.invoke(ctx, "project.move", params, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Moved struct {
			ProjectID string `json:"projectId"`
			MovedTo   string `json:"movedTo"`
		} `json:"moved"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateStructural(cache.CategoryProjects)
	return &MoveResult{ID: payload.Moved.ProjectID, MovedTo: payload.Moved.MovedTo, Meta: meta}, nil
}

// TagList is a tag listing result.
type TagList struct {
	Tags []*model.Tag `json:"tags"`
	Meta Meta         `json:"meta"`
}

// ListTags lists every tag.
func (s *Service) ListTags(ctx context.Context) (*TagList, error) {
	key := correlation.QueryKey("tags", "all")
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.([]*model.Tag); good {
			s.record(traceHit("tag.list"))
			return &TagList{Tags: hit, Meta: Meta{Operation: "tag.list", Cache: CacheHit}}, nil
		}
	}

	res, meta, err := s.invoke(ctx, "tag.list", nil, s.missState())
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tags []*model.Tag `json:"tags"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	s.cacheSet(cache.CategoryTags, key, payload.Tags)
	return &TagList{Tags: payload.Tags, Meta: meta}, nil
}

// TagResult is a single-tag payload.
type TagResult struct {
	Tag  *model.Tag `json:"tag"`
	Meta Meta       `json:"meta"`
}

// CreateTag creates a tag, nested under parentID when given.
func (s *Service) CreateTag(ctx context.Context, name, parentID string) (*TagResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationf("tag name is required")
	}

	params := map[string]interface{}{"name": name}
	if parentID != "" {
		params["parentId"] = parentID
	}

	res, meta, err := s.invoke(ctx, "tag.create", params, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tag *model.Tag `json:"tag"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateStructural(cache.CategoryTags)
	return &TagResult{Tag: payload.Tag, Meta: meta}, nil
}

// FolderList is a folder listing result.
type FolderList struct {
	Folders []*model.Folder `json:"folders"`
	Meta    Meta            `json:"meta"`
}

// ListFolders lists every folder.
func (s *Service) ListFolders(ctx context.Context) (*FolderList, error) {
	key := correlation.QueryKey("folders", "all")
	if v, ok := s.cacheGet(key); ok {
		if hit, good := v.([]*model.Folder); good {
			s.record(traceHit("folder.list"))
			return &FolderList{Folders: hit, Meta: Meta{Operation: "folder.list", Cache: CacheHit}}, nil
		}
	}

	res, meta, err := s.invoke(ctx, "folder.list", nil, s.missState())
	if err != nil {
		return nil, err
	}
	var payload struct {
		Folders []*model.Folder `json:"folders"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	s.cacheSet(cache.CategoryFolders, key, payload.Folders)
	return &FolderList{Folders: payload.Folders, Meta: meta}, nil
}

// FolderResult is a single-folder payload.
type FolderResult struct {
	Folder *model.Folder `json:"folder"`
	Meta   Meta          `json:"meta"`
}

// CreateFolder creates a folder, nested under parentID when given.
func (s *Service) CreateFolder(ctx context.Context, name, parentID string) (*FolderResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationf("folder name is required")
	}

	params := map[string]interface{}{"name": name}
	if parentID != "" {
		params["parentId"] = parentID
	}

	res, meta, err := s.invoke(ctx, "folder.create", params, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Folder *model.Folder `json:"folder"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	s.invalidateStructural(cache.CategoryFolders)
	return &FolderResult{Folder: payload.Folder, Meta: meta}, nil
}
