package engine

import (
	"context"

	"github.com/google/uuid"

	"fieldline/internal/audit"
	"fieldline/internal/domain"
	"fieldline/internal/fault"
	"fieldline/internal/identity"
	"fieldline/internal/repo"
	"fieldline/internal/visibility"
)

// trackedFields are the task fields the audit trail diffs on edit.
var trackedFields = []string{
	"title", "description", "project_id", "visibility",
	"assigned_user_ids", "assigned_group_ids", "dependent_task_ids",
	"geo_fences", "require_token", "require_location",
}

func taskSnapshot(t domain.Task) audit.Snapshot {
	var projectID any
	if t.ProjectID != nil {
		projectID = *t.ProjectID
	}
	return audit.Snapshot{
		"title":              t.Title,
		"description":        t.Description,
		"project_id":         projectID,
		"visibility":         string(t.Visibility),
		"assigned_user_ids":  identity.NormalizeIDs(t.AssignedUserIDs),
		"assigned_group_ids": identity.NormalizeIDs(t.AssignedGroupIDs),
		"dependent_task_ids": identity.NormalizeIDs(t.DependentTaskIDs),
		"geo_fences":         t.Fences,
		"require_token":      t.RequireToken,
		"require_location":   t.RequireLocation,
	}
}

// TaskDraft is the creation payload with legacy single-value aliases
// already merged in by the transport layer.
type TaskDraft struct {
	OrgID            string
	ProjectID        *string
	Title            string
	Description      string
	Visibility       domain.Visibility
	AssignedUserIDs  []string
	AssignedGroupIDs []string
	DependentTaskIDs []string
	Fences           []domain.GeoFence
	RequireToken     bool
	RequireLocation  bool
}

func (e Engine) CreateTask(ctx context.Context, actor domain.Actor, draft TaskDraft) (domain.Task, error) {
	if err := e.requireManagerial(actor); err != nil {
		return domain.Task{}, err
	}
	if draft.Title == "" {
		return domain.Task{}, fault.New(fault.Validation, "title required").WithDetail("field", "title")
	}
	vis := draft.Visibility
	if vis == "" && e.Config != nil {
		vis = domain.Visibility(e.Config.Defaults.TaskVisibility)
	}
	if err := visibility.CanSetMode(actor, vis); err != nil {
		return domain.Task{}, err
	}
	orgID, err := e.orgIDFor(actor, draft.OrgID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.validateFences(draft.Fences); err != nil {
		return domain.Task{}, err
	}
	now := e.timestamp()
	task := domain.Task{
		ID:               uuid.NewString(),
		OrgID:            orgID,
		ProjectID:        draft.ProjectID,
		Title:            draft.Title,
		Description:      draft.Description,
		Status:           domain.StatusPending,
		Visibility:       vis,
		AssignedUserIDs:  identity.NormalizeIDs(draft.AssignedUserIDs),
		AssignedGroupIDs: identity.NormalizeIDs(draft.AssignedGroupIDs),
		DependentTaskIDs: identity.NormalizeIDs(draft.DependentTaskIDs),
		Fences:           draft.Fences,
		RequireToken:     draft.RequireToken,
		RequireLocation:  draft.RequireLocation,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	actorID, err := e.resolveActorID(ctx, actor)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureOrg(ctx, tx, orgID, "", now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.InsertTask(ctx, tx, task); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Append(ctx, tx, "task.created", orgID, "task", task.ID, actorID, map[string]any{
		"title": task.Title,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (e Engine) GetTask(ctx context.Context, actor domain.Actor, taskID string) (domain.Task, error) {
	return e.loadVisibleTask(ctx, actor, taskID)
}

// TaskQuery narrows ListTasks beyond the visibility filter.
type TaskQuery struct {
	Status          string
	ProjectID       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (e Engine) ListTasks(ctx context.Context, actor domain.Actor, q TaskQuery) ([]domain.Task, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	return e.Repo.ListTasks(ctx, repo.TaskFilters{
		Visibility:      visibility.TaskFilter(actor),
		Status:          q.Status,
		ProjectID:       q.ProjectID,
		Limit:           q.Limit,
		CursorCreatedAt: q.CursorCreatedAt,
		CursorID:        q.CursorID,
	})
}

// TaskPatch carries an edit; nil fields stay untouched. The single-value
// legacy aliases merge into their list counterparts before diffing.
type TaskPatch struct {
	Title            *string
	Description      *string
	ProjectID        *string
	Visibility       *domain.Visibility
	AssignedUserIDs  *[]string
	AssignedGroupIDs *[]string
	DependentTaskIDs *[]string
	Fences           *[]domain.GeoFence
	RequireToken     *bool
	RequireLocation  *bool
	Note             string

	// Legacy single-value aliases.
	AssignedUserID  *string
	AssignedGroupID *string
	LocationFence   *domain.GeoFence
}

// normalize folds the legacy aliases into the canonical list fields. A
// single-value alias only applies when the list form is absent from the
// same patch; the list form wins otherwise.
func (p *TaskPatch) normalize() {
	if p.AssignedUserID != nil && p.AssignedUserIDs == nil {
		ids := []string{}
		if id, ok := identity.NormalizeID(*p.AssignedUserID); ok {
			ids = append(ids, id)
		}
		p.AssignedUserIDs = &ids
	}
	if p.AssignedGroupID != nil && p.AssignedGroupIDs == nil {
		ids := []string{}
		if id, ok := identity.NormalizeID(*p.AssignedGroupID); ok {
			ids = append(ids, id)
		}
		p.AssignedGroupIDs = &ids
	}
	if p.LocationFence != nil && p.Fences == nil {
		fences := []domain.GeoFence{*p.LocationFence}
		p.Fences = &fences
	}
}

// EditResult is an updated task plus the audit outcome.
type EditResult struct {
	Task         domain.Task
	AuditSkipped bool
}

func (e Engine) EditTask(ctx context.Context, actor domain.Actor, taskID string, patch TaskPatch) (EditResult, error) {
	task, err := e.loadVisibleTask(ctx, actor, taskID)
	if err != nil {
		return EditResult{}, err
	}
	patch.normalize()

	updated := task
	if patch.Title != nil {
		if *patch.Title == "" {
			return EditResult{}, fault.New(fault.Validation, "title required").WithDetail("field", "title")
		}
		updated.Title = *patch.Title
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.ProjectID != nil {
		if *patch.ProjectID == "" {
			updated.ProjectID = nil
		} else {
			updated.ProjectID = patch.ProjectID
		}
	}
	if patch.Visibility != nil {
		if err := visibility.CanSetMode(actor, *patch.Visibility); err != nil {
			return EditResult{}, err
		}
		updated.Visibility = *patch.Visibility
	}
	if patch.AssignedUserIDs != nil {
		updated.AssignedUserIDs = identity.NormalizeIDs(*patch.AssignedUserIDs)
	}
	if patch.AssignedGroupIDs != nil {
		updated.AssignedGroupIDs = identity.NormalizeIDs(*patch.AssignedGroupIDs)
	}
	if patch.DependentTaskIDs != nil {
		updated.DependentTaskIDs = identity.NormalizeIDs(*patch.DependentTaskIDs)
	}
	if patch.Fences != nil {
		if err := e.validateFences(*patch.Fences); err != nil {
			return EditResult{}, err
		}
		updated.Fences = *patch.Fences
	}
	if patch.RequireToken != nil {
		updated.RequireToken = *patch.RequireToken
	}
	if patch.RequireLocation != nil {
		updated.RequireLocation = *patch.RequireLocation
	}

	changes := audit.Diff(taskSnapshot(task), taskSnapshot(updated), trackedFields)
	if len(changes) == 0 {
		return EditResult{Task: task, AuditSkipped: true}, nil
	}

	editorID, resolved, err := e.Identity.ActorID(ctx, identity.Ref{ID: actor.ID})
	if err != nil {
		return EditResult{}, err
	}
	outcome, err := e.Trail.Resolve(editorID, resolved, changes)
	if err != nil {
		return EditResult{}, err
	}

	now := e.timestamp()
	updated.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return EditResult{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskMeta(ctx, tx, updated); err != nil {
		return EditResult{}, conflictErr(err)
	}
	if patch.Fences != nil {
		if err := e.Repo.ReplaceFences(ctx, tx, "task", updated.ID, updated.Fences); err != nil {
			return EditResult{}, err
		}
	}
	if !outcome.Skipped {
		entry := domain.AuditEntry{
			ID:       uuid.NewString(),
			TaskID:   updated.ID,
			EditedAt: now,
			EditedBy: outcome.EditorID,
			Note:     patch.Note,
			Changes:  changes,
		}
		if err := e.Repo.InsertAuditEntry(ctx, tx, entry); err != nil {
			return EditResult{}, err
		}
	}
	journalActor := outcome.EditorID
	if journalActor == "" {
		journalActor = actor.ID
	}
	if err := e.Journal.Append(ctx, tx, "task.edited", updated.OrgID, "task", updated.ID, journalActor, map[string]any{
		"fields":        changedFieldNames(changes),
		"audit_skipped": outcome.Skipped,
	}); err != nil {
		return EditResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return EditResult{}, err
	}
	updated.Version++
	return EditResult{Task: updated, AuditSkipped: outcome.Skipped}, nil
}

func changedFieldNames(changes []domain.FieldChange) []string {
	names := make([]string, len(changes))
	for i, c := range changes {
		names[i] = c.Field
	}
	return names
}

// ImportTaskFences replaces a task's own fence list with an
// already-normalized set.
func (e Engine) ImportTaskFences(ctx context.Context, actor domain.Actor, taskID string, fences []domain.GeoFence) (domain.Task, error) {
	if err := e.requireManagerial(actor); err != nil {
		return domain.Task{}, err
	}
	task, err := e.loadVisibleTask(ctx, actor, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.validateFences(fences); err != nil {
		return domain.Task{}, err
	}
	actorID, err := e.resolveActorID(ctx, actor)
	if err != nil {
		return domain.Task{}, err
	}

	task.Fences = fences
	task.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.ReplaceFences(ctx, tx, "task", task.ID, fences); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.UpdateTaskMeta(ctx, tx, task); err != nil {
		return domain.Task{}, conflictErr(err)
	}
	if err := e.Journal.Append(ctx, tx, "task.fences_imported", task.OrgID, "task", task.ID, actorID, map[string]any{
		"count": len(fences),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	task.Version++
	return task, nil
}

func (e Engine) AuditTrail(ctx context.Context, actor domain.Actor, taskID string) ([]domain.AuditEntry, error) {
	if _, err := e.loadVisibleTask(ctx, actor, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListAuditEntries(ctx, taskID)
}
