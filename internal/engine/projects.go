package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
	"fieldline/internal/repo"
)

// ProjectDraft is the creation payload for a project.
type ProjectDraft struct {
	OrgID  string
	Name   string
	Fences []domain.GeoFence
}

func (e Engine) CreateProject(ctx context.Context, actor domain.Actor, draft ProjectDraft) (domain.Project, error) {
	if err := e.requireManagerial(actor); err != nil {
		return domain.Project{}, err
	}
	if draft.Name == "" {
		return domain.Project{}, fault.New(fault.Validation, "name required").WithDetail("field", "name")
	}
	if err := e.validateFences(draft.Fences); err != nil {
		return domain.Project{}, err
	}
	orgID, err := e.orgIDFor(actor, draft.OrgID)
	if err != nil {
		return domain.Project{}, err
	}
	actorID, err := e.resolveActorID(ctx, actor)
	if err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      draft.Name,
		Fences:    draft.Fences,
		CreatedAt: e.timestamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureOrg(ctx, tx, orgID, "", p.CreatedAt); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Journal.Append(ctx, tx, "project.created", orgID, "project", p.ID, actorID, map[string]any{
		"name": p.Name,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, actor.Scope)
}

// ImportProjectFences replaces a project's fence list. Tasks without their
// own fences pick the new set up on their next location check.
func (e Engine) ImportProjectFences(ctx context.Context, actor domain.Actor, projectID string, fences []domain.GeoFence) (domain.Project, error) {
	if err := e.requireManagerial(actor); err != nil {
		return domain.Project{}, err
	}
	if err := e.validateFences(fences); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Project{}, fault.New(fault.NotFound, "project %s not found", projectID)
	}
	if err != nil {
		return domain.Project{}, err
	}
	if !actor.Scope.Covers(p.OrgID) {
		return domain.Project{}, fault.New(fault.NotFound, "project %s not found", projectID)
	}
	actorID, err := e.resolveActorID(ctx, actor)
	if err != nil {
		return domain.Project{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.ReplaceFences(ctx, tx, "project", p.ID, fences); err != nil {
		return domain.Project{}, err
	}
	if err := e.Journal.Append(ctx, tx, "project.fences_imported", p.OrgID, "project", p.ID, actorID, map[string]any{
		"count": len(fences),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Fences = fences
	return p, nil
}
