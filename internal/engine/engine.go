// Package engine orchestrates task lifecycle operations: it composes the
// identity, visibility, gate, lifecycle and audit packages over the repo
// and wraps every mutation in a transaction with a journal entry.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fieldline/internal/audit"
	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/fault"
	"fieldline/internal/identity"
	"fieldline/internal/repo"
	"fieldline/internal/visibility"
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Journal    events.Writer
	Identity   *identity.Resolver
	Visibility visibility.Engine
	Trail      audit.Trail
	Config     *config.Config
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	r := repo.Repo{DB: db}
	resolver, err := identity.NewResolver(r, cfg.Limits.IdentityCacheSize, cfg.LookupTimeout())
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:         db,
		Repo:       r,
		Journal:    events.Writer{DB: db},
		Identity:   resolver,
		Visibility: visibility.Engine{Groups: r},
		Trail:      audit.Trail{Policy: audit.Policy(cfg.Audit.UnresolvedEditor)},
		Config:     cfg,
		Now:        time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// loadVisibleTask fetches a task the actor may read. An org-scope mismatch
// is reported exactly like an absent task, so cross-tenant probes cannot
// distinguish the two.
func (e Engine) loadVisibleTask(ctx context.Context, actor domain.Actor, taskID string) (domain.Task, error) {
	task, err := e.Repo.GetTask(ctx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, fault.New(fault.NotFound, "task %s not found", taskID)
	}
	if err != nil {
		return domain.Task{}, err
	}
	if !actor.Scope.Covers(task.OrgID) {
		return domain.Task{}, fault.New(fault.NotFound, "task %s not found", taskID)
	}
	if !visibility.Allows(actor, task.AssignmentScope()) {
		return domain.Task{}, fault.New(fault.Authorization, "access denied")
	}
	return task, nil
}

func (e Engine) requirePrivileged(actor domain.Actor) error {
	if !actor.IsPrivileged() {
		return fault.New(fault.Authorization, "a privileged role is required")
	}
	return nil
}

func (e Engine) requireManagerial(actor domain.Actor) error {
	if actor.IsPrivileged() || actor.Role == domain.RoleManager {
		return nil
	}
	return fault.New(fault.Authorization, "a manager or admin role is required")
}

// resolveActorID canonicalizes the caller's identity for writes that record
// who acted. Writes never proceed anonymously.
func (e Engine) resolveActorID(ctx context.Context, actor domain.Actor) (string, error) {
	id, ok, err := e.Identity.ActorID(ctx, identity.Ref{ID: actor.ID})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fault.New(fault.Validation, "actor identity could not be resolved").
			WithDetail("reason", "unresolved_actor")
	}
	return id, nil
}

func conflictErr(err error) error {
	if errors.Is(err, repo.ErrConflict) {
		return fault.New(fault.Conflict, "task was modified concurrently, retry")
	}
	return err
}

// validateFences checks already-normalized fences: circles need a center
// and a positive radius, polygon rings need at least three vertices and
// stay under the configured bound.
func (e Engine) validateFences(fences []domain.GeoFence) error {
	maxVertices := e.Config.MaxPolygonVertices()
	for i, f := range fences {
		switch f.Kind {
		case domain.FenceCircle:
			if f.Center == nil || f.RadiusMeters <= 0 {
				return fault.New(fault.Validation, "circle fence %d needs a center and a positive radius", i).
					WithDetail("field", "geo_fences")
			}
		case domain.FencePolygon:
			if len(f.Ring) < 3 {
				return fault.New(fault.Validation, "polygon fence %d needs at least three vertices", i).
					WithDetail("field", "geo_fences")
			}
			if len(f.Ring) > maxVertices {
				return fault.New(fault.Validation, "polygon fence %d exceeds %d vertices", i, maxVertices).
					WithDetail("field", "geo_fences")
			}
		default:
			return fault.New(fault.Validation, "unknown fence kind %q", string(f.Kind)).
				WithDetail("field", "geo_fences")
		}
	}
	return nil
}

// orgIDFor picks the org a new entity belongs to: the actor's scope when
// specific, the explicit request org for global actors, else the configured
// default org.
func (e Engine) orgIDFor(actor domain.Actor, requested string) (string, error) {
	if !actor.Scope.Global && !actor.Scope.Empty() {
		if requested != "" && requested != actor.Scope.OrgID {
			return "", fault.New(fault.Authorization, "cannot create outside your organization")
		}
		return actor.Scope.OrgID, nil
	}
	if id, ok := identity.NormalizeID(requested); ok {
		return id, nil
	}
	if e.Config != nil && e.Config.Org.ID != "" {
		return e.Config.Org.ID, nil
	}
	return "", fault.New(fault.Validation, "org_id required").WithDetail("field", "org_id")
}
