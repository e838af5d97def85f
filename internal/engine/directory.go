package engine

import (
	"context"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
	"fieldline/internal/identity"
)

// RegisterUser upserts a directory entry. Email and username feed the
// identity fallback lookup, so their memoized entries are invalidated.
func (e Engine) RegisterUser(ctx context.Context, actor domain.Actor, u domain.User) (domain.User, error) {
	if err := e.requireManagerial(actor); err != nil {
		return domain.User{}, err
	}
	id, ok := identity.NormalizeID(u.ID)
	if !ok {
		return domain.User{}, fault.New(fault.Validation, "user id required").WithDetail("field", "id")
	}
	u.ID = id
	orgID, err := e.orgIDFor(actor, u.OrgID)
	if err != nil {
		return domain.User{}, err
	}
	u.OrgID = orgID
	u.CreatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureOrg(ctx, tx, orgID, "", u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	if err := e.Repo.EnsureUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	if u.Email != "" {
		e.Identity.Invalidate("email:" + u.Email)
	}
	if u.Username != "" {
		e.Identity.Invalidate("username:" + u.Username)
	}
	return u, nil
}

// RegisterGroup upserts a group and replaces its membership.
func (e Engine) RegisterGroup(ctx context.Context, actor domain.Actor, g domain.Group) (domain.Group, error) {
	if err := e.requireManagerial(actor); err != nil {
		return domain.Group{}, err
	}
	id, ok := identity.NormalizeID(g.ID)
	if !ok {
		return domain.Group{}, fault.New(fault.Validation, "group id required").WithDetail("field", "id")
	}
	g.ID = id
	orgID, err := e.orgIDFor(actor, g.OrgID)
	if err != nil {
		return domain.Group{}, err
	}
	g.OrgID = orgID
	g.MemberIDs = identity.NormalizeIDs(g.MemberIDs)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureOrg(ctx, tx, orgID, "", e.timestamp()); err != nil {
		return domain.Group{}, err
	}
	if err := e.Repo.UpsertGroup(ctx, tx, g); err != nil {
		return domain.Group{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Group{}, err
	}
	return g, nil
}

// JournalTail returns journal rows after the given id. Privileged only.
func (e Engine) JournalTail(ctx context.Context, actor domain.Actor, afterID int64, limit int) ([]domain.Event, error) {
	if err := e.requirePrivileged(actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return e.Repo.LatestEvents(ctx, actor.Scope, afterID, limit)
}
