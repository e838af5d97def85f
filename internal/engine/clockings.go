package engine

import (
	"context"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
	"fieldline/internal/identity"
	"fieldline/internal/lifecycle"
	"fieldline/internal/repo"
)

// BulkClockingRequest creates one clocking per subject id. The legacy
// single-value alias merges into the list.
type BulkClockingRequest struct {
	OrgID     string
	UserIDs   []string
	UserID    string // legacy alias
	TaskID    *string
	StartedAt string
	EndedAt   *string
	Note      string
}

// ClockingOutcome is the per-subject result of a bulk create. One bad
// subject never fails the batch.
type ClockingOutcome struct {
	UserID     string `json:"user_id"`
	ClockingID string `json:"clocking_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (e Engine) BulkCreateClockings(ctx context.Context, actor domain.Actor, req BulkClockingRequest) ([]ClockingOutcome, error) {
	ids := req.UserIDs
	if req.UserID != "" {
		ids = append(ids, req.UserID)
	}
	subjects := identity.NormalizeIDs(ids)
	if len(subjects) == 0 {
		return nil, fault.New(fault.Validation, "at least one user id required").WithDetail("field", "user_ids")
	}
	startedAt, err := lifecycle.NormalizeAt(req.StartedAt)
	if err != nil {
		return nil, fault.New(fault.Validation, "invalid timestamp %q", req.StartedAt).WithDetail("field", "started_at")
	}
	endedAt := req.EndedAt
	if req.EndedAt != nil {
		norm, err := lifecycle.NormalizeAt(*req.EndedAt)
		if err != nil {
			return nil, fault.New(fault.Validation, "invalid timestamp %q", *req.EndedAt).WithDetail("field", "ended_at")
		}
		endedAt = &norm
	}
	orgID, err := e.orgIDFor(actor, req.OrgID)
	if err != nil {
		return nil, err
	}
	accessible, err := e.Visibility.AccessibleSubjectIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	actorID, err := e.resolveActorID(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	outcomes := make([]ClockingOutcome, 0, len(subjects))
	created := 0
	for _, userID := range subjects {
		if !accessible.Contains(userID) {
			outcomes = append(outcomes, ClockingOutcome{UserID: userID, Error: "subject not accessible"})
			continue
		}
		c := domain.Clocking{
			ID:        uuid.NewString(),
			OrgID:     orgID,
			UserID:    userID,
			TaskID:    req.TaskID,
			StartedAt: startedAt,
			EndedAt:   endedAt,
			Note:      req.Note,
			CreatedAt: now,
		}
		if err := e.Repo.InsertClocking(ctx, tx, c); err != nil {
			return nil, err
		}
		created++
		outcomes = append(outcomes, ClockingOutcome{UserID: userID, ClockingID: c.ID})
	}
	if err := e.Journal.Append(ctx, tx, "clocking.bulk_created", orgID, "clocking", "", actorID, map[string]any{
		"requested": len(subjects),
		"created":   created,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// ClockingQuery narrows ListClockings.
type ClockingQuery struct {
	UserID string
	TaskID string
	Limit  int
}

// ListClockings returns clockings the actor may read: privileged actors see
// the whole org scope, everyone else only their accessible subjects.
func (e Engine) ListClockings(ctx context.Context, actor domain.Actor, q ClockingQuery) ([]domain.Clocking, error) {
	subjects, err := e.Visibility.AccessibleSubjectIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	return e.Repo.ListClockings(ctx, repo.ClockingFilters{
		Scope:    actor.Scope,
		Subjects: subjects,
		UserID:   q.UserID,
		TaskID:   q.TaskID,
		Limit:    q.Limit,
	})
}
