package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
	"fieldline/internal/gate"
	"fieldline/internal/geo"
	"fieldline/internal/lifecycle"
	"fieldline/internal/repo"
)

// ActionRequest is the payload for appending to a task's action log.
type ActionRequest struct {
	Action      domain.Action
	At          string
	Note        string
	MilestoneID *string
	Point       *domain.LatLng
	Token       string
	Override    bool
}

// PerformAction appends an event to the task's log and rewrites the cached
// status from the full log, all in one transaction. A concurrent status
// rewrite surfaces as a Conflict for the caller to retry.
func (e Engine) PerformAction(ctx context.Context, actor domain.Actor, taskID string, req ActionRequest) (domain.Task, error) {
	if err := lifecycle.ValidateAction(req.Action); err != nil {
		return domain.Task{}, err
	}
	at := req.At
	if at == "" {
		at = e.timestamp()
	} else {
		norm, err := lifecycle.NormalizeAt(at)
		if err != nil {
			return domain.Task{}, fault.New(fault.Validation, "invalid timestamp %q", at).
				WithDetail("field", "at")
		}
		at = norm
	}
	task, err := e.loadVisibleTask(ctx, actor, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	actorID, err := e.resolveActorID(ctx, actor)
	if err != nil {
		return domain.Task{}, err
	}

	depStatuses, err := e.Repo.DepStatuses(ctx, task.DependentTaskIDs)
	if err != nil {
		return domain.Task{}, err
	}
	fences, _ := geo.EffectiveFences(ctx, task, e.Repo.ProjectFences)
	gateReq := gate.Request{
		Action:   req.Action,
		Point:    req.Point,
		Token:    req.Token,
		Override: req.Override,
	}
	if err := gate.Check(actor, task, gateReq, depStatuses, fences); err != nil {
		return domain.Task{}, err
	}

	event := domain.ActionEvent{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		Action:      req.Action,
		At:          at,
		ActorID:     actorID,
		Note:        req.Note,
		MilestoneID: req.MilestoneID,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActionEvent(ctx, tx, event); err != nil {
		return domain.Task{}, err
	}
	log, err := e.Repo.ListActionEventsTx(ctx, tx, task.ID)
	if err != nil {
		return domain.Task{}, err
	}
	status := lifecycle.DeriveStatus(log, task.Status)
	now := e.timestamp()
	if err := e.Repo.UpdateTaskStatus(ctx, tx, task.ID, status, now, task.Version); err != nil {
		return domain.Task{}, conflictErr(err)
	}
	if err := e.Journal.Append(ctx, tx, "task.action", task.OrgID, "task", task.ID, actorID, map[string]any{
		"action": string(req.Action),
		"status": string(status),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	task.Status = status
	task.Version++
	task.UpdatedAt = now
	return task, nil
}

// Timesheet is the derived work summary for a task.
type Timesheet struct {
	TaskID         string               `json:"task_id"`
	Status         domain.Status        `json:"status"`
	ElapsedMinutes int                  `json:"elapsed_minutes"`
	Events         []domain.ActionEvent `json:"events"`
}

func (e Engine) TaskTimesheet(ctx context.Context, actor domain.Actor, taskID string) (Timesheet, error) {
	task, err := e.loadVisibleTask(ctx, actor, taskID)
	if err != nil {
		return Timesheet{}, err
	}
	log, err := e.Repo.ListActionEvents(ctx, taskID)
	if err != nil {
		return Timesheet{}, err
	}
	return Timesheet{
		TaskID:         task.ID,
		Status:         lifecycle.DeriveStatus(log, task.Status),
		ElapsedMinutes: lifecycle.ElapsedMinutes(log),
		Events:         log,
	}, nil
}

// EditActionEvent patches one log row and re-derives the status from the
// full corrected log. Privileged only: the log is append-only for everyone
// else.
func (e Engine) EditActionEvent(ctx context.Context, actor domain.Actor, taskID, eventID string, patch lifecycle.EventPatch) (domain.Task, error) {
	if err := e.requirePrivileged(actor); err != nil {
		return domain.Task{}, err
	}
	task, err := e.loadVisibleTask(ctx, actor, taskID)
	if err != nil {
		return domain.Task{}, err
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

	log, err := e.Repo.ListActionEventsTx(ctx, tx, task.ID)
	if err != nil {
		return domain.Task{}, err
	}
	patched, updatedEvent, err := lifecycle.ApplyEdit(log, eventID, patch)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.UpdateActionEvent(ctx, tx, updatedEvent); err != nil {
		return domain.Task{}, err
	}
	status := lifecycle.DeriveStatus(patched, task.Status)
	now := e.timestamp()
	if err := e.Repo.UpdateTaskStatus(ctx, tx, task.ID, status, now, task.Version); err != nil {
		return domain.Task{}, conflictErr(err)
	}
	if err := e.Journal.Append(ctx, tx, "task.event_edited", task.OrgID, "task", task.ID, actorID, map[string]any{
		"event_id": eventID,
		"status":   string(status),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	task.Status = status
	task.Version++
	task.UpdatedAt = now
	return task, nil
}

// DeleteActionEvent removes one log row and re-derives. Privileged only.
// Deleting the last non-photo event leaves the status where it was; nothing
// implicitly resets a task to pending.
func (e Engine) DeleteActionEvent(ctx context.Context, actor domain.Actor, taskID, eventID string) (domain.Task, error) {
	if err := e.requirePrivileged(actor); err != nil {
		return domain.Task{}, err
	}
	task, err := e.loadVisibleTask(ctx, actor, taskID)
	if err != nil {
		return domain.Task{}, err
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

	if err := e.Repo.DeleteActionEvent(ctx, tx, task.ID, eventID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, fault.New(fault.NotFound, "event %s not found", eventID)
		}
		return domain.Task{}, err
	}
	log, err := e.Repo.ListActionEventsTx(ctx, tx, task.ID)
	if err != nil {
		return domain.Task{}, err
	}
	status := lifecycle.DeriveStatus(log, task.Status)
	now := e.timestamp()
	if err := e.Repo.UpdateTaskStatus(ctx, tx, task.ID, status, now, task.Version); err != nil {
		return domain.Task{}, conflictErr(err)
	}
	if err := e.Journal.Append(ctx, tx, "task.event_deleted", task.OrgID, "task", task.ID, actorID, map[string]any{
		"event_id": eventID,
		"status":   string(status),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	task.Status = status
	task.Version++
	task.UpdatedAt = now
	return task, nil
}
