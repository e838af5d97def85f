// Package gate validates the preconditions on task state transitions:
// dependency completion, proof-of-presence tokens, and geofence membership.
// The gate only decides; appending to the log stays with the engine.
package gate

import (
	"fieldline/internal/domain"
	"fieldline/internal/fault"
	"fieldline/internal/geo"
)

// Request carries the caller-supplied evidence for a transition.
type Request struct {
	Action   domain.Action
	Point    *domain.LatLng
	Token    string
	Override bool
}

// Check validates a transition request against the task. Only start and
// resume carry preconditions; a privileged override bypasses all of them.
// depStatuses holds the derived status of every dependent task; fences is
// the task's effective fence set.
func Check(actor domain.Actor, task domain.Task, req Request, depStatuses map[string]domain.Status, fences []domain.GeoFence) error {
	if req.Action != domain.ActionStart && req.Action != domain.ActionResume {
		return nil
	}
	if req.Override && actor.IsPrivileged() {
		return nil
	}
	if err := checkDependencies(task, depStatuses); err != nil {
		return err
	}
	if task.RequireToken && req.Token == "" {
		return fault.New(fault.Precondition, "proof token required").
			WithDetail("reason", "token")
	}
	if task.RequireLocation {
		if req.Point == nil {
			return fault.New(fault.Precondition, "location required").
				WithDetail("reason", "location")
		}
		if len(fences) == 0 {
			return fault.New(fault.Precondition, "no geofence configured for location check").
				WithDetail("reason", "no_fences")
		}
		if !geo.InsideAny(*req.Point, fences) {
			return fault.New(fault.Precondition, "location outside allowed area").
				WithDetail("reason", "location")
		}
	}
	return nil
}

// checkDependencies requires the completed count to strictly equal the
// dependency set size; a dependency missing from depStatuses counts as
// incomplete.
func checkDependencies(task domain.Task, depStatuses map[string]domain.Status) error {
	if len(task.DependentTaskIDs) == 0 {
		return nil
	}
	completed := 0
	for _, id := range task.DependentTaskIDs {
		if depStatuses[id] == domain.StatusCompleted {
			completed++
		}
	}
	if completed != len(task.DependentTaskIDs) {
		return fault.New(fault.Precondition, "dependencies incomplete (%d of %d completed)", completed, len(task.DependentTaskIDs)).
			WithDetail("reason", "dependencies")
	}
	return nil
}
