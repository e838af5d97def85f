// Package visibility decides which entities an actor may see or act on.
// The decision is a logical OR of independent clauses over the entity's
// visibility mode and its assignment sets; the same disjunction exists in
// two forms, a predicate for single entities and a SQL fragment for lists.
package visibility

import (
	"context"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
	"fieldline/internal/identity"
)

// Filter is an opaque list-query restriction applied by the repo layer.
// An empty Clause means unrestricted.
type Filter struct {
	Clause string
	Args   []any
}

// Subjects is an actor's accessible-subject-id set. All avoids
// materializing "every subject in the org" for privileged actors.
type Subjects struct {
	All bool
	IDs []string
}

// Contains reports membership for owner-scoped reads.
func (s Subjects) Contains(id string) bool {
	if s.All {
		return true
	}
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// GroupMemberLookup expands group ids into member user ids.
type GroupMemberLookup interface {
	GroupMemberIDs(ctx context.Context, groupIDs []string) ([]string, error)
}

// Engine evaluates visibility for a directory of groups.
type Engine struct {
	Groups GroupMemberLookup
}

// AccessibleSubjectIDs computes whose owner-scoped entities (clockings)
// the actor may read: themselves plus every member of their groups.
// Privileged actors are unrestricted.
func (e Engine) AccessibleSubjectIDs(ctx context.Context, actor domain.Actor) (Subjects, error) {
	if actor.IsPrivileged() {
		return Subjects{All: true}, nil
	}
	ids := []string{}
	if id, ok := identity.NormalizeID(actor.ID); ok {
		ids = append(ids, id)
	}
	groupIDs := identity.NormalizeIDs(actor.GroupIDs)
	if len(groupIDs) > 0 && e.Groups != nil {
		members, err := e.Groups.GroupMemberIDs(ctx, groupIDs)
		if err != nil {
			return Subjects{}, err
		}
		seen := map[string]bool{}
		for _, id := range ids {
			seen[id] = true
		}
		for _, m := range members {
			id, ok := identity.NormalizeID(m)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return Subjects{IDs: ids}, nil
}

// Allows is the single-entity predicate. Each clause is evaluated
// independently; a match on any grants access.
func Allows(actor domain.Actor, scope domain.AssignmentScope) bool {
	if actor.IsPrivileged() {
		return true
	}
	matched := false
	switch scope.Visibility {
	case "", domain.VisibilityOrg:
		matched = true
	case domain.VisibilityAdmins:
		// privileged-only; handled above
	}
	if scope.Visibility == domain.VisibilityAssignees || scope.Visibility == domain.VisibilityAssigneesGroups {
		if containsID(scope.AssignedUserIDs, actor.ID) {
			matched = true
		}
	}
	if scope.Visibility == domain.VisibilityGroups || scope.Visibility == domain.VisibilityAssigneesGroups {
		if intersects(scope.AssignedGroupIDs, actor.GroupIDs) {
			matched = true
		}
	}
	return matched
}

// TaskFilter builds the list-query form of Allows for the tasks table,
// combined with the actor's org scope. Privileged actors get only the org
// clause.
func TaskFilter(actor domain.Actor) Filter {
	var f Filter
	if !actor.Scope.Global {
		if orgID, ok := identity.NormalizeID(actor.Scope.OrgID); ok {
			f.Clause = "tasks.org_id=?"
			f.Args = append(f.Args, orgID)
		}
	}
	if actor.IsPrivileged() {
		return f
	}
	visClause := `(tasks.visibility IN ('','org')
OR (tasks.visibility IN ('assignees','assignees_groups') AND EXISTS (
  SELECT 1 FROM task_assignees ta WHERE ta.task_id=tasks.id AND ta.user_id=?))`
	args := []any{}
	actorID, hasActor := identity.NormalizeID(actor.ID)
	if !hasActor {
		actorID = ""
	}
	args = append(args, actorID)
	groupIDs := identity.NormalizeIDs(actor.GroupIDs)
	if len(groupIDs) > 0 {
		visClause += `
OR (tasks.visibility IN ('groups','assignees_groups') AND EXISTS (
  SELECT 1 FROM task_groups tg WHERE tg.task_id=tasks.id AND tg.group_id IN (` + placeholders(len(groupIDs)) + `)))`
		for _, g := range groupIDs {
			args = append(args, g)
		}
	}
	visClause += ")"
	if f.Clause != "" {
		f.Clause += " AND "
	}
	f.Clause += visClause
	f.Args = append(f.Args, args...)
	return f
}

// CanSetMode gates visibility-mode mutations: only privileged actors may
// set admins. The failure is explicit, never a silent downgrade.
func CanSetMode(actor domain.Actor, mode domain.Visibility) error {
	if !domain.ValidVisibility(mode) {
		return fault.New(fault.Validation, "invalid visibility mode %q", string(mode)).
			WithDetail("field", "visibility")
	}
	if mode == domain.VisibilityAdmins && !actor.IsPrivileged() {
		return fault.New(fault.Authorization, "visibility mode admins requires a privileged role")
	}
	return nil
}

func containsID(set []string, raw string) bool {
	id, ok := identity.NormalizeID(raw)
	if !ok {
		return false
	}
	for _, v := range set {
		if member, ok := identity.NormalizeID(v); ok && member == id {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	set := map[string]bool{}
	for _, v := range a {
		if id, ok := identity.NormalizeID(v); ok {
			set[id] = true
		}
	}
	for _, v := range b {
		if id, ok := identity.NormalizeID(v); ok && set[id] {
			return true
		}
	}
	return false
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
