package domain

// Role is the closed set of actor roles. Admin-tier roles collapse into a
// single privileged capability through IsPrivileged; nothing else in the
// codebase compares role strings.
type Role string

const (
	RoleUser       Role = "user"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// ParseRole maps a raw claim to a Role, defaulting to user for anything
// unrecognized rather than failing the request.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleManager:
		return RoleManager
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperadmin:
		return RoleSuperadmin
	default:
		return RoleUser
	}
}

func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// OrgScope is the tagged union replacing the legacy "root" string sentinel.
// Global means cross-tenant access; an empty OrgID with Global=false means
// no scope could be resolved and reads are unfiltered by org.
type OrgScope struct {
	Global bool
	OrgID  string
}

func GlobalScope() OrgScope { return OrgScope{Global: true} }

func OrgScopeFor(orgID string) OrgScope { return OrgScope{OrgID: orgID} }

// Empty reports whether the scope carries no constraint at all.
func (s OrgScope) Empty() bool { return !s.Global && s.OrgID == "" }

// Covers reports whether an entity owned by orgID is inside the scope.
func (s OrgScope) Covers(orgID string) bool {
	if s.Global || s.Empty() {
		return true
	}
	return s.OrgID == orgID
}

// Actor is a resolved caller: identity plus everything visibility decisions
// need. Built once at the transport boundary.
type Actor struct {
	ID       string   `json:"id"`
	Scope    OrgScope `json:"-"`
	Role     Role     `json:"role"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

func (a Actor) IsPrivileged() bool { return a.Role.IsPrivileged() }

// Visibility is the policy attached to an entity that decides which
// non-privileged actors may see it.
type Visibility string

const (
	VisibilityOrg             Visibility = "org"
	VisibilityAssignees       Visibility = "assignees"
	VisibilityGroups          Visibility = "groups"
	VisibilityAssigneesGroups Visibility = "assignees_groups"
	VisibilityAdmins          Visibility = "admins"
)

// ValidVisibility reports whether v is a known mode. The empty string is
// accepted for backward compatibility and behaves like org.
func ValidVisibility(v Visibility) bool {
	switch v {
	case "", VisibilityOrg, VisibilityAssignees, VisibilityGroups, VisibilityAssigneesGroups, VisibilityAdmins:
		return true
	}
	return false
}

// Action is the closed set of lifecycle event actions.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionComplete Action = "complete"
	ActionPhoto    Action = "photo"
)

// Status derived from the action log. Pending is the creation state; no
// event ever maps back to it.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// ActionEvent is one immutable row in a task's duration log.
type ActionEvent struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	Action      Action  `json:"action" enum:"start,pause,resume,complete,photo"`
	At          string  `json:"at" format:"date-time"`
	ActorID     string  `json:"actor_id"`
	Note        string  `json:"note,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
}

// Task is the central entity. Status is a cache of the log derivation and is
// rewritten together with every log mutation; Version backs the optimistic
// concurrency check on that rewrite.
type Task struct {
	ID               string     `json:"id"`
	OrgID            string     `json:"org_id"`
	ProjectID        *string    `json:"project_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Status           Status     `json:"status" enum:"pending,in-progress,paused,completed"`
	Visibility       Visibility `json:"visibility,omitempty" enum:"org,assignees,groups,assignees_groups,admins"`
	AssignedUserIDs  []string   `json:"assigned_user_ids,omitempty"`
	AssignedGroupIDs []string   `json:"assigned_group_ids,omitempty"`
	DependentTaskIDs []string   `json:"dependent_task_ids,omitempty"`
	Fences           []GeoFence `json:"geo_fences,omitempty"`
	RequireToken     bool       `json:"require_token,omitempty"`
	RequireLocation  bool       `json:"require_location,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        string     `json:"created_at" format:"date-time"`
	UpdatedAt        string     `json:"updated_at" format:"date-time"`
}

// AssignmentScope returns the visibility-relevant slice of the task.
func (t Task) AssignmentScope() AssignmentScope {
	return AssignmentScope{
		Visibility:       t.Visibility,
		AssignedUserIDs:  t.AssignedUserIDs,
		AssignedGroupIDs: t.AssignedGroupIDs,
	}
}

// AssignmentScope carries the fields a visibility decision reads, so the
// engine treats tasks and anything else assignable alike.
type AssignmentScope struct {
	Visibility       Visibility
	AssignedUserIDs  []string
	AssignedGroupIDs []string
}

// Project groups tasks and carries fallback fences for tasks without their
// own.
type Project struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Name      string     `json:"name"`
	Fences    []GeoFence `json:"geo_fences,omitempty"`
	CreatedAt string     `json:"created_at" format:"date-time"`
}

// Clocking is an owner-scoped time record. Visibility for clockings is
// subject-based: a non-privileged actor sees clockings whose UserID falls in
// their accessible-subject set.
type Clocking struct {
	ID        string  `json:"id"`
	OrgID     string  `json:"org_id"`
	UserID    string  `json:"user_id"`
	TaskID    *string `json:"task_id,omitempty"`
	StartedAt string  `json:"started_at" format:"date-time"`
	EndedAt   *string `json:"ended_at,omitempty" format:"date-time"`
	Note      string  `json:"note,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// FieldChange is one changed field inside an audit entry. Before and After
// hold canonical JSON serializations.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// AuditEntry is one immutable edit record on a task.
type AuditEntry struct {
	ID       string        `json:"id"`
	TaskID   string        `json:"task_id"`
	EditedAt string        `json:"edited_at" format:"date-time"`
	EditedBy string        `json:"edited_by"`
	Note     string        `json:"note,omitempty"`
	Changes  []FieldChange `json:"changes"`
}

// User is a directory entry; email and username back the identity fallback
// lookup.
type User struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Group is a named set of users inside an org.
type Group struct {
	ID        string   `json:"id"`
	OrgID     string   `json:"org_id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// Event is a row in the system journal (distinct from per-task ActionEvents).
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey maps a hashed key to an actor for header auth.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
