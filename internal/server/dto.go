package server

import (
	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

// Request payloads

type LatLngDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type FenceDTO struct {
	Kind         string      `json:"kind" enum:"circle,polygon"`
	Center       *LatLngDTO  `json:"center,omitempty"`
	RadiusMeters float64     `json:"radius_meters,omitempty"`
	Ring         []LatLngDTO `json:"ring,omitempty"`
}

func (f FenceDTO) toDomain() domain.GeoFence {
	g := domain.GeoFence{Kind: domain.FenceKind(f.Kind), RadiusMeters: f.RadiusMeters}
	if f.Center != nil {
		g.Center = &domain.LatLng{Lat: f.Center.Lat, Lng: f.Center.Lng}
	}
	for _, v := range f.Ring {
		g.Ring = append(g.Ring, domain.LatLng{Lat: v.Lat, Lng: v.Lng})
	}
	return g
}

func fencesToDomain(list []FenceDTO) []domain.GeoFence {
	var out []domain.GeoFence
	for _, f := range list {
		out = append(out, f.toDomain())
	}
	return out
}

func fenceFromDomain(g domain.GeoFence) FenceDTO {
	f := FenceDTO{Kind: string(g.Kind), RadiusMeters: g.RadiusMeters}
	if g.Center != nil {
		f.Center = &LatLngDTO{Lat: g.Center.Lat, Lng: g.Center.Lng}
	}
	for _, v := range g.Ring {
		f.Ring = append(f.Ring, LatLngDTO{Lat: v.Lat, Lng: v.Lng})
	}
	return f
}

func fencesFromDomain(list []domain.GeoFence) []FenceDTO {
	var out []FenceDTO
	for _, g := range list {
		out = append(out, fenceFromDomain(g))
	}
	return out
}

type CreateTaskRequest struct {
	OrgID            string    `json:"org_id,omitempty"`
	ProjectID        *string   `json:"project_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Visibility       string    `json:"visibility,omitempty" enum:",org,assignees,groups,assignees_groups,admins"`
	AssignedUserIDs  []string  `json:"assigned_user_ids,omitempty"`
	AssignedGroupIDs []string  `json:"assigned_group_ids,omitempty"`
	DependentTaskIDs []string  `json:"dependent_task_ids,omitempty"`
	GeoFences        []FenceDTO `json:"geo_fences,omitempty"`
	RequireToken     bool      `json:"require_token,omitempty"`
	RequireLocation  bool      `json:"require_location,omitempty"`

	// Legacy single-value aliases still sent by older clients.
	AssignedUserID   *string   `json:"assigned_user_id,omitempty"`
	AssignedGroupID  *string   `json:"assigned_group_id,omitempty"`
	LocationGeoFence *FenceDTO `json:"location_geo_fence,omitempty"`
}

type UpdateTaskRequest struct {
	Title            *string     `json:"title,omitempty"`
	Description      *string     `json:"description,omitempty"`
	ProjectID        *string     `json:"project_id,omitempty"`
	Visibility       *string     `json:"visibility,omitempty" enum:",org,assignees,groups,assignees_groups,admins"`
	AssignedUserIDs  *[]string   `json:"assigned_user_ids,omitempty"`
	AssignedGroupIDs *[]string   `json:"assigned_group_ids,omitempty"`
	DependentTaskIDs *[]string   `json:"dependent_task_ids,omitempty"`
	GeoFences        *[]FenceDTO `json:"geo_fences,omitempty"`
	RequireToken     *bool       `json:"require_token,omitempty"`
	RequireLocation  *bool       `json:"require_location,omitempty"`
	Note             string      `json:"note,omitempty"`

	AssignedUserID   *string   `json:"assigned_user_id,omitempty"`
	AssignedGroupID  *string   `json:"assigned_group_id,omitempty"`
	LocationGeoFence *FenceDTO `json:"location_geo_fence,omitempty"`
}

type TaskActionRequest struct {
	Action      string   `json:"action" enum:"start,pause,resume,complete,photo"`
	At          string   `json:"at,omitempty" format:"date-time"`
	Note        string   `json:"note,omitempty"`
	MilestoneID *string  `json:"milestone_id,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Token       string   `json:"token,omitempty"`
	Override    bool     `json:"override,omitempty"`
}

type EventPatchRequest struct {
	Action *string `json:"action,omitempty" enum:"start,pause,resume,complete,photo"`
	At     *string `json:"at,omitempty" format:"date-time"`
	Note   *string `json:"note,omitempty"`
}

type ImportFencesRequest struct {
	GeoFences        []FenceDTO `json:"geo_fences,omitempty"`
	LocationGeoFence *FenceDTO  `json:"location_geo_fence,omitempty"`
}

func (r ImportFencesRequest) merged() []domain.GeoFence {
	fences := fencesToDomain(r.GeoFences)
	if r.LocationGeoFence != nil {
		fences = append(fences, r.LocationGeoFence.toDomain())
	}
	return fences
}

type CreateProjectRequest struct {
	OrgID     string     `json:"org_id,omitempty"`
	Name      string     `json:"name"`
	GeoFences []FenceDTO `json:"geo_fences,omitempty"`
}

type BulkClockingsRequest struct {
	OrgID     string   `json:"org_id,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	TaskID    *string  `json:"task_id,omitempty"`
	StartedAt string   `json:"started_at" format:"date-time"`
	EndedAt   *string  `json:"ended_at,omitempty" format:"date-time"`
	Note      string   `json:"note,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	OrgID   string   `json:"org_id"`
	Role    string   `json:"role,omitempty" enum:",user,manager,admin,superadmin"`
	Groups  []string `json:"groups,omitempty"`
	Email   string   `json:"email,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type TaskResponse struct {
	ID               string     `json:"id"`
	OrgID            string     `json:"org_id"`
	ProjectID        *string    `json:"project_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Status           string     `json:"status"`
	Visibility       string     `json:"visibility,omitempty"`
	AssignedUserIDs  []string   `json:"assigned_user_ids,omitempty"`
	AssignedGroupIDs []string   `json:"assigned_group_ids,omitempty"`
	DependentTaskIDs []string   `json:"dependent_task_ids,omitempty"`
	GeoFences        []FenceDTO `json:"geo_fences,omitempty"`
	RequireToken     bool       `json:"require_token,omitempty"`
	RequireLocation  bool       `json:"require_location,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        string     `json:"created_at"`
	UpdatedAt        string     `json:"updated_at"`

	// Legacy aliases mirror the first element so older clients keep working.
	AssignedUserID   *string   `json:"assigned_user_id,omitempty"`
	AssignedGroupID  *string   `json:"assigned_group_id,omitempty"`
	LocationGeoFence *FenceDTO `json:"location_geo_fence,omitempty"`
}

func taskResponse(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:               t.ID,
		OrgID:            t.OrgID,
		ProjectID:        t.ProjectID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           string(t.Status),
		Visibility:       string(t.Visibility),
		AssignedUserIDs:  t.AssignedUserIDs,
		AssignedGroupIDs: t.AssignedGroupIDs,
		DependentTaskIDs: t.DependentTaskIDs,
		GeoFences:        fencesFromDomain(t.Fences),
		RequireToken:     t.RequireToken,
		RequireLocation:  t.RequireLocation,
		Version:          t.Version,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	if len(t.AssignedUserIDs) > 0 {
		resp.AssignedUserID = &t.AssignedUserIDs[0]
	}
	if len(t.AssignedGroupIDs) > 0 {
		resp.AssignedGroupID = &t.AssignedGroupIDs[0]
	}
	// the legacy alias only ever carried a circle, so polygons stay out of it
	for _, f := range resp.GeoFences {
		if f.Kind == string(domain.FenceCircle) {
			fence := f
			resp.LocationGeoFence = &fence
			break
		}
	}
	return resp
}

func mapTasks(list []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(list))
	for _, t := range list {
		out = append(out, taskResponse(t))
	}
	return out
}

type EditTaskResponse struct {
	TaskResponse
	AuditSkipped bool `json:"audit_skipped,omitempty"`
}

type ProjectResponse struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Name      string     `json:"name"`
	GeoFences []FenceDTO `json:"geo_fences,omitempty"`
	CreatedAt string     `json:"created_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		OrgID:     p.OrgID,
		Name:      p.Name,
		GeoFences: fencesFromDomain(p.Fences),
		CreatedAt: p.CreatedAt,
	}
}

func mapProjects(list []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(list))
	for _, p := range list {
		out = append(out, projectResponse(p))
	}
	return out
}

type TaskListResponse struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type BulkClockingsResponse struct {
	Outcomes []engine.ClockingOutcome `json:"outcomes"`
}
