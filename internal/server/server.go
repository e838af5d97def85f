// Package server exposes the fieldline engine over HTTP, with JWT and API
// key auth, an OpenAPI document, and a single error envelope.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/fault"
	"fieldline/internal/lifecycle"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"precondition_failed"`
	Message string         `json:"message" example:"dependencies incomplete (1 of 2 completed)"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"reason\":\"dependencies\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Fieldline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are caller mistakes, 400.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Fieldline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerTaskActions(group, cfg.Engine)
	registerTaskEvents(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerClockings(group, cfg.Engine)
	registerJournal(group, cfg.Engine)
	if cfg.Auth.DevLoginEnabled {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's fault taxonomy to HTTP. Anything outside
// the taxonomy is an opaque 500; internals never leak to clients.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if se, ok := err.(huma.StatusError); ok {
		return se
	}
	var details map[string]any
	var fe *fault.Error
	if errors.As(err, &fe) && len(fe.Details) > 0 {
		details = map[string]any{}
		for k, v := range fe.Details {
			details[k] = v
		}
	}
	switch fault.KindOf(err) {
	case fault.Validation:
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	case fault.Authorization:
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), details)
	case fault.Precondition:
		return newAPIError(http.StatusUnprocessableEntity, "precondition_failed", err.Error(), details)
	case fault.NotFound:
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), details)
	case fault.Conflict:
		return newAPIError(http.StatusConflict, "conflict", err.Error(), details)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "precondition_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		draft := engine.TaskDraft{
			OrgID:            input.Body.OrgID,
			ProjectID:        input.Body.ProjectID,
			Title:            input.Body.Title,
			Description:      input.Body.Description,
			Visibility:       domain.Visibility(input.Body.Visibility),
			AssignedUserIDs:  input.Body.AssignedUserIDs,
			AssignedGroupIDs: input.Body.AssignedGroupIDs,
			DependentTaskIDs: input.Body.DependentTaskIDs,
			Fences:           fencesToDomain(input.Body.GeoFences),
			RequireToken:     input.Body.RequireToken,
			RequireLocation:  input.Body.RequireLocation,
		}
		if input.Body.AssignedUserID != nil && len(draft.AssignedUserIDs) == 0 {
			draft.AssignedUserIDs = []string{*input.Body.AssignedUserID}
		}
		if input.Body.AssignedGroupID != nil && len(draft.AssignedGroupIDs) == 0 {
			draft.AssignedGroupIDs = []string{*input.Body.AssignedGroupID}
		}
		if input.Body.LocationGeoFence != nil && len(draft.Fences) == 0 {
			draft.Fences = []domain.GeoFence{input.Body.LocationGeoFence.toDomain()}
		}
		task, err := e.CreateTask(ctx, actor, draft)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List visible tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status" enum:",pending,in-progress,paused,completed"`
		ProjectID string `query:"project_id"`
		Limit     int    `query:"limit"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		q := engine.TaskQuery{
			Status:    input.Status,
			ProjectID: input.ProjectID,
			Limit:     input.Limit,
		}
		if input.Cursor != "" {
			createdAt, id, ok := decodeCursor(input.Cursor)
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			q.CursorCreatedAt, q.CursorID = createdAt, id
		}
		tasks, err := e.ListTasks(ctx, actor, q)
		if err != nil {
			return nil, handleError(err)
		}
		resp := TaskListResponse{Items: mapTasks(tasks)}
		if limit := q.Limit; limit > 0 && len(tasks) == limit {
			last := tasks[len(tasks)-1]
			resp.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.GetTask(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Edit task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body EditTaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		patch := engine.TaskPatch{
			Title:            input.Body.Title,
			Description:      input.Body.Description,
			ProjectID:        input.Body.ProjectID,
			AssignedUserIDs:  input.Body.AssignedUserIDs,
			AssignedGroupIDs: input.Body.AssignedGroupIDs,
			DependentTaskIDs: input.Body.DependentTaskIDs,
			RequireToken:     input.Body.RequireToken,
			RequireLocation:  input.Body.RequireLocation,
			Note:             input.Body.Note,
			AssignedUserID:   input.Body.AssignedUserID,
			AssignedGroupID:  input.Body.AssignedGroupID,
		}
		if input.Body.Visibility != nil {
			vis := domain.Visibility(*input.Body.Visibility)
			patch.Visibility = &vis
		}
		if input.Body.GeoFences != nil {
			fences := fencesToDomain(*input.Body.GeoFences)
			if fences == nil {
				fences = []domain.GeoFence{}
			}
			patch.Fences = &fences
		}
		if input.Body.LocationGeoFence != nil {
			fence := input.Body.LocationGeoFence.toDomain()
			patch.LocationFence = &fence
		}
		result, err := e.EditTask(ctx, actor, input.TaskID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EditTaskResponse `json:"body"`
		}{Body: EditTaskResponse{TaskResponse: taskResponse(result.Task), AuditSkipped: result.AuditSkipped}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-audit",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/audit",
		Summary:     "Task audit trail",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		entries, err := e.AuditTrail(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []domain.AuditEntry{}
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-task-fences",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/fences",
		Summary:     "Replace task geofences",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string              `path:"task_id"`
		Body   ImportFencesRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.ImportTaskFences(ctx, actor, input.TaskID, input.Body.merged())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})
}

func registerTaskActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "perform-task-action",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/actions",
		Summary:       "Append a lifecycle action",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   TaskActionRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		req := engine.ActionRequest{
			Action:      domain.Action(input.Body.Action),
			At:          input.Body.At,
			Note:        input.Body.Note,
			MilestoneID: input.Body.MilestoneID,
			Token:       input.Body.Token,
			Override:    input.Body.Override,
		}
		if input.Body.Lat != nil && input.Body.Lng != nil {
			req.Point = &domain.LatLng{Lat: *input.Body.Lat, Lng: *input.Body.Lng}
		}
		task, err := e.PerformAction(ctx, actor, input.TaskID, req)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-timesheet",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/timesheet",
		Summary:     "Task timesheet",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body engine.Timesheet `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		ts, err := e.TaskTimesheet(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if ts.Events == nil {
			ts.Events = []domain.ActionEvent{}
		}
		return &struct {
			Body engine.Timesheet `json:"body"`
		}{Body: ts}, nil
	})
}

func registerTaskEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "edit-task-event",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/events/{event_id}",
		Summary:     "Edit a log event (privileged)",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID  string            `path:"task_id"`
		EventID string            `path:"event_id"`
		Body    EventPatchRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		patch := lifecycle.EventPatch{At: input.Body.At, Note: input.Body.Note}
		if input.Body.Action != nil {
			a := domain.Action(*input.Body.Action)
			patch.Action = &a
		}
		task, err := e.EditActionEvent(ctx, actor, input.TaskID, input.EventID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task-event",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}/events/{event_id}",
		Summary:     "Delete a log event (privileged)",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID  string `path:"task_id"`
		EventID string `path:"event_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.DeleteActionEvent(ctx, actor, input.TaskID, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, actor, engine.ProjectDraft{
			OrgID:  input.Body.OrgID,
			Name:   input.Body.Name,
			Fences: fencesToDomain(input.Body.GeoFences),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-project-fences",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/fences",
		Summary:     "Replace project geofences",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      ImportFencesRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ImportProjectFences(ctx, actor, input.ProjectID, input.Body.merged())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerClockings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "bulk-create-clockings",
		Method:        http.MethodPost,
		Path:          "/clockings/bulk",
		Summary:       "Create clockings for a set of users",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body BulkClockingsRequest `json:"body"`
	}) (*struct {
		Body BulkClockingsResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		outcomes, err := e.BulkCreateClockings(ctx, actor, engine.BulkClockingRequest{
			OrgID:     input.Body.OrgID,
			UserIDs:   input.Body.UserIDs,
			UserID:    input.Body.UserID,
			TaskID:    input.Body.TaskID,
			StartedAt: input.Body.StartedAt,
			EndedAt:   input.Body.EndedAt,
			Note:      input.Body.Note,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BulkClockingsResponse `json:"body"`
		}{Body: BulkClockingsResponse{Outcomes: outcomes}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clockings",
		Method:      http.MethodGet,
		Path:        "/clockings",
		Summary:     "List accessible clockings",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
		TaskID string `query:"task_id"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []domain.Clocking `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListClockings(ctx, actor, engine.ClockingQuery{
			UserID: input.UserID,
			TaskID: input.TaskID,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Clocking{}
		}
		return &struct {
			Body []domain.Clocking `json:"body"`
		}{Body: items}, nil
	})
}

func registerJournal(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the system journal (privileged)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		AfterID int64 `query:"after_id"`
		Limit   int   `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.JournalTail(ctx, actor, input.AfterID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		org := strings.TrimSpace(input.Body.OrgID)
		if actor == "" || org == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and org_id are required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, org, input.Body.Role, input.Body.Groups, input.Body.Email)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

// Cursor is created_at and id joined; both are opaque to clients.
func encodeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}

func decodeCursor(cursor string) (createdAt, id string, ok bool) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Fieldline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
