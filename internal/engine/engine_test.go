package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/fault"
	"fieldline/internal/lifecycle"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng, err := engine.New(conn, cfg)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func admin() domain.Actor {
	return domain.Actor{ID: "tester", Role: domain.RoleSuperadmin, Scope: domain.GlobalScope()}
}

func member(id string, groups ...string) domain.Actor {
	return domain.Actor{ID: id, Role: domain.RoleUser, Scope: domain.OrgScopeFor("org-1"), GroupIDs: groups}
}

func (env testEnv) mustCreate(t *testing.T, draft engine.TaskDraft) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, admin(), draft)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) mustAct(t *testing.T, actor domain.Actor, taskID string, req engine.ActionRequest) domain.Task {
	t.Helper()
	task, err := env.Engine.PerformAction(env.Ctx, actor, taskID, req)
	if err != nil {
		t.Fatalf("action %s: %v", req.Action, err)
	}
	return task
}

func TestLifecycleDerivation(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Inspect pump"})
	if task.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}

	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T10:00:00Z"})
	if task.Status != domain.StatusInProgress {
		t.Fatalf("after start: %s", task.Status)
	}
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionPause, At: "2024-01-01T10:30:00Z"})
	if task.Status != domain.StatusPaused {
		t.Fatalf("after pause: %s", task.Status)
	}
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionResume, At: "2024-01-01T11:00:00Z"})
	if task.Status != domain.StatusInProgress {
		t.Fatalf("after resume: %s", task.Status)
	}
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionComplete, At: "2024-01-01T11:45:00Z"})
	if task.Status != domain.StatusCompleted {
		t.Fatalf("after complete: %s", task.Status)
	}

	sheet, err := env.Engine.TaskTimesheet(env.Ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("timesheet: %v", err)
	}
	if sheet.ElapsedMinutes != 75 {
		t.Fatalf("expected 75 elapsed minutes, got %d", sheet.ElapsedMinutes)
	}
	if len(sheet.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(sheet.Events))
	}
}

func TestPhotoLeavesStatusUntouched(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Photo only"})
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionPhoto, At: "2024-01-01T09:00:00Z"})
	if task.Status != domain.StatusPending {
		t.Fatalf("photo changed status to %s", task.Status)
	}
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T10:00:00Z"})
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionPhoto, At: "2024-01-01T10:05:00Z"})
	if task.Status != domain.StatusInProgress {
		t.Fatalf("photo after start changed status to %s", task.Status)
	}
}

func TestOutOfOrderTimestamps(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Skewed clocks"})
	// complete arrives first by insertion, start carries the later timestamp
	env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionComplete, At: "2024-01-01T12:00:00Z"})
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T10:00:00Z", Override: true})
	if task.Status != domain.StatusCompleted {
		t.Fatalf("expected completed from latest timestamp, got %s", task.Status)
	}
}

func TestOffsetTimestampsNormalizeToUTC(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Zoned clocks"})
	// 23:00+10:00 is 13:00Z, an hour before the start recorded in UTC
	env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionComplete, At: "2024-01-01T23:00:00+10:00"})
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T14:00:00Z", Override: true})
	if task.Status != domain.StatusInProgress {
		t.Fatalf("expected in-progress from latest instant, got %s", task.Status)
	}

	sheet, err := env.Engine.TaskTimesheet(env.Ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("timesheet: %v", err)
	}
	if sheet.Events[0].At != "2024-01-01T13:00:00Z" {
		t.Fatalf("expected offset timestamp stored in UTC, got %s", sheet.Events[0].At)
	}
}

func TestDependencyGating(t *testing.T) {
	env := newTestEnv(t)
	dep1 := env.mustCreate(t, engine.TaskDraft{Title: "dep one"})
	dep2 := env.mustCreate(t, engine.TaskDraft{Title: "dep two"})
	task := env.mustCreate(t, engine.TaskDraft{Title: "main", DependentTaskIDs: []string{dep1.ID, dep2.ID}})

	_, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart})
	if !fault.IsKind(err, fault.Precondition) {
		t.Fatalf("expected precondition with no deps complete, got %v", err)
	}

	env.mustAct(t, admin(), dep1.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T08:00:00Z"})
	env.mustAct(t, admin(), dep1.ID, engine.ActionRequest{Action: domain.ActionComplete, At: "2024-01-01T09:00:00Z"})

	// one of two complete still blocks
	_, err = env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart})
	if !fault.IsKind(err, fault.Precondition) {
		t.Fatalf("expected precondition with one dep pending, got %v", err)
	}

	env.mustAct(t, admin(), dep2.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T08:00:00Z"})
	env.mustAct(t, admin(), dep2.ID, engine.ActionRequest{Action: domain.ActionComplete, At: "2024-01-01T09:30:00Z"})

	task, err = env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart})
	if err != nil {
		t.Fatalf("expected start after deps complete: %v", err)
	}
	if task.Status != domain.StatusInProgress {
		t.Fatalf("unexpected status %s", task.Status)
	}
}

func TestProofTokenPrecondition(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "token gated", RequireToken: true})

	_, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart})
	if !fault.IsKind(err, fault.Precondition) {
		t.Fatalf("expected precondition without token, got %v", err)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Details["reason"] != "token" {
		t.Fatalf("expected token reason detail, got %v", err)
	}

	if _, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, Token: "qr-123"}); err != nil {
		t.Fatalf("expected start with token: %v", err)
	}
}

func TestLocationPrecondition(t *testing.T) {
	env := newTestEnv(t)
	site := domain.LatLng{Lat: 48.8584, Lng: 2.2945}
	task := env.mustCreate(t, engine.TaskDraft{
		Title:           "fence gated",
		RequireLocation: true,
		Fences:          []domain.GeoFence{domain.CircleFence(site, 200)},
	})

	_, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart})
	if !fault.IsKind(err, fault.Precondition) {
		t.Fatalf("expected precondition without a point, got %v", err)
	}

	far := domain.LatLng{Lat: 48.8600, Lng: 2.4000}
	_, err = env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, Point: &far})
	if !fault.IsKind(err, fault.Precondition) {
		t.Fatalf("expected precondition outside fence, got %v", err)
	}

	if _, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, Point: &site}); err != nil {
		t.Fatalf("expected start inside fence: %v", err)
	}
}

func TestLocationWithoutFencesFails(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "no fences", RequireLocation: true})
	p := domain.LatLng{Lat: 1, Lng: 1}
	_, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, Point: &p})
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Details["reason"] != "no_fences" {
		t.Fatalf("expected no_fences precondition, got %v", err)
	}
}

func TestProjectFenceFallback(t *testing.T) {
	env := newTestEnv(t)
	site := domain.LatLng{Lat: 40.0, Lng: -3.0}
	project, err := env.Engine.CreateProject(env.Ctx, admin(), engine.ProjectDraft{
		Name:   "Depot",
		Fences: []domain.GeoFence{domain.CircleFence(site, 500)},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task := env.mustCreate(t, engine.TaskDraft{
		Title:           "fenceless task",
		ProjectID:       &project.ID,
		RequireLocation: true,
	})

	if _, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, Point: &site}); err != nil {
		t.Fatalf("expected project fence fallback to pass: %v", err)
	}
}

func TestPrivilegedOverride(t *testing.T) {
	env := newTestEnv(t)
	dep := env.mustCreate(t, engine.TaskDraft{Title: "dep"})
	task := env.mustCreate(t, engine.TaskDraft{
		Title:            "gated",
		DependentTaskIDs: []string{dep.ID},
		AssignedUserIDs:  []string{"alice"},
	})

	// an override from a non-privileged actor does not bypass anything
	_, err := env.Engine.PerformAction(env.Ctx, member("alice"), task.ID, engine.ActionRequest{Action: domain.ActionStart, Override: true})
	if !fault.IsKind(err, fault.Precondition) {
		t.Fatalf("expected precondition for unprivileged override, got %v", err)
	}

	if _, err := env.Engine.PerformAction(env.Ctx, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, Override: true}); err != nil {
		t.Fatalf("expected privileged override to pass: %v", err)
	}
}

func TestEditTaskRecordsAuditEntries(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Before", AssignedUserIDs: []string{"alice"}})

	title := "After"
	users := []string{"alice", "bob"}
	res, err := env.Engine.EditTask(env.Ctx, admin(), task.ID, engine.TaskPatch{
		Title:           &title,
		AssignedUserIDs: &users,
		Note:            "reassignment",
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if res.AuditSkipped {
		t.Fatalf("expected audit entry, got skipped")
	}
	if res.Task.Title != "After" || res.Task.Version != task.Version+1 {
		t.Fatalf("unexpected task after edit: %+v", res.Task)
	}

	entries, err := env.Engine.AuditTrail(env.Ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.EditedBy != "tester" || entry.Note != "reassignment" {
		t.Fatalf("unexpected entry metadata: %+v", entry)
	}
	fields := map[string]bool{}
	for _, c := range entry.Changes {
		fields[c.Field] = true
	}
	if !fields["title"] || !fields["assigned_user_ids"] || len(entry.Changes) != 2 {
		t.Fatalf("unexpected change set: %+v", entry.Changes)
	}
}

func TestEditTaskNoChangesIsSilent(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Same"})

	title := "Same"
	res, err := env.Engine.EditTask(env.Ctx, admin(), task.ID, engine.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !res.AuditSkipped {
		t.Fatalf("expected silent no-op for empty diff")
	}
	if res.Task.Version != task.Version {
		t.Fatalf("no-op edit bumped version to %d", res.Task.Version)
	}
	entries, err := env.Engine.AuditTrail(env.Ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestUnresolvedEditorPolicies(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Gov"})

	ghost := domain.Actor{ID: "null", Role: domain.RoleSuperadmin, Scope: domain.GlobalScope()}
	title := "Renamed"

	// default policy rejects the whole edit
	_, err := env.Engine.EditTask(env.Ctx, ghost, task.ID, engine.TaskPatch{Title: &title})
	if !fault.IsKind(err, fault.Validation) {
		t.Fatalf("expected reject policy validation fault, got %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, admin(), task.ID)
	if err != nil || got.Title != "Gov" {
		t.Fatalf("rejected edit leaked: %v %q", err, got.Title)
	}

	// skip policy persists the edit without an entry
	env.Engine.Trail.Policy = "skip"
	res, err := env.Engine.EditTask(env.Ctx, ghost, task.ID, engine.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("skip policy edit: %v", err)
	}
	if !res.AuditSkipped || res.Task.Title != "Renamed" {
		t.Fatalf("unexpected skip outcome: %+v", res)
	}
	entries, err := env.Engine.AuditTrail(env.Ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("skip policy wrote an entry")
	}
}

func TestLegacyAliasPatch(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "Alias"})

	userID := "alice"
	res, err := env.Engine.EditTask(env.Ctx, admin(), task.ID, engine.TaskPatch{AssignedUserID: &userID})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(res.Task.AssignedUserIDs) != 1 || res.Task.AssignedUserIDs[0] != "alice" {
		t.Fatalf("alias did not merge: %v", res.Task.AssignedUserIDs)
	}

	// list form wins when both are present
	users := []string{"bob", "carol"}
	other := "dave"
	res, err = env.Engine.EditTask(env.Ctx, admin(), task.ID, engine.TaskPatch{
		AssignedUserIDs: &users,
		AssignedUserID:  &other,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(res.Task.AssignedUserIDs) != 2 || res.Task.AssignedUserIDs[0] != "bob" {
		t.Fatalf("list form lost to alias: %v", res.Task.AssignedUserIDs)
	}
}

func TestVisibilityModes(t *testing.T) {
	env := newTestEnv(t)
	assignees := env.mustCreate(t, engine.TaskDraft{
		Title:           "for alice",
		Visibility:      domain.VisibilityAssignees,
		AssignedUserIDs: []string{"alice"},
	})
	grouped := env.mustCreate(t, engine.TaskDraft{
		Title:            "for crew",
		Visibility:       domain.VisibilityGroups,
		AssignedGroupIDs: []string{"crew"},
	})
	adminsOnly := env.mustCreate(t, engine.TaskDraft{
		Title:      "sensitive",
		Visibility: domain.VisibilityAdmins,
	})

	if _, err := env.Engine.GetTask(env.Ctx, member("alice"), assignees.ID); err != nil {
		t.Fatalf("assignee read: %v", err)
	}
	_, err := env.Engine.GetTask(env.Ctx, member("bob"), assignees.ID)
	if !fault.IsKind(err, fault.Authorization) {
		t.Fatalf("expected authorization for non-assignee, got %v", err)
	}

	if _, err := env.Engine.GetTask(env.Ctx, member("bob", "crew"), grouped.ID); err != nil {
		t.Fatalf("group member read: %v", err)
	}
	_, err = env.Engine.GetTask(env.Ctx, member("alice"), grouped.ID)
	if !fault.IsKind(err, fault.Authorization) {
		t.Fatalf("expected authorization outside group, got %v", err)
	}

	_, err = env.Engine.GetTask(env.Ctx, member("alice"), adminsOnly.ID)
	if !fault.IsKind(err, fault.Authorization) {
		t.Fatalf("expected authorization for admins mode, got %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, admin(), adminsOnly.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	// list form applies the same clauses
	tasks, err := env.Engine.ListTasks(env.Ctx, member("alice"), engine.TaskQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, tk := range tasks {
		if tk.ID == grouped.ID || tk.ID == adminsOnly.ID {
			t.Fatalf("list leaked task %s", tk.Title)
		}
	}
	found := false
	for _, tk := range tasks {
		if tk.ID == assignees.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("list missing assignee task")
	}
}

func TestOrgMismatchReportsNotFound(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "tenant one"})

	outsider := domain.Actor{ID: "eve", Role: domain.RoleSuperadmin, Scope: domain.OrgScopeFor("org-2")}
	_, err := env.Engine.GetTask(env.Ctx, outsider, task.ID)
	if !fault.IsKind(err, fault.NotFound) {
		t.Fatalf("expected not_found for cross-tenant probe, got %v", err)
	}
}

func TestAdminsVisibilityRequiresPrivilege(t *testing.T) {
	env := newTestEnv(t)
	manager := domain.Actor{ID: "mgr", Role: domain.RoleManager, Scope: domain.OrgScopeFor("org-1")}
	_, err := env.Engine.CreateTask(env.Ctx, manager, engine.TaskDraft{
		Title:      "locked",
		Visibility: domain.VisibilityAdmins,
	})
	if !fault.IsKind(err, fault.Authorization) {
		t.Fatalf("expected authorization, got %v", err)
	}
}

func TestCreateTaskRequiresManagerialRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, member("alice"), engine.TaskDraft{Title: "nope"})
	if !fault.IsKind(err, fault.Authorization) {
		t.Fatalf("expected authorization, got %v", err)
	}
}

func TestEventEditRederivesStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "editable log"})
	env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T10:00:00Z"})
	task = env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionComplete, At: "2024-01-01T11:00:00Z"})

	sheet, err := env.Engine.TaskTimesheet(env.Ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("timesheet: %v", err)
	}
	completeID := sheet.Events[1].ID

	pause := domain.ActionPause
	task, err = env.Engine.EditActionEvent(env.Ctx, admin(), task.ID, completeID, lifecycle.EventPatch{Action: &pause})
	if err != nil {
		t.Fatalf("edit event: %v", err)
	}
	if task.Status != domain.StatusPaused {
		t.Fatalf("expected paused after edit, got %s", task.Status)
	}

	task, err = env.Engine.DeleteActionEvent(env.Ctx, admin(), task.ID, completeID)
	if err != nil {
		t.Fatalf("delete event: %v", err)
	}
	if task.Status != domain.StatusInProgress {
		t.Fatalf("expected in-progress after delete, got %s", task.Status)
	}

	// the log is append-only for everyone else
	_, err = env.Engine.DeleteActionEvent(env.Ctx, member("alice"), task.ID, "whatever")
	if !fault.IsKind(err, fault.Authorization) {
		t.Fatalf("expected authorization for unprivileged delete, got %v", err)
	}
}

func TestDeleteMissingEvent(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "missing event"})
	_, err := env.Engine.DeleteActionEvent(env.Ctx, admin(), task.ID, "no-such-event")
	if !fault.IsKind(err, fault.NotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestStaleVersionConflicts(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "raced"})
	env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T10:00:00Z"})

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.UpdateTaskStatus(env.Ctx, tx, task.ID, domain.StatusPaused, "2024-01-01T10:30:00Z", task.Version)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
}

func TestBulkClockings(t *testing.T) {
	env := newTestEnv(t)
	started := "2024-01-01T08:00:00Z"

	outcomes, err := env.Engine.BulkCreateClockings(env.Ctx, member("alice"), engine.BulkClockingRequest{
		UserIDs:   []string{"alice", "bob"},
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	byUser := map[string]engine.ClockingOutcome{}
	for _, o := range outcomes {
		byUser[o.UserID] = o
	}
	if byUser["alice"].ClockingID == "" || byUser["alice"].Error != "" {
		t.Fatalf("self clocking failed: %+v", byUser["alice"])
	}
	if byUser["bob"].Error == "" {
		t.Fatalf("expected inaccessible subject error for bob")
	}

	// the legacy single-value alias merges into the list
	outcomes, err = env.Engine.BulkCreateClockings(env.Ctx, admin(), engine.BulkClockingRequest{
		UserID:    "carol",
		StartedAt: started,
	})
	if err != nil || len(outcomes) != 1 || outcomes[0].ClockingID == "" {
		t.Fatalf("legacy alias bulk: %v %+v", err, outcomes)
	}

	// alice reads only her own rows back
	rows, err := env.Engine.ListClockings(env.Ctx, member("alice"), engine.ClockingQuery{})
	if err != nil {
		t.Fatalf("list clockings: %v", err)
	}
	if len(rows) != 1 || rows[0].UserID != "alice" {
		t.Fatalf("unexpected clockings for alice: %+v", rows)
	}
	all, err := env.Engine.ListClockings(env.Ctx, admin(), engine.ClockingQuery{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 clockings for admin, got %d", len(all))
	}
}

func TestGroupSubjectClockings(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterGroup(env.Ctx, admin(), domain.Group{
		ID:        "crew",
		Name:      "Crew",
		MemberIDs: []string{"bob"},
	}); err != nil {
		t.Fatalf("register group: %v", err)
	}

	outcomes, err := env.Engine.BulkCreateClockings(env.Ctx, member("alice", "crew"), engine.BulkClockingRequest{
		UserIDs:   []string{"bob"},
		StartedAt: "2024-01-01T08:00:00Z",
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if outcomes[0].Error != "" || outcomes[0].ClockingID == "" {
		t.Fatalf("expected group member to be accessible: %+v", outcomes[0])
	}
}

func TestJournalRecordsMutations(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskDraft{Title: "journaled"})
	env.mustAct(t, admin(), task.ID, engine.ActionRequest{Action: domain.ActionStart, At: "2024-01-01T10:00:00Z"})

	events, err := env.Engine.JournalTail(env.Ctx, admin(), 0, 10)
	if err != nil {
		t.Fatalf("journal tail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 journal events, got %d", len(events))
	}
	types := map[string]bool{}
	for _, ev := range events {
		types[ev.Type] = true
	}
	if !types["task.created"] || !types["task.action"] {
		t.Fatalf("unexpected journal types: %v", types)
	}

	_, err = env.Engine.JournalTail(env.Ctx, member("alice"), 0, 10)
	if !fault.IsKind(err, fault.Authorization) {
		t.Fatalf("expected authorization for journal, got %v", err)
	}
}

func TestListTasksPagination(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	env.Engine.Now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}
	for i := 0; i < 3; i++ {
		env.mustCreate(t, engine.TaskDraft{Title: "page"})
	}

	first, err := env.Engine.ListTasks(env.Ctx, admin(), engine.TaskQuery{Limit: 2})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(first))
	}
	last := first[len(first)-1]
	rest, err := env.Engine.ListTasks(env.Ctx, admin(), engine.TaskQuery{
		Limit:           2,
		CursorCreatedAt: last.CreatedAt,
		CursorID:        last.ID,
	})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 remaining task, got %d", len(rest))
	}
	if rest[0].ID == first[0].ID || rest[0].ID == first[1].ID {
		t.Fatalf("cursor returned a duplicate")
	}
}
