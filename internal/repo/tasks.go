package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/visibility"
)

// ErrConflict marks a failed optimistic-concurrency write: the row's
// version moved between read and write.
var ErrConflict = errors.New("version conflict")

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,org_id,project_id,title,description,status,visibility,require_token,require_location,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OrgID, nullableStringPtr(t.ProjectID), t.Title, nullable(t.Description), string(t.Status), string(t.Visibility),
		boolToInt(t.RequireToken), boolToInt(t.RequireLocation), t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if err := r.replaceTaskSets(ctx, tx, t); err != nil {
		return err
	}
	return r.ReplaceFences(ctx, tx, "task", t.ID, t.Fences)
}

func (r Repo) replaceTaskSets(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	for _, stmt := range []string{
		`DELETE FROM task_assignees WHERE task_id=?`,
		`DELETE FROM task_groups WHERE task_id=?`,
		`DELETE FROM task_deps WHERE task_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, t.ID); err != nil {
			return err
		}
	}
	for _, uid := range t.AssignedUserIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id) VALUES (?,?)`, t.ID, uid); err != nil {
			return err
		}
	}
	for _, gid := range t.AssignedGroupIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_groups(task_id,group_id) VALUES (?,?)`, t.ID, gid); err != nil {
			return err
		}
	}
	for _, dep := range t.DependentTaskIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_deps(task_id,depends_on_task_id) VALUES (?,?)`, t.ID, dep); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `id,org_id,project_id,title,COALESCE(description,''),status,visibility,require_token,require_location,version,created_at,updated_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var projectID sql.NullString
	var status, vis string
	var requireToken, requireLocation int
	err := scan(&t.ID, &t.OrgID, &projectID, &t.Title, &t.Description, &status, &vis,
		&requireToken, &requireLocation, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	t.Status = domain.Status(status)
	t.Visibility = domain.Visibility(vis)
	t.RequireToken = requireToken != 0
	t.RequireLocation = requireLocation != 0
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	return r.loadTaskRelations(ctx, t)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	return r.loadTaskRelations(ctx, t)
}

func (r Repo) loadTaskRelations(ctx context.Context, t domain.Task) (domain.Task, error) {
	var err error
	if t.AssignedUserIDs, err = r.taskSet(ctx, `SELECT user_id FROM task_assignees WHERE task_id=?`, t.ID); err != nil {
		return t, err
	}
	if t.AssignedGroupIDs, err = r.taskSet(ctx, `SELECT group_id FROM task_groups WHERE task_id=?`, t.ID); err != nil {
		return t, err
	}
	if t.DependentTaskIDs, err = r.taskSet(ctx, `SELECT depends_on_task_id FROM task_deps WHERE task_id=?`, t.ID); err != nil {
		return t, err
	}
	if t.Fences, err = r.ListFences(ctx, "task", t.ID); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) taskSet(ctx context.Context, query, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type TaskFilters struct {
	Visibility      visibility.Filter
	Status          string
	ProjectID       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Visibility.Clause != "" {
		clauses = append(clauses, f.Visibility.Clause)
		args = append(args, f.Visibility.Args...)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i], err = r.loadTaskRelations(ctx, res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// UpdateTaskMeta rewrites the mutable task fields and assignment sets,
// guarded by a version compare-and-swap. t.Version must hold the version
// the caller read; the row is written with t.Version+1.
func (r Repo) UpdateTaskMeta(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET project_id=?, title=?, description=?, visibility=?, require_token=?, require_location=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		nullableStringPtr(t.ProjectID), t.Title, nullable(t.Description), string(t.Visibility),
		boolToInt(t.RequireToken), boolToInt(t.RequireLocation), t.UpdatedAt, t.ID, t.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return r.replaceTaskSets(ctx, tx, t)
}

// UpdateTaskStatus rewrites the cached status under the same version CAS as
// meta updates, so a status recomputation never clobbers a concurrent edit.
func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id string, status domain.Status, updatedAt string, version int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		string(status), updatedAt, id, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// DepStatuses returns the cached status for each id. The cache is rewritten
// with every log mutation, so it matches the derived status.
func (r Repo) DepStatuses(ctx context.Context, ids []string) (map[string]domain.Status, error) {
	out := map[string]domain.Status{}
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id, status FROM tasks WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = domain.Status(status)
	}
	return out, rows.Err()
}
