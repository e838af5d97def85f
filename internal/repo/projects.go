package repo

import (
	"context"
	"database/sql"

	"fieldline/internal/domain"
)

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id,org_id,name,created_at) VALUES (?,?,?,?)`,
		p.ID, p.OrgID, p.Name, p.CreatedAt); err != nil {
		return err
	}
	return r.ReplaceFences(ctx, tx, "project", p.ID, p.Fences)
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,name,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Fences, err = r.ListFences(ctx, "project", p.ID)
	return p, err
}

func (r Repo) ListProjects(ctx context.Context, scope domain.OrgScope) ([]domain.Project, error) {
	query := `SELECT id,org_id,name,created_at FROM projects`
	var args []any
	if !scope.Global && !scope.Empty() {
		query += ` WHERE org_id=?`
		args = append(args, scope.OrgID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Fences, err = r.ListFences(ctx, "project", out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ProjectFences implements geo.ProjectFenceLookup.
func (r Repo) ProjectFences(ctx context.Context, projectID string) ([]domain.GeoFence, error) {
	return r.ListFences(ctx, "project", projectID)
}
