package repo

import (
	"context"
	"database/sql"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/visibility"
)

func (r Repo) InsertClocking(ctx context.Context, tx *sql.Tx, c domain.Clocking) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO clockings(id,org_id,user_id,task_id,started_at,ended_at,note,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.OrgID, c.UserID, nullableStringPtr(c.TaskID), c.StartedAt, nullableStringPtr(c.EndedAt), nullable(c.Note), c.CreatedAt)
	return err
}

type ClockingFilters struct {
	Scope    domain.OrgScope
	Subjects visibility.Subjects
	UserID   string
	TaskID   string
	Limit    int
}

// ListClockings returns clockings restricted to the caller's accessible
// subject set. An empty non-All subject set yields no rows.
func (r Repo) ListClockings(ctx context.Context, f ClockingFilters) ([]domain.Clocking, error) {
	clauses := []string{"1=1"}
	var args []any
	if !f.Scope.Global && !f.Scope.Empty() {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.Scope.OrgID)
	}
	if !f.Subjects.All {
		if len(f.Subjects.IDs) == 0 {
			return nil, nil
		}
		clauses = append(clauses, "user_id IN ("+placeholders(len(f.Subjects.IDs))+")")
		for _, id := range f.Subjects.IDs {
			args = append(args, id)
		}
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	query := `SELECT id,org_id,user_id,task_id,started_at,ended_at,COALESCE(note,''),created_at FROM clockings WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY started_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Clocking
	for rows.Next() {
		var c domain.Clocking
		var taskID, endedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.OrgID, &c.UserID, &taskID, &c.StartedAt, &endedAt, &c.Note, &c.CreatedAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			c.TaskID = &taskID.String
		}
		if endedAt.Valid {
			c.EndedAt = &endedAt.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
