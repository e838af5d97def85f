package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"fieldline/internal/domain"
)

func (r Repo) InsertAuditEntry(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_entries(id,task_id,edited_at,edited_by,note,changes_json) VALUES (?,?,?,?,?,?)`,
		e.ID, e.TaskID, e.EditedAt, e.EditedBy, nullable(e.Note), string(changes))
	return err
}

// ListAuditEntries returns a task's audit trail, most recent first.
func (r Repo) ListAuditEntries(ctx context.Context, taskID string) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,edited_at,edited_by,COALESCE(note,''),changes_json FROM audit_entries WHERE task_id=? ORDER BY edited_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var changesJSON string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.EditedAt, &e.EditedBy, &e.Note, &changesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(changesJSON), &e.Changes); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
