package repo

import (
	"context"
	"database/sql"

	"fieldline/internal/domain"
)

// InsertActionEvent appends one log row. The table is insert-only in normal
// operation; privileged edits go through UpdateActionEvent.
func (r Repo) InsertActionEvent(ctx context.Context, tx *sql.Tx, e domain.ActionEvent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO action_events(id,task_id,action,at,actor_id,note,milestone_id) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.TaskID, string(e.Action), e.At, e.ActorID, nullable(e.Note), nullableStringPtr(e.MilestoneID))
	return err
}

const actionEventColumns = `id,task_id,action,at,actor_id,COALESCE(note,''),milestone_id`

func scanActionEvent(scan func(...any) error) (domain.ActionEvent, error) {
	var e domain.ActionEvent
	var action string
	var milestoneID sql.NullString
	err := scan(&e.ID, &e.TaskID, &action, &e.At, &e.ActorID, &e.Note, &milestoneID)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Action = domain.Action(action)
	if milestoneID.Valid {
		e.MilestoneID = &milestoneID.String
	}
	return e, nil
}

// ListActionEvents returns a task's full log ordered by timestamp then id,
// so derivation and timesheet math see a stable order.
func (r Repo) ListActionEvents(ctx context.Context, taskID string) ([]domain.ActionEvent, error) {
	return r.listActionEvents(ctx, r.DB.QueryContext, taskID)
}

// ListActionEventsTx is ListActionEvents inside a transaction, used when the
// log was just mutated and the derivation must see the mutation.
func (r Repo) ListActionEventsTx(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.ActionEvent, error) {
	return r.listActionEvents(ctx, tx.QueryContext, taskID)
}

func (r Repo) listActionEvents(ctx context.Context, query func(context.Context, string, ...any) (*sql.Rows, error), taskID string) ([]domain.ActionEvent, error) {
	rows, err := query(ctx, `SELECT `+actionEventColumns+` FROM action_events WHERE task_id=? ORDER BY at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ActionEvent
	for rows.Next() {
		e, err := scanActionEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r Repo) GetActionEventTx(ctx context.Context, tx *sql.Tx, taskID, eventID string) (domain.ActionEvent, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+actionEventColumns+` FROM action_events WHERE id=? AND task_id=?`, eventID, taskID)
	return scanActionEvent(row.Scan)
}

func (r Repo) UpdateActionEvent(ctx context.Context, tx *sql.Tx, e domain.ActionEvent) error {
	res, err := tx.ExecContext(ctx, `UPDATE action_events SET action=?, at=?, note=? WHERE id=? AND task_id=?`,
		string(e.Action), e.At, nullable(e.Note), e.ID, e.TaskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteActionEvent(ctx context.Context, tx *sql.Tx, taskID, eventID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM action_events WHERE id=? AND task_id=?`, eventID, taskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
