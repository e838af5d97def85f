package repo

import (
	"context"

	"fieldline/internal/domain"
)

// LatestEvents tails the system journal within an org scope.
func (r Repo) LatestEvents(ctx context.Context, scope domain.OrgScope, afterID int64, limit int) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(org_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id > ?`
	args := []any{afterID}
	if !scope.Global && !scope.Empty() {
		query += ` AND org_id=?`
		args = append(args, scope.OrgID)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrgID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
