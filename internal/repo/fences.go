package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"fieldline/internal/domain"
)

// ReplaceFences rewrites the fence list for an owner (task or project).
func (r Repo) ReplaceFences(ctx context.Context, tx *sql.Tx, ownerKind, ownerID string, fences []domain.GeoFence) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM fences WHERE owner_kind=? AND owner_id=?`, ownerKind, ownerID); err != nil {
		return err
	}
	for i, f := range fences {
		var centerLat, centerLng, radius any
		var ringJSON any
		if f.Kind == domain.FenceCircle && f.Center != nil {
			centerLat, centerLng, radius = f.Center.Lat, f.Center.Lng, f.RadiusMeters
		}
		if f.Kind == domain.FencePolygon {
			b, err := json.Marshal(f.Ring)
			if err != nil {
				return err
			}
			ringJSON = string(b)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fences(owner_kind,owner_id,kind,center_lat,center_lng,radius_m,ring_json,position) VALUES (?,?,?,?,?,?,?,?)`,
			ownerKind, ownerID, string(f.Kind), centerLat, centerLng, radius, ringJSON, i); err != nil {
			return err
		}
	}
	return nil
}

// ListFences returns an owner's fences in insertion order.
func (r Repo) ListFences(ctx context.Context, ownerKind, ownerID string) ([]domain.GeoFence, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT kind,center_lat,center_lng,radius_m,ring_json FROM fences WHERE owner_kind=? AND owner_id=? ORDER BY position`, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.GeoFence
	for rows.Next() {
		var kind string
		var lat, lng, radius sql.NullFloat64
		var ringJSON sql.NullString
		if err := rows.Scan(&kind, &lat, &lng, &radius, &ringJSON); err != nil {
			return nil, err
		}
		f := domain.GeoFence{Kind: domain.FenceKind(kind)}
		if lat.Valid && lng.Valid {
			f.Center = &domain.LatLng{Lat: lat.Float64, Lng: lng.Float64}
		}
		if radius.Valid {
			f.RadiusMeters = radius.Float64
		}
		if ringJSON.Valid && ringJSON.String != "" {
			if err := json.Unmarshal([]byte(ringJSON.String), &f.Ring); err != nil {
				return nil, err
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
