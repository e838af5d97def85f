// Package geo implements the spatial membership tests behind location
// preconditions. Everything here is pure: malformed fences evaluate to
// false, they never error.
package geo

import (
	"context"
	"math"

	"fieldline/internal/domain"
)

const earthRadiusMeters = 6371000.0

// circleSlackMeters absorbs the floating-point noise of the haversine
// formula so points sitting on a circle's boundary are classified inside.
const circleSlackMeters = 0.5

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(a, b domain.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// PointInRing runs a ray cast against the ring in its original vertex
// order. The ring is treated as implicitly closed; fewer than three
// vertices never match.
func PointInRing(p domain.LatLng, ring []domain.LatLng) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		yi, xi := ring[i].Lat, ring[i].Lng
		yj, xj := ring[j].Lat, ring[j].Lng
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lng < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// InFence tests membership against a single fence. Circle membership is
// boundary-inclusive.
func InFence(p domain.LatLng, f domain.GeoFence) bool {
	switch f.Kind {
	case domain.FenceCircle:
		if f.Center == nil || f.RadiusMeters <= 0 {
			return false
		}
		return HaversineMeters(p, *f.Center) <= f.RadiusMeters+circleSlackMeters
	case domain.FencePolygon:
		return PointInRing(p, f.Ring)
	}
	return false
}

// InsideAny is the OR across a heterogeneous fence set. An empty set never
// matches.
func InsideAny(p domain.LatLng, fences []domain.GeoFence) bool {
	for _, f := range fences {
		if InFence(p, f) {
			return true
		}
	}
	return false
}

// ProjectFenceLookup fetches a project's fences for fallback resolution.
type ProjectFenceLookup func(ctx context.Context, projectID string) ([]domain.GeoFence, error)

// EffectiveFences resolves the authoritative fence set for a task: the
// task's own fences win outright; the project is only consulted when the
// task has none. Lookup failures degrade to an empty set.
func EffectiveFences(ctx context.Context, task domain.Task, lookup ProjectFenceLookup) ([]domain.GeoFence, domain.FenceSource) {
	if len(task.Fences) > 0 {
		return task.Fences, domain.FenceSourceTask
	}
	if task.ProjectID != nil && lookup != nil {
		fences, err := lookup(ctx, *task.ProjectID)
		if err == nil && len(fences) > 0 {
			return fences, domain.FenceSourceProject
		}
	}
	return nil, domain.FenceSourceNone
}
