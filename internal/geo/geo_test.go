package geo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/domain"
)

var (
	paris  = domain.LatLng{Lat: 48.8566, Lng: 2.3522}
	london = domain.LatLng{Lat: 51.5074, Lng: -0.1278}
)

func TestHaversineMeters(t *testing.T) {
	assert.Zero(t, HaversineMeters(paris, paris))

	// Paris to London is roughly 344 km
	d := HaversineMeters(paris, london)
	assert.InDelta(t, 344000, d, 5000)

	// symmetric
	assert.InDelta(t, d, HaversineMeters(london, paris), 0.001)
}

func TestPointInRing(t *testing.T) {
	square := []domain.LatLng{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0},
	}
	assert.True(t, PointInRing(domain.LatLng{Lat: 5, Lng: 5}, square))
	assert.False(t, PointInRing(domain.LatLng{Lat: 15, Lng: 5}, square))
	assert.False(t, PointInRing(domain.LatLng{Lat: -1, Lng: -1}, square))

	// degenerate rings never match
	assert.False(t, PointInRing(domain.LatLng{Lat: 5, Lng: 5}, square[:2]))
	assert.False(t, PointInRing(domain.LatLng{Lat: 5, Lng: 5}, nil))
}

func TestInFence_Circle(t *testing.T) {
	fence := domain.CircleFence(paris, 1000)
	assert.True(t, InFence(paris, fence))
	assert.False(t, InFence(london, fence))

	// boundary is inclusive: craft a fence whose radius equals the distance
	d := HaversineMeters(paris, london)
	assert.True(t, InFence(london, domain.CircleFence(paris, d)))

	// malformed circles evaluate to false, never panic
	assert.False(t, InFence(paris, domain.GeoFence{Kind: domain.FenceCircle, RadiusMeters: 100}))
	assert.False(t, InFence(paris, domain.GeoFence{Kind: domain.FenceCircle, Center: &london, RadiusMeters: 0}))
}

func TestInFence_CircleBoundarySlack(t *testing.T) {
	// 0.0009 degrees of longitude at the equator is about 100.08 m, a hair
	// past a 100 m radius; floating slack still counts it as inside.
	origin := domain.LatLng{}
	near := domain.LatLng{Lng: 0.0009}
	assert.True(t, InFence(near, domain.CircleFence(origin, 100)))
	assert.True(t, InsideAny(near, []domain.GeoFence{domain.CircleFence(origin, 100)}))
	assert.False(t, InFence(near, domain.CircleFence(origin, 90)))
}

func TestInFence_UnknownKind(t *testing.T) {
	assert.False(t, InFence(paris, domain.GeoFence{Kind: "hexagon"}))
}

func TestInsideAny(t *testing.T) {
	fences := []domain.GeoFence{
		domain.CircleFence(london, 100),
		domain.PolygonFence([]domain.LatLng{{Lat: 48, Lng: 2}, {Lat: 48, Lng: 3}, {Lat: 49, Lng: 3}, {Lat: 49, Lng: 2}}),
	}
	assert.True(t, InsideAny(paris, fences))
	assert.True(t, InsideAny(london, fences))
	assert.False(t, InsideAny(domain.LatLng{Lat: 0, Lng: 0}, fences))
	assert.False(t, InsideAny(paris, nil))
}

func TestEffectiveFences(t *testing.T) {
	ctx := context.Background()
	own := []domain.GeoFence{domain.CircleFence(paris, 50)}
	projectID := "proj-1"
	lookup := func(ctx context.Context, id string) ([]domain.GeoFence, error) {
		require.Equal(t, projectID, id)
		return []domain.GeoFence{domain.CircleFence(london, 50)}, nil
	}

	// task fences win outright, the project is never consulted
	fences, source := EffectiveFences(ctx, domain.Task{Fences: own, ProjectID: &projectID}, func(context.Context, string) ([]domain.GeoFence, error) {
		t.Fatal("lookup called despite task fences")
		return nil, nil
	})
	assert.Equal(t, domain.FenceSourceTask, source)
	assert.Equal(t, own, fences)

	// fallback to the project
	fences, source = EffectiveFences(ctx, domain.Task{ProjectID: &projectID}, lookup)
	assert.Equal(t, domain.FenceSourceProject, source)
	assert.Len(t, fences, 1)

	// lookup errors degrade to no fences
	fences, source = EffectiveFences(ctx, domain.Task{ProjectID: &projectID}, func(context.Context, string) ([]domain.GeoFence, error) {
		return nil, errors.New("db down")
	})
	assert.Equal(t, domain.FenceSourceNone, source)
	assert.Empty(t, fences)

	// no project, no fences
	_, source = EffectiveFences(ctx, domain.Task{}, lookup)
	assert.Equal(t, domain.FenceSourceNone, source)
}
