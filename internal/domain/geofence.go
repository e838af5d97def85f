package domain

// FenceKind tags the GeoFence union.
type FenceKind string

const (
	FenceCircle  FenceKind = "circle"
	FencePolygon FenceKind = "polygon"
)

// LatLng is a WGS84 coordinate pair in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoFence is either a circle (Center + RadiusMeters) or a polygon (Ring,
// at least three vertices, implicitly closed). Fences arrive already
// normalized; parsing GeoJSON/KML is outside this service.
type GeoFence struct {
	Kind         FenceKind `json:"kind" enum:"circle,polygon"`
	Center       *LatLng   `json:"center,omitempty"`
	RadiusMeters float64   `json:"radius_meters,omitempty"`
	Ring         []LatLng  `json:"ring,omitempty"`
}

// CircleFence builds a circle fence.
func CircleFence(center LatLng, radiusMeters float64) GeoFence {
	return GeoFence{Kind: FenceCircle, Center: &center, RadiusMeters: radiusMeters}
}

// PolygonFence builds a polygon fence from a vertex ring.
func PolygonFence(ring []LatLng) GeoFence {
	return GeoFence{Kind: FencePolygon, Ring: ring}
}

// FenceSource names where a task's effective fences came from.
type FenceSource string

const (
	FenceSourceTask    FenceSource = "task"
	FenceSourceProject FenceSource = "project"
	FenceSourceNone    FenceSource = "none"
)
