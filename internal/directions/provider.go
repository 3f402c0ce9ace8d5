package directions

import "context"

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceInfo is the result of a single distance lookup between two points.
// It is consumed once per quote calculation and never persisted on its own.
type DistanceInfo struct {
	Meters       int64  `json:"meters"`
	Seconds      int64  `json:"seconds"`
	DistanceText string `json:"distance_text"`
	DurationText string `json:"duration_text"`
}

const metersPerMile = 1609.344

// Miles converts the stored distance to statute miles.
func (d DistanceInfo) Miles() float64 {
	return float64(d.Meters) / metersPerMile
}

// Provider resolves driving distance and duration between two coordinates.
type Provider interface {
	Distance(ctx context.Context, origin, destination LatLng) (*DistanceInfo, error)
}
