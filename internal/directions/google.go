package directions

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/resilience"
)

// GoogleProvider resolves distances through the Google Maps Distance Matrix
// API. All calls go through a circuit breaker so a Maps outage degrades into
// fast upstream errors instead of piling up blocked quote requests.
type GoogleProvider struct {
	client  *maps.Client
	breaker *resilience.CircuitBreaker
}

// NewGoogleProvider creates a provider with the given API key.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("directions: create maps client: %w", err)
	}

	breaker := resilience.NewCircuitBreaker(
		resilience.DefaultSettings("google_maps"),
		resilience.GracefulDegradation("google_maps"),
	)

	return &GoogleProvider{client: client, breaker: breaker}, nil
}

// Distance implements Provider.
func (p *GoogleProvider) Distance(ctx context.Context, origin, destination LatLng) (*DistanceInfo, error) {
	result, err := p.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return p.lookup(ctx, origin, destination)
	})
	if err != nil {
		return nil, common.NewUpstreamError("distance lookup failed", err)
	}
	return result.(*DistanceInfo), nil
}

func (p *GoogleProvider) lookup(ctx context.Context, origin, destination LatLng) (*DistanceInfo, error) {
	resp, err := p.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{fmt.Sprintf("%f,%f", origin.Latitude, origin.Longitude)},
		Destinations: []string{fmt.Sprintf("%f,%f", destination.Latitude, destination.Longitude)},
		Mode:         maps.TravelModeDriving,
	})
	if err != nil {
		return nil, fmt.Errorf("distance matrix: %w", err)
	}

	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return nil, fmt.Errorf("no route between origin and destination")
	}

	element := resp.Rows[0].Elements[0]
	if element.Status != "OK" {
		return nil, fmt.Errorf("route lookup status %s", element.Status)
	}

	return &DistanceInfo{
		Meters:       int64(element.Distance.Meters),
		Seconds:      int64(element.Duration.Seconds()),
		DistanceText: element.Distance.HumanReadable,
		DurationText: element.Duration.String(),
	}, nil
}
