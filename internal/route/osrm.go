package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/rider-client/internal/models"
)

// OSRMFetcher performs route lookups against an OSRM HTTP server.
type OSRMFetcher struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMFetcher(endpoint string) *OSRMFetcher {
	return &OSRMFetcher{Endpoint: strings.TrimRight(endpoint, "/"), Client: &http.Client{Timeout: 5 * time.Second}}
}

// Route queries OSRM /route with full GeoJSON geometry.
func (o *OSRMFetcher) Route(ctx context.Context, from, to models.Location) ([]models.Location, error) {
	// OSRM expects lon,lat pairs.
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson", o.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Geometry struct {
				Coordinates [][2]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("osrm no route: %v", out.Code)
	}
	coords := out.Routes[0].Geometry.Coordinates
	wps := make([]models.Location, 0, len(coords))
	for _, c := range coords {
		wps = append(wps, models.Location{Lat: c[1], Lng: c[0]})
	}
	return wps, nil
}
