package devserver

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/rider-client/internal/models"
)

const maxSuggestions = 5

type Place struct {
	Name     string          `yaml:"name"`
	PlaceID  string          `yaml:"place_id"`
	Location models.Location `yaml:"location"`
}

// Gazetteer is the small, fixed set of places the dev backend knows.
type Gazetteer struct {
	places []Place
	byID   map[string]Place
	byName map[string]Place
}

func NewGazetteer(places []Place) *Gazetteer {
	g := &Gazetteer{byID: make(map[string]Place), byName: make(map[string]Place)}
	for _, p := range places {
		g.places = append(g.places, p)
		g.byID[p.PlaceID] = p
		g.byName[strings.ToLower(p.Name)] = p
	}
	sort.Slice(g.places, func(i, j int) bool { return g.places[i].Name < g.places[j].Name })
	return g
}

// DefaultGazetteer is a handful of Bengaluru landmarks.
func DefaultGazetteer() *Gazetteer {
	return NewGazetteer([]Place{
		{Name: "MG Road Metro", PlaceID: "mg-road", Location: models.Location{Lat: 12.9755, Lng: 77.6069}},
		{Name: "Majestic Bus Station", PlaceID: "majestic", Location: models.Location{Lat: 12.9767, Lng: 77.5713}},
		{Name: "Indiranagar 100ft Road", PlaceID: "indiranagar", Location: models.Location{Lat: 12.9719, Lng: 77.6412}},
		{Name: "Koramangala Forum Mall", PlaceID: "koramangala", Location: models.Location{Lat: 12.9346, Lng: 77.6114}},
		{Name: "Kempegowda Airport", PlaceID: "airport", Location: models.Location{Lat: 13.1986, Lng: 77.7066}},
		{Name: "Electronic City Phase 1", PlaceID: "ecity", Location: models.Location{Lat: 12.8452, Lng: 77.6602}},
		{Name: "Whitefield ITPL", PlaceID: "whitefield", Location: models.Location{Lat: 12.9857, Lng: 77.7366}},
		{Name: "Cubbon Park", PlaceID: "cubbon-park", Location: models.Location{Lat: 12.9763, Lng: 77.5929}},
	})
}

// LoadGazetteer reads a YAML list of places.
func LoadGazetteer(path string) (*Gazetteer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var places []Place
	if err := yaml.Unmarshal(b, &places); err != nil {
		return nil, fmt.Errorf("parse gazetteer %s: %w", path, err)
	}
	return NewGazetteer(places), nil
}

// Search returns places whose name contains input, ignoring case.
func (g *Gazetteer) Search(input string) []models.Suggestion {
	q := strings.ToLower(strings.TrimSpace(input))
	out := []models.Suggestion{}
	for _, p := range g.places {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, models.Suggestion{Description: p.Name, PlaceID: p.PlaceID, Location: p.Location})
			if len(out) == maxSuggestions {
				break
			}
		}
	}
	return out
}

func (g *Gazetteer) Lookup(placeID string) (Place, bool) {
	p, ok := g.byID[placeID]
	return p, ok
}

// ByName resolves the free-text pickup/destination carried by rides.
func (g *Gazetteer) ByName(name string) (Place, bool) {
	p, ok := g.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}
