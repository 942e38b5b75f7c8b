// Package spots holds the static registry of surf locations.
package spots

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrSpotNotFound is returned when a lookup does not match any spot.
var ErrSpotNotFound = errors.New("spot not found")

// Obstruction describes the wind-shelter geometry of a spot.
type Obstruction int

const (
	// OpenBeach has no structure; shelter factor is always 0.
	OpenBeach Obstruction = iota
	// JettyLeft has a structure on the left side looking out to sea.
	JettyLeft
	// JettyRight has a structure on the right side looking out to sea.
	JettyRight
)

// PierValue is the constant `pier` feature column injected at enrichment.
func (o Obstruction) PierValue() float64 {
	switch o {
	case JettyLeft:
		return -1
	case JettyRight:
		return 1
	default:
		return 0
	}
}

// Spot is an immutable descriptor of a surf location. Built once at process
// start and never mutated.
type Spot struct {
	// Name is the unique, case-insensitive lookup key.
	Name string

	// Facing is the shoreline-normal bearing in degrees, [0, 360).
	Facing float64

	Lat  float64
	Long float64

	// DBName identifies the persisted history dataset. Spots close to the
	// same buoy share one.
	DBName string

	Obstruction Obstruction
}

// Registry is the read-only set of configured spots.
type Registry struct {
	spots []Spot
}

// NewRegistry builds a registry, normalizing facing directions into
// [0, 360) and rejecting duplicate names.
func NewRegistry(spots []Spot) (*Registry, error) {
	seen := make(map[string]struct{}, len(spots))
	out := make([]Spot, len(spots))

	for i, s := range spots {
		key := strings.ToLower(s.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate spot name %q", s.Name)
		}
		seen[key] = struct{}{}

		s.Facing = math.Mod(math.Mod(s.Facing, 360)+360, 360)
		out[i] = s
	}

	return &Registry{spots: out}, nil
}

// All returns every configured spot.
func (r *Registry) All() []Spot {
	return append([]Spot(nil), r.spots...)
}

// Find looks a spot up by name, case-insensitive. An exact match wins;
// otherwise the first spot whose name contains the query is returned.
func (r *Registry) Find(name string) (Spot, error) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return Spot{}, fmt.Errorf("%w: empty name", ErrSpotNotFound)
	}

	for _, s := range r.spots {
		if strings.ToLower(s.Name) == query {
			return s, nil
		}
	}
	for _, s := range r.spots {
		if strings.Contains(strings.ToLower(s.Name), query) {
			return s, nil
		}
	}

	return Spot{}, fmt.Errorf("%w: %s", ErrSpotNotFound, name)
}

// Defaults returns the production spot set for the Dutch coast.
func Defaults() []Spot {
	return []Spot{
		{Name: "ZV", Facing: 290, Lat: 52.474773, Long: 4.535204, DBName: "ZV", Obstruction: OpenBeach},
		{Name: "Ijmuiden", Facing: 290, Lat: 52.461637, Long: 4.555585, DBName: "ZV", Obstruction: JettyLeft},
		{Name: "Wijk", Facing: 295, Lat: 52.494340, Long: 4.589550, DBName: "ZV", Obstruction: JettyRight},
		{Name: "Schev", Facing: 310, Lat: 52.108410, Long: 4.267120, DBName: "Schev", Obstruction: JettyLeft},
		{Name: "Noordwijk", Facing: 300, Lat: 52.243333, Long: 4.421111, DBName: "Schev", Obstruction: OpenBeach},
		{Name: "Camperduin", Facing: 280, Lat: 52.730480, Long: 4.638900, DBName: "Camperduin", Obstruction: OpenBeach},
	}
}
