// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package gazetteer holds the closed list of known places of the city, each
// carrying its name variants and coordinates. A Gazetteer is immutable once
// built and safe for concurrent use.
package gazetteer

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/jcodagnone/nemchi/spatial"
)

// ExternalPlaceID identifies places that do not belong to the gazetteer,
// such as the ones synthesized from an open-world geocoding search.
const ExternalPlaceID = -1

var (
	ErrPlaceNotFound    = errors.New("place not found")
	ErrMultipleMatches  = errors.New("multiple matches")
	errInvalidGazetteer = errors.New("invalid gazetteer")
)

//go:embed data/nouakchott.json
var embeddedData []byte

// Place is a named location of the city.
type Place struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`     // Canonical display name
	Variants []string `json:"variants"` // Alternate spellings, may mix scripts
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
}

// Point returns the coordinates of the place.
func (p Place) Point() spatial.Point {
	return spatial.Point{Lat: p.Lat, Lng: p.Lng}
}

// IsExternal reports whether the place is outside the gazetteer.
func (p Place) IsExternal() bool {
	return p.ID == ExternalPlaceID
}

func (p Place) clone() Place {
	p.Variants = slices.Clone(p.Variants)

	return p
}

// Validate checks that the place has all required fields.
func (p *Place) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("place %q: id must be positive, got %d", p.Name, p.ID)
	}

	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("place %d: name must not be empty", p.ID)
	}

	if !slices.ContainsFunc(p.Variants, func(v string) bool { return strings.TrimSpace(v) != "" }) {
		return fmt.Errorf("place %q: at least one variant is required", p.Name)
	}

	if !p.Point().Valid() {
		return fmt.Errorf("place %q: invalid coordinates %s", p.Name, p.Point())
	}

	return nil
}

// Gazetteer is the ordered, read-only sequence of known places.
type Gazetteer struct {
	city   string
	anchor spatial.Point
	places []Place
	byID   map[int]int
}

type document struct {
	City   string        `json:"city"`
	Anchor spatial.Point `json:"anchor"`
	Places []Place       `json:"places"`
}

// New builds a gazetteer from the given places. The slice is copied.
func New(city string, anchor spatial.Point, places []Place) (*Gazetteer, error) {
	if !anchor.Valid() {
		return nil, fmt.Errorf("%w: anchor %s out of range", errInvalidGazetteer, anchor)
	}

	g := &Gazetteer{
		city:   city,
		anchor: anchor,
		places: make([]Place, 0, len(places)),
		byID:   make(map[int]int, len(places)),
	}

	for i := range places {
		if err := places[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidGazetteer, err)
		}

		if _, dup := g.byID[places[i].ID]; dup {
			return nil, fmt.Errorf("%w: duplicated id %d", errInvalidGazetteer, places[i].ID)
		}

		g.byID[places[i].ID] = len(g.places)
		g.places = append(g.places, places[i].clone())
	}

	return g, nil
}

// Parse decodes a JSON gazetteer document.
func Parse(data []byte) (*Gazetteer, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing gazetteer JSON: %w", err)
	}

	return New(doc.City, doc.Anchor, doc.Places)
}

// Load reads a gazetteer from a JSON file.
func Load(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by admin
	if err != nil {
		return nil, fmt.Errorf("reading gazetteer file: %w", err)
	}

	return Parse(data)
}

var defaultGazetteer = sync.OnceValue(func() *Gazetteer {
	g, err := Parse(embeddedData)
	if err != nil {
		panic(fmt.Sprintf("embedded gazetteer: %v", err))
	}

	return g
})

// Default returns the embedded Nouakchott gazetteer.
func Default() *Gazetteer {
	return defaultGazetteer()
}

// City returns the name of the city the gazetteer covers.
func (g *Gazetteer) City() string {
	return g.city
}

// Anchor returns the reference point of the city.
func (g *Gazetteer) Anchor() spatial.Point {
	return g.anchor
}

// Len returns the number of places.
func (g *Gazetteer) Len() int {
	if g == nil {
		return 0
	}

	return len(g.places)
}

// Places returns a copy of all places, in gazetteer order.
func (g *Gazetteer) Places() []Place {
	ret := make([]Place, len(g.places))
	for i := range g.places {
		ret[i] = g.places[i].clone()
	}

	return ret
}

// Get returns the place with the given id.
func (g *Gazetteer) Get(id int) (Place, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Place{}, false
	}

	return g.places[i].clone(), true
}

// Each applies the given callback function to each place.
// It stops iteration and returns the error if the callback returns an error.
func (g *Gazetteer) Each(callback func(Place) error) error {
	for i := range g.places {
		if err := callback(g.places[i].clone()); err != nil {
			return err
		}
	}

	return nil
}

// Find locates a place by its ID or name.
// If q represents a number, it searches by ID; otherwise, it searches by a
// case insensitive prefix of the canonical name.
func (g *Gazetteer) Find(q string) (Place, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return Place{}, errors.New("empty search query")
	}

	if n, err := strconv.Atoi(q); err == nil {
		if p, ok := g.Get(n); ok {
			return p, nil
		}

		return Place{}, fmt.Errorf("%w: %q", ErrPlaceNotFound, q)
	}

	found := -1

	for i := range g.places {
		name := g.places[i].Name
		if len(name) >= len(q) && strings.EqualFold(name[:len(q)], q) {
			if found >= 0 {
				return Place{}, fmt.Errorf("%w for %q: %q, %q", ErrMultipleMatches, q, g.places[found].Name, name)
			}

			found = i
		}
	}

	if found < 0 {
		return Place{}, fmt.Errorf("%w: %q", ErrPlaceNotFound, q)
	}

	return g.places[found].clone(), nil
}

// Nearest returns the place closest to p and its distance in meters.
func (g *Gazetteer) Nearest(p spatial.Point) (Place, float64, bool) {
	best, bestDistance := -1, 0.0

	for i := range g.places {
		d := g.places[i].Point().HaversineDistance(p)
		if best < 0 || d < bestDistance {
			best, bestDistance = i, d
		}
	}

	if best < 0 {
		return Place{}, 0, false
	}

	return g.places[best].clone(), bestDistance, true
}
