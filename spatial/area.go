// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"fmt"

	"github.com/uber/h3-go/v4"
)

// Area is the set of H3 cells within a number of grid rings of a center
// point. It is used to keep open-world search results inside the city.
type Area struct {
	Center     Point
	Resolution int
	Rings      int
	cells      map[h3.Cell]struct{}
}

// NewArea computes the cells covered by the area.
func NewArea(center Point, resolution, rings int) (*Area, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("invalid area center %s", center)
	}

	if rings < 0 {
		return nil, fmt.Errorf("invalid ring count %d", rings)
	}

	origin, err := h3.LatLngToCell(h3.NewLatLng(center.Lat, center.Lng), resolution)
	if err != nil {
		return nil, fmt.Errorf("error converting center to h3 cell at res %d: %w", resolution, err)
	}

	disk, err := h3.GridDisk(origin, rings)
	if err != nil {
		return nil, fmt.Errorf("computing grid disk of %d rings: %w", rings, err)
	}

	cells := make(map[h3.Cell]struct{}, len(disk))
	for _, cell := range disk {
		cells[cell] = struct{}{}
	}

	return &Area{
		Center:     center,
		Resolution: resolution,
		Rings:      rings,
		cells:      cells,
	}, nil
}

// Contains reports whether p falls in one of the area cells.
func (a *Area) Contains(p Point) bool {
	if !p.Valid() {
		return false
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), a.Resolution)
	if err != nil {
		return false
	}

	_, ok := a.cells[cell]

	return ok
}

// Size returns the number of cells in the area.
func (a *Area) Size() int {
	return len(a.cells)
}
