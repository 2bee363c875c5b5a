// Package space holds the identifiers shared by the map/grid manager and
// everything that indexes entities by map and grid.
package space

import "strconv"

// MapID names a map. Nullspace is the "no map" id: entities there are
// never spatially indexed.
type MapID uint32

const Nullspace MapID = 0

func (m MapID) IsNullspace() bool { return m == Nullspace }

func (m MapID) String() string {
	if m == Nullspace {
		return "nullspace"
	}
	return "map:" + strconv.FormatUint(uint64(m), 10)
}

// GridID names a grid. GridInvalid is the off-grid bucket every map has
// for world space not covered by any concrete grid.
type GridID uint32

const GridInvalid GridID = 0

func (g GridID) IsValid() bool { return g != GridInvalid }

func (g GridID) String() string {
	if g == GridInvalid {
		return "grid:invalid"
	}
	return "grid:" + strconv.FormatUint(uint64(g), 10)
}
