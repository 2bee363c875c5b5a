package component

import (
	"github.com/l1jgo/rendertree/internal/core/space"
)

// TreeMembership is the spatial-index bookkeeping shared by sprites and
// lights. After each frame's reconciliation IntersectingGrids lists exactly
// the grids whose tree holds this record.
type TreeMembership struct {
	IntersectingMap   space.MapID
	IntersectingGrids map[space.GridID]struct{}
	UpdateQueued      bool
}

// InGrid reports whether the record has a live entry in grid.
func (m *TreeMembership) InGrid(grid space.GridID) bool {
	_, ok := m.IntersectingGrids[grid]
	return ok
}

// Grids returns the intersecting grids in no particular order.
func (m *TreeMembership) Grids() []space.GridID {
	out := make([]space.GridID, 0, len(m.IntersectingGrids))
	for g := range m.IntersectingGrids {
		out = append(out, g)
	}
	return out
}

// AddGrid records a live entry in grid.
func (m *TreeMembership) AddGrid(grid space.GridID) {
	if m.IntersectingGrids == nil {
		m.IntersectingGrids = make(map[space.GridID]struct{}, 1)
	}
	m.IntersectingGrids[grid] = struct{}{}
}

// RemoveGrid forgets grid.
func (m *TreeMembership) RemoveGrid(grid space.GridID) { delete(m.IntersectingGrids, grid) }

// ClearGrids forgets every grid.
func (m *TreeMembership) ClearGrids() { clear(m.IntersectingGrids) }

// Sprite is a drawable quad. Only the indexing-relevant fields matter here;
// drawing happens elsewhere.
type Sprite struct {
	Visible           bool
	ContainerOccluded bool
	Layer             int
	Texture           string

	TreeMembership
}

// Indexable reports whether the sprite should live in any tree.
func (s *Sprite) Indexable() bool { return s.Visible && !s.ContainerOccluded }

// PointLight is a radial light. Its bounds depend on Radius.
type PointLight struct {
	Enabled           bool
	ContainerOccluded bool
	Radius            float32
	Energy            float32
	Color             [3]float32

	TreeMembership
}

// Indexable reports whether the light should live in any tree.
func (l *PointLight) Indexable() bool { return l.Enabled && !l.ContainerOccluded }
