package rendertree

import (
	"slices"

	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/space"
)

// reconcile drains l's queue, bringing each record's tree entries in line
// with its current map and bounds. Returns the number of records handled.
func (s *System) reconcile(l *lane) int {
	handled := 0
	for _, id := range l.queue {
		m, indexable, ok := l.lookup(id)
		if !ok {
			// Component went away after queueing; removal already cleaned up.
			continue
		}
		handled++
		m.UpdateQueued = false

		mapID := s.hier.MapOf(id)

		if !indexable {
			s.clearMembership(l, id, m)
			continue
		}
		if mapID != m.IntersectingMap {
			s.clearMembership(l, id, m)
		}
		m.IntersectingMap = mapID
		if mapID.IsNullspace() {
			continue
		}

		world := l.bounds(id, s.hier.WorldPosition(id))
		grids := s.grids.FindGridIDsIntersecting(mapID, world, s.cfg.IncludeOffGrid)

		for g := range m.IntersectingGrids {
			if !slices.Contains(grids, g) {
				s.removeEntry(l, mapID, g, id)
			}
		}
		m.ClearGrids()

		for _, g := range grids {
			pair, err := s.registry.Get(mapID, g)
			if err != nil {
				s.lookupFailed(l, id, err)
				continue
			}
			local := world
			if g.IsValid() {
				origin, err := s.grids.GridWorldOrigin(g)
				if err != nil {
					s.lookupFailed(l, id, err)
					continue
				}
				local = toGridLocal(world, origin)
			}
			if l.tree(pair).AddOrUpdate(id, local) {
				s.stats.EntriesInserted++
			}
			m.AddGrid(g)
		}
	}
	l.queue = l.queue[:0]
	return handled
}

// clearMembership removes the record from every grid tree it is in, under
// the map it was last indexed on.
func (s *System) clearMembership(l *lane, id ecs.EntityID, m *component.TreeMembership) {
	for g := range m.IntersectingGrids {
		s.removeEntry(l, m.IntersectingMap, g, id)
	}
	m.ClearGrids()
}

func (s *System) removeEntry(l *lane, mapID space.MapID, g space.GridID, id ecs.EntityID) {
	pair, err := s.registry.Get(mapID, g)
	if err != nil {
		s.lookupFailed(l, id, err)
		return
	}
	if l.tree(pair).Remove(id) {
		s.stats.EntriesRemoved++
	}
}

// lookupFailed records a registry miss. Lifecycle events always precede
// use, so this is a bug elsewhere; the record is left as-is rather than
// aborting the frame.
func (s *System) lookupFailed(l *lane, id ecs.EntityID, err error) {
	s.stats.LookupFailures++
	s.log.Error("render tree out of sync",
		zap.String("kind", l.kind),
		zap.Uint64("entity", uint64(id)),
		zap.Error(err))
}
