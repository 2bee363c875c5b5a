package rendertree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/space"
	"github.com/l1jgo/rendertree/internal/dyntree"
	"github.com/l1jgo/rendertree/internal/geom"
)

// ErrLookup is returned when a map or grid is not indexed. Reaching it
// from a lifecycle-consistent caller means an invariant broke elsewhere.
var ErrLookup = errors.New("render tree lookup failed")

// TreePair holds the two trees of one grid. Boxes are in the grid's local
// frame (world frame for the off-grid bucket).
type TreePair struct {
	Sprites *dyntree.Tree[ecs.EntityID]
	Lights  *dyntree.Tree[ecs.EntityID]
}

// Clear empties both trees.
func (p TreePair) Clear() {
	p.Sprites.Clear()
	p.Lights.Clear()
}

// Registry maps map → grid → tree pair. Pairs live in an arena slice and
// are recycled through a free list, so removing and re-adding grids does
// not reallocate trees.
type Registry struct {
	pairs  []TreePair
	free   []int32
	maps   map[space.MapID]map[space.GridID]int32
	opts   []dyntree.Option
	sprite *ecs.PtrComponentStore[component.Sprite]
	light  *ecs.PtrComponentStore[component.PointLight]
}

func NewRegistry(stores *component.Stores, opts ...dyntree.Option) *Registry {
	return &Registry{
		maps:   make(map[space.MapID]map[space.GridID]int32),
		opts:   opts,
		sprite: stores.Sprites,
		light:  stores.Lights,
	}
}

// Get returns the tree pair of grid on mapID.
func (r *Registry) Get(mapID space.MapID, grid space.GridID) (TreePair, error) {
	grids, ok := r.maps[mapID]
	if !ok {
		return TreePair{}, fmt.Errorf("%w: %s not indexed", ErrLookup, mapID)
	}
	slot, ok := grids[grid]
	if !ok {
		return TreePair{}, fmt.Errorf("%w: %s on %s not indexed", ErrLookup, grid, mapID)
	}
	return r.pairs[slot], nil
}

// HasMap reports whether mapID is indexed.
func (r *Registry) HasMap(mapID space.MapID) bool {
	_, ok := r.maps[mapID]
	return ok
}

// Maps returns indexed maps in ascending order.
func (r *Registry) Maps() []space.MapID {
	out := make([]space.MapID, 0, len(r.maps))
	for m := range r.maps {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Grids returns the indexed grids of mapID in ascending order, including
// GridInvalid.
func (r *Registry) Grids(mapID space.MapID) []space.GridID {
	grids := r.maps[mapID]
	out := make([]space.GridID, 0, len(grids))
	for g := range grids {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnMapCreated indexes mapID with its off-grid pair. No-op for nullspace
// and for maps already indexed.
func (r *Registry) OnMapCreated(mapID space.MapID) {
	if mapID.IsNullspace() {
		return
	}
	if _, ok := r.maps[mapID]; ok {
		return
	}
	r.maps[mapID] = map[space.GridID]int32{space.GridInvalid: r.allocate()}
}

// OnGridCreated indexes grid on mapID.
func (r *Registry) OnGridCreated(mapID space.MapID, grid space.GridID) error {
	grids, ok := r.maps[mapID]
	if !ok {
		return fmt.Errorf("%w: grid %s created on unindexed %s", ErrLookup, grid, mapID)
	}
	if _, ok := grids[grid]; ok {
		return nil
	}
	grids[grid] = r.allocate()
	return nil
}

// OnGridRemoved strips grid from every record held in its trees, clears
// the trees and drops the entry. Reports whether the grid was indexed.
func (r *Registry) OnGridRemoved(mapID space.MapID, grid space.GridID) bool {
	grids, ok := r.maps[mapID]
	if !ok {
		return false
	}
	slot, ok := grids[grid]
	if !ok {
		return false
	}
	r.strip(r.pairs[slot], func(m *component.TreeMembership) { m.RemoveGrid(grid) })
	r.release(slot)
	delete(grids, grid)
	return true
}

// OnMapDestroyed clears the membership of every record indexed on mapID,
// clears all its trees and drops the map. Reports whether it was indexed.
func (r *Registry) OnMapDestroyed(mapID space.MapID) bool {
	grids, ok := r.maps[mapID]
	if !ok {
		return false
	}
	for _, slot := range grids {
		r.strip(r.pairs[slot], func(m *component.TreeMembership) { m.ClearGrids() })
		r.release(slot)
	}
	delete(r.maps, mapID)
	return true
}

func (r *Registry) strip(p TreePair, fn func(*component.TreeMembership)) {
	p.Sprites.Each(func(id ecs.EntityID, _ geom.Box) bool {
		if s, ok := r.sprite.Get(id); ok {
			fn(&s.TreeMembership)
		}
		return true
	})
	p.Lights.Each(func(id ecs.EntityID, _ geom.Box) bool {
		if l, ok := r.light.Get(id); ok {
			fn(&l.TreeMembership)
		}
		return true
	})
}

func (r *Registry) allocate() int32 {
	if n := len(r.free); n > 0 {
		slot := r.free[n-1]
		r.free = r.free[:n-1]
		return slot
	}
	r.pairs = append(r.pairs, TreePair{
		Sprites: dyntree.New[ecs.EntityID](r.opts...),
		Lights:  dyntree.New[ecs.EntityID](r.opts...),
	})
	return int32(len(r.pairs) - 1)
}

func (r *Registry) release(slot int32) {
	r.pairs[slot].Clear()
	r.free = append(r.free, slot)
}
