// Package mapgrid owns maps and the axis-aligned grids placed on them.
// It publishes the lifecycle events and answers the spatial queries the
// render tree needs.
package mapgrid

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
	"github.com/l1jgo/rendertree/internal/core/space"
	"github.com/l1jgo/rendertree/internal/geom"
	"github.com/l1jgo/rendertree/internal/transform"
)

var (
	ErrNullspace    = errors.New("nullspace cannot hold maps or grids")
	ErrMapExists    = errors.New("map already exists")
	ErrMapNotFound  = errors.New("map not found")
	ErrGridNotFound = errors.New("grid not found")
	ErrBadBounds    = errors.New("grid bounds are inverted")
)

// Grid is a rectangular area of a map with its own local frame.
type Grid struct {
	ID     space.GridID
	Map    space.MapID
	Entity ecs.EntityID
	Bounds geom.Box // local frame; world bounds = Bounds + origin
}

type mapEntry struct {
	id     space.MapID
	entity ecs.EntityID
	grids  []space.GridID // creation order
}

// Manager tracks maps and grids.
// Accessed only from the frame loop goroutine — no locks.
type Manager struct {
	world    *ecs.World
	hier     *transform.Hierarchy
	bus      *event.Bus
	log      *zap.Logger
	maps     map[space.MapID]*mapEntry
	grids    map[space.GridID]*Grid
	nextGrid space.GridID

	// scratch for the off-grid coverage test
	rest, spare []geom.Box
}

func NewManager(world *ecs.World, hier *transform.Hierarchy, bus *event.Bus, log *zap.Logger) *Manager {
	return &Manager{
		world: world,
		hier:  hier,
		bus:   bus,
		log:   log,
		maps:  make(map[space.MapID]*mapEntry),
		grids: make(map[space.GridID]*Grid),
	}
}

// CreateMap creates map id with its root entity and publishes MapCreated.
func (m *Manager) CreateMap(id space.MapID) (ecs.EntityID, error) {
	if id.IsNullspace() {
		return ecs.NoEntity, fmt.Errorf("create map: %w", ErrNullspace)
	}
	if _, ok := m.maps[id]; ok {
		return ecs.NoEntity, fmt.Errorf("create %s: %w", id, ErrMapExists)
	}
	e := m.world.CreateEntity()
	m.hier.MakeMapRoot(e, id)
	m.maps[id] = &mapEntry{id: id, entity: e}

	event.Publish(m.bus, event.MapCreated{Map: id})
	m.log.Debug("map created", zap.Stringer("map", id), zap.Uint64("entity", uint64(e)))
	return e, nil
}

// DeleteMap publishes MapDestroyed, then destroys every entity on the map.
func (m *Manager) DeleteMap(id space.MapID) error {
	me, ok := m.maps[id]
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrMapNotFound)
	}
	event.Publish(m.bus, event.MapDestroyed{Map: id})

	for _, g := range me.grids {
		delete(m.grids, g)
	}
	delete(m.maps, id)
	m.hier.Destroy(me.entity)
	m.log.Debug("map deleted", zap.Stringer("map", id), zap.Int("grids", len(me.grids)))
	return nil
}

// CreateGrid places a new grid on mapID at world origin with the given
// local bounds and publishes GridCreated.
func (m *Manager) CreateGrid(mapID space.MapID, origin mgl32.Vec2, bounds geom.Box) (space.GridID, error) {
	me, ok := m.maps[mapID]
	if !ok {
		return space.GridInvalid, fmt.Errorf("create grid on %s: %w", mapID, ErrMapNotFound)
	}
	if !bounds.Valid() {
		return space.GridInvalid, fmt.Errorf("create grid on %s: %w", mapID, ErrBadBounds)
	}
	m.nextGrid++
	id := m.nextGrid

	e := m.world.CreateEntity()
	m.hier.Ensure(e).GridRoot = true
	if err := m.hier.SetParent(e, me.entity, origin); err != nil {
		m.world.DestroyEntity(e)
		return space.GridInvalid, fmt.Errorf("create grid on %s: %w", mapID, err)
	}

	m.grids[id] = &Grid{ID: id, Map: mapID, Entity: e, Bounds: bounds}
	me.grids = append(me.grids, id)

	event.Publish(m.bus, event.GridCreated{Map: mapID, Grid: id})
	m.log.Debug("grid created",
		zap.Stringer("map", mapID),
		zap.Stringer("grid", id),
		zap.Stringer("bounds", bounds))
	return id, nil
}

// RemoveGrid publishes GridRemoved, then destroys the grid and every
// entity parented to it.
func (m *Manager) RemoveGrid(id space.GridID) error {
	g, ok := m.grids[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrGridNotFound)
	}
	event.Publish(m.bus, event.GridRemoved{Map: g.Map, Grid: id})

	if me, ok := m.maps[g.Map]; ok {
		for i, gid := range me.grids {
			if gid == id {
				me.grids = append(me.grids[:i], me.grids[i+1:]...)
				break
			}
		}
	}
	delete(m.grids, id)
	m.hier.Destroy(g.Entity)
	m.log.Debug("grid removed", zap.Stringer("map", g.Map), zap.Stringer("grid", id))
	return nil
}

// MoveGrid relocates the grid's world origin. Entities under the grid are
// not requeued: their grid entries are grid-local and stay valid, but an
// off-grid entry of a child poking out of the grid keeps its old
// world-frame box until that child is moved or otherwise requeued.
func (m *Manager) MoveGrid(id space.GridID, origin mgl32.Vec2) error {
	g, ok := m.grids[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrGridNotFound)
	}
	return m.hier.SetLocalPosition(g.Entity, origin)
}

func (m *Manager) HasMap(id space.MapID) bool {
	_, ok := m.maps[id]
	return ok
}

func (m *Manager) HasGrid(id space.GridID) bool {
	_, ok := m.grids[id]
	return ok
}

// Maps returns all map ids in ascending order.
func (m *Manager) Maps() []space.MapID {
	out := make([]space.MapID, 0, len(m.maps))
	for id := range m.maps {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Grids returns the grids of mapID in creation order.
func (m *Manager) Grids(mapID space.MapID) []space.GridID {
	me, ok := m.maps[mapID]
	if !ok {
		return nil
	}
	return append([]space.GridID(nil), me.grids...)
}

// Grid returns the grid record.
func (m *Manager) Grid(id space.GridID) (*Grid, bool) {
	g, ok := m.grids[id]
	return g, ok
}

// MapEntity returns the root entity of mapID.
func (m *Manager) MapEntity(mapID space.MapID) (ecs.EntityID, bool) {
	me, ok := m.maps[mapID]
	if !ok {
		return ecs.NoEntity, false
	}
	return me.entity, true
}

// GridEntity returns the root entity of grid id.
func (m *Manager) GridEntity(id space.GridID) (ecs.EntityID, bool) {
	g, ok := m.grids[id]
	if !ok {
		return ecs.NoEntity, false
	}
	return g.Entity, true
}

// GridAt returns the grid whose root entity is e.
func (m *Manager) GridAt(e ecs.EntityID) (space.GridID, bool) {
	me, ok := m.maps[m.hier.MapOf(e)]
	if !ok {
		return space.GridInvalid, false
	}
	for _, id := range me.grids {
		if m.grids[id].Entity == e {
			return id, true
		}
	}
	return space.GridInvalid, false
}

// GridWorldOrigin returns where the grid's local (0,0) sits in world space.
func (m *Manager) GridWorldOrigin(id space.GridID) (mgl32.Vec2, error) {
	g, ok := m.grids[id]
	if !ok {
		return mgl32.Vec2{}, fmt.Errorf("origin of %s: %w", id, ErrGridNotFound)
	}
	return m.hier.WorldPosition(g.Entity), nil
}

// GridWorldBounds returns the grid's bounds in world space.
func (m *Manager) GridWorldBounds(id space.GridID) (geom.Box, error) {
	g, ok := m.grids[id]
	if !ok {
		return geom.Box{}, fmt.Errorf("bounds of %s: %w", id, ErrGridNotFound)
	}
	return g.Bounds.Translate(m.hier.WorldPosition(g.Entity)), nil
}

// FindGridIDsIntersecting returns every grid on mapID whose world bounds
// touch box, in creation order. With includeOffGrid, GridInvalid is
// appended when the union of those grids does not cover box, i.e. part of
// it lies in off-grid space.
func (m *Manager) FindGridIDsIntersecting(mapID space.MapID, box geom.Box, includeOffGrid bool) []space.GridID {
	me, ok := m.maps[mapID]
	if !ok {
		return nil
	}
	var out []space.GridID
	rest := append(m.rest[:0], box)
	for _, id := range me.grids {
		g := m.grids[id]
		wb := g.Bounds.Translate(m.hier.WorldPosition(g.Entity))
		if !wb.Intersects(box) {
			continue
		}
		out = append(out, id)
		if includeOffGrid && len(rest) > 0 {
			next := m.spare[:0]
			for _, r := range rest {
				next = r.Subtract(next, wb)
			}
			rest, m.spare = next, rest
		}
	}
	m.rest = rest[:0]
	if includeOffGrid && len(rest) > 0 {
		out = append(out, space.GridInvalid)
	}
	return out
}
