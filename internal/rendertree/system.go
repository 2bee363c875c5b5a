// Package rendertree keeps per-map, per-grid bounding-volume trees of
// sprites and point lights in sync with the entities that own them.
//
// Change events only enqueue records. Once per frame, after transforms
// settle and before anything draws, System.Update drains the queues and
// reconciles every queued record against the grids its bounds touch.
package rendertree

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
	"github.com/l1jgo/rendertree/internal/core/space"
	coresys "github.com/l1jgo/rendertree/internal/core/system"
	"github.com/l1jgo/rendertree/internal/dyntree"
	"github.com/l1jgo/rendertree/internal/geom"
)

var ErrAlreadyInitialized = errors.New("render tree system already initialized")

// Hierarchy is the slice of the transform hierarchy the system reads.
type Hierarchy interface {
	Get(e ecs.EntityID) (*component.Transform, bool)
	MapOf(e ecs.EntityID) space.MapID
	WorldPosition(e ecs.EntityID) mgl32.Vec2
}

// GridLocator answers grid queries for a map.
type GridLocator interface {
	Maps() []space.MapID
	Grids(mapID space.MapID) []space.GridID
	FindGridIDsIntersecting(mapID space.MapID, box geom.Box, includeOffGrid bool) []space.GridID
	GridWorldOrigin(grid space.GridID) (mgl32.Vec2, error)
}

// Config tunes the system.
type Config struct {
	// Margin fattens tree leaves so small moves do not restructure a tree.
	Margin float32
	// IncludeOffGrid indexes records lying (partly) outside every grid in
	// the map's GridInvalid bucket.
	IncludeOffGrid bool
	// Capacity presizes each tree for this many records.
	Capacity int
}

func DefaultConfig() Config {
	return Config{Margin: dyntree.DefaultMargin, IncludeOffGrid: true, Capacity: 64}
}

// Stats counts the work done by the last Update.
type Stats struct {
	Frame           uint64
	SpritesUpdated  int
	LightsUpdated   int
	EntriesInserted int
	EntriesRemoved  int
	LookupFailures  int
}

// lane is one record kind (sprites or lights) with its queue.
type lane struct {
	kind  string
	queue []ecs.EntityID
	// lookup returns the record's membership and whether it wants indexing.
	lookup func(ecs.EntityID) (*component.TreeMembership, bool, bool)
	bounds func(ecs.EntityID, mgl32.Vec2) geom.Box
	tree   func(TreePair) *dyntree.Tree[ecs.EntityID]
}

// System synchronizes the render trees. It exclusively owns the registry
// and both queues. Accessed only from the frame loop goroutine — no locks.
type System struct {
	cfg      Config
	log      *zap.Logger
	bus      *event.Bus
	stores   *component.Stores
	hier     Hierarchy
	grids    GridLocator
	registry *Registry

	sprites lane
	lights  lane

	// processed dedupes movement propagation within one frame.
	processed map[ecs.EntityID]struct{}
	work      []ecs.EntityID
	stack     []ecs.EntityID

	subs  []*event.Subscription
	stats Stats
}

func NewSystem(cfg Config, stores *component.Stores, hier Hierarchy, grids GridLocator, bus *event.Bus, log *zap.Logger) *System {
	s := &System{
		cfg:       cfg,
		log:       log.Named("rendertree"),
		bus:       bus,
		stores:    stores,
		hier:      hier,
		grids:     grids,
		registry:  NewRegistry(stores, dyntree.WithMargin(cfg.Margin), dyntree.WithCapacity(cfg.Capacity)),
		processed: make(map[ecs.EntityID]struct{}, 64),
	}
	s.sprites = lane{
		kind: "sprite",
		lookup: func(id ecs.EntityID) (*component.TreeMembership, bool, bool) {
			sp, ok := stores.Sprites.Get(id)
			if !ok {
				return nil, false, false
			}
			return &sp.TreeMembership, sp.Indexable(), true
		},
		bounds: func(_ ecs.EntityID, pos mgl32.Vec2) geom.Box { return SpriteWorldBounds(pos) },
		tree:   func(p TreePair) *dyntree.Tree[ecs.EntityID] { return p.Sprites },
	}
	s.lights = lane{
		kind: "light",
		lookup: func(id ecs.EntityID) (*component.TreeMembership, bool, bool) {
			l, ok := stores.Lights.Get(id)
			if !ok {
				return nil, false, false
			}
			return &l.TreeMembership, l.Indexable(), true
		},
		bounds: func(id ecs.EntityID, pos mgl32.Vec2) geom.Box {
			l, _ := stores.Lights.Get(id)
			return LightWorldBounds(pos, l)
		},
		tree: func(p TreePair) *dyntree.Tree[ecs.EntityID] { return p.Lights },
	}
	return s
}

func (s *System) Phase() coresys.Phase { return coresys.PhasePostUpdate }

// Init subscribes to every change event and indexes the maps and grids
// that already exist, queueing every existing renderable.
func (s *System) Init() error {
	if s.subs != nil {
		return ErrAlreadyInitialized
	}
	s.subs = []*event.Subscription{
		event.Subscribe(s.bus, s.onMapCreated),
		event.Subscribe(s.bus, s.onMapDestroyed),
		event.Subscribe(s.bus, s.onGridCreated),
		event.Subscribe(s.bus, s.onGridRemoved),
		event.Subscribe(s.bus, s.onEntityMoved),
		event.Subscribe(s.bus, s.onMapChanged),
		event.Subscribe(s.bus, s.onParentChanged),
		event.Subscribe(s.bus, s.onSpriteRemoved),
		event.Subscribe(s.bus, s.onLightRemoved),
		event.Subscribe(s.bus, s.onSpriteVisibility),
		event.Subscribe(s.bus, s.onLightChanged),
		event.Subscribe(s.bus, s.onLightForceRemove),
	}

	for _, m := range s.grids.Maps() {
		s.registry.OnMapCreated(m)
		for _, g := range s.grids.Grids(m) {
			if err := s.registry.OnGridCreated(m, g); err != nil {
				return fmt.Errorf("index existing grids: %w", err)
			}
		}
	}
	s.QueueAll()
	s.log.Debug("initialized",
		zap.Int("maps", len(s.registry.Maps())),
		zap.Int("queued_sprites", len(s.sprites.queue)),
		zap.Int("queued_lights", len(s.lights.queue)))
	return nil
}

// Shutdown drops every subscription made by Init.
func (s *System) Shutdown() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

// Update runs the per-frame reconciliation.
func (s *System) Update(_ time.Duration) {
	s.stats = Stats{Frame: s.stats.Frame + 1}
	clear(s.processed)

	s.stats.SpritesUpdated = s.reconcile(&s.sprites)
	s.stats.LightsUpdated = s.reconcile(&s.lights)

	if s.stats.SpritesUpdated+s.stats.LightsUpdated > 0 {
		s.log.Debug("reconciled",
			zap.Uint64("frame", s.stats.Frame),
			zap.Int("sprites", s.stats.SpritesUpdated),
			zap.Int("lights", s.stats.LightsUpdated),
			zap.Int("inserted", s.stats.EntriesInserted),
			zap.Int("removed", s.stats.EntriesRemoved))
	}
}

// Stats returns the counters of the last Update.
func (s *System) Stats() Stats { return s.stats }

// Registry exposes the map tree registry (read-only use).
func (s *System) Registry() *Registry { return s.registry }

// SpriteTree returns the sprite tree of grid on mapID.
func (s *System) SpriteTree(mapID space.MapID, grid space.GridID) (*dyntree.Tree[ecs.EntityID], error) {
	p, err := s.registry.Get(mapID, grid)
	if err != nil {
		return nil, err
	}
	return p.Sprites, nil
}

// LightTree returns the light tree of grid on mapID.
func (s *System) LightTree(mapID space.MapID, grid space.GridID) (*dyntree.Tree[ecs.EntityID], error) {
	p, err := s.registry.Get(mapID, grid)
	if err != nil {
		return nil, err
	}
	return p.Lights, nil
}

// PendingSprites returns the number of sprites waiting for this frame.
func (s *System) PendingSprites() int { return len(s.sprites.queue) }

// PendingLights returns the number of lights waiting for this frame.
func (s *System) PendingLights() int { return len(s.lights.queue) }

// QueueSpriteUpdate schedules the sprite on e for reconciliation.
// Repeated calls within a frame are no-ops.
func (s *System) QueueSpriteUpdate(e ecs.EntityID) {
	if sp, ok := s.stores.Sprites.Get(e); ok {
		s.enqueue(&s.sprites, e, &sp.TreeMembership)
	}
}

// QueueLightUpdate schedules the light on e for reconciliation.
// Repeated calls within a frame are no-ops.
func (s *System) QueueLightUpdate(e ecs.EntityID) {
	if l, ok := s.stores.Lights.Get(e); ok {
		s.enqueue(&s.lights, e, &l.TreeMembership)
	}
}

// QueueAll schedules every sprite and light that has a transform.
func (s *System) QueueAll() {
	ecs.Each2(s.stores.Transforms, s.stores.Sprites, func(id ecs.EntityID, _ *component.Transform, sp *component.Sprite) {
		s.enqueue(&s.sprites, id, &sp.TreeMembership)
	})
	ecs.Each2(s.stores.Transforms, s.stores.Lights, func(id ecs.EntityID, _ *component.Transform, l *component.PointLight) {
		s.enqueue(&s.lights, id, &l.TreeMembership)
	})
}

func (s *System) enqueue(l *lane, e ecs.EntityID, m *component.TreeMembership) {
	if m.UpdateQueued {
		return
	}
	m.UpdateQueued = true
	l.queue = append(l.queue, e)
}

func (s *System) queueOwned(e ecs.EntityID) {
	s.QueueSpriteUpdate(e)
	s.QueueLightUpdate(e)
}
