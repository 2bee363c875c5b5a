// Package scene assembles the entity world, component stores, event bus,
// transform hierarchy and map manager into one container, and wires the
// store hooks that turn component removal into events.
package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
	"github.com/l1jgo/rendertree/internal/mapgrid"
	"github.com/l1jgo/rendertree/internal/transform"
)

var (
	ErrNameTaken     = errors.New("entity name already in use")
	ErrUnknownEntity = errors.New("unknown entity")
)

// Scene is the in-memory world, owned by the frame loop goroutine.
type Scene struct {
	World     *ecs.World
	Stores    *component.Stores
	Bus       *event.Bus
	Hierarchy *transform.Hierarchy
	Maps      *mapgrid.Manager

	log   *zap.Logger
	names map[string]ecs.EntityID
	ids   map[ecs.EntityID]string
}

func New(log *zap.Logger) *Scene {
	w := ecs.NewWorld()
	stores := component.NewStores(w)
	bus := event.NewBus()
	hier := transform.NewHierarchy(w, stores, bus)

	s := &Scene{
		World:     w,
		Stores:    stores,
		Bus:       bus,
		Hierarchy: hier,
		Maps:      mapgrid.NewManager(w, hier, bus, log.Named("mapgrid")),
		log:       log,
		names:     make(map[string]ecs.EntityID),
		ids:       make(map[ecs.EntityID]string),
	}

	stores.Sprites.OnRemove(func(id ecs.EntityID, c *component.Sprite) {
		event.Publish(bus, event.ComponentRemoved[component.Sprite]{Entity: id, Component: c})
	})
	stores.Lights.OnRemove(func(id ecs.EntityID, c *component.PointLight) {
		event.Publish(bus, event.ComponentRemoved[component.PointLight]{Entity: id, Component: c})
	})
	stores.Transforms.OnRemove(func(id ecs.EntityID, _ *component.Transform) {
		if name, ok := s.ids[id]; ok {
			delete(s.ids, id)
			delete(s.names, name)
		}
	})
	return s
}

// Spawn creates an entity under parent at the local position. An empty
// name leaves the entity anonymous.
func (s *Scene) Spawn(name string, parent ecs.EntityID, pos mgl32.Vec2) (ecs.EntityID, error) {
	if name != "" {
		if _, ok := s.names[name]; ok {
			return ecs.NoEntity, fmt.Errorf("spawn %q: %w", name, ErrNameTaken)
		}
	}
	e := s.World.CreateEntity()
	if err := s.Hierarchy.SetParent(e, parent, pos); err != nil {
		s.World.DestroyEntity(e)
		return ecs.NoEntity, fmt.Errorf("spawn %q: %w", name, err)
	}
	if name != "" {
		s.Name(e, name)
	}
	return e, nil
}

// Name binds name to e, replacing any previous name of e.
func (s *Scene) Name(e ecs.EntityID, name string) {
	if old, ok := s.ids[e]; ok {
		delete(s.names, old)
	}
	s.names[name] = e
	s.ids[e] = name
}

// Lookup resolves a name.
func (s *Scene) Lookup(name string) (ecs.EntityID, error) {
	e, ok := s.names[name]
	if !ok {
		return ecs.NoEntity, fmt.Errorf("%q: %w", name, ErrUnknownEntity)
	}
	return e, nil
}

// NameOf returns e's name, if any.
func (s *Scene) NameOf(e ecs.EntityID) string { return s.ids[e] }

// AddSprite attaches a sprite to e and asks for it to be indexed. A sprite
// already on e is removed first, so its tree entries go with it.
func (s *Scene) AddSprite(e ecs.EntityID, sp *component.Sprite) {
	s.Stores.Sprites.Remove(e)
	s.Stores.Sprites.Set(e, sp)
	event.Publish(s.Bus, event.SpriteVisibilityChanged{Entity: e})
}

// AddLight attaches a light to e and asks for it to be indexed, replacing
// any light already on e.
func (s *Scene) AddLight(e ecs.EntityID, l *component.PointLight) {
	s.Stores.Lights.Remove(e)
	s.Stores.Lights.Set(e, l)
	event.Publish(s.Bus, event.LightChanged{Entity: e})
}

// RemoveSprite detaches e's sprite. Reports whether it had one.
func (s *Scene) RemoveSprite(e ecs.EntityID) bool { return s.Stores.Sprites.Remove(e) }

// RemoveLight detaches e's light. Reports whether it had one.
func (s *Scene) RemoveLight(e ecs.EntityID) bool { return s.Stores.Lights.Remove(e) }

// Counts returns live entity, sprite and light totals.
func (s *Scene) Counts() (entities, sprites, lights int) {
	return s.World.Pool().Count(), s.Stores.Sprites.Len(), s.Stores.Lights.Len()
}
