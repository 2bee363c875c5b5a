package event

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/space"
)

// ── Entity / transform events ──────────────────────────────────────

// EntityMoved is published once per direct mover. Descendants that move
// along with it do not get their own event.
type EntityMoved struct {
	Entity ecs.EntityID
	OldPos mgl32.Vec2 // local position before the move
	NewPos mgl32.Vec2
}

// MapChanged is published for every entity whose map changed because it
// (or an ancestor) was re-attached under another map.
type MapChanged struct {
	Entity ecs.EntityID
	OldMap space.MapID
	NewMap space.MapID
}

// ParentChanged is published when an entity is attached to a new parent.
type ParentChanged struct {
	Entity    ecs.EntityID
	OldParent ecs.EntityID
	NewParent ecs.EntityID
}

// ComponentRemoved is published while a component of type T is being
// removed. Component is still readable during dispatch and must not be
// retained afterwards.
type ComponentRemoved[T any] struct {
	Entity    ecs.EntityID
	Component *T
}

// ── Renderable events ──────────────────────────────────────────────

// SpriteVisibilityChanged covers visibility and container occlusion.
type SpriteVisibilityChanged struct {
	Entity ecs.EntityID
}

// LightChanged covers enabled state, radius and container occlusion.
type LightChanged struct {
	Entity ecs.EntityID
}

// LightForceRemove pulls a light out of the trees right away, outside of
// component teardown.
type LightForceRemove struct {
	Entity ecs.EntityID
}

// ── Map / grid lifecycle ───────────────────────────────────────────

type MapCreated struct {
	Map space.MapID
}

type MapDestroyed struct {
	Map space.MapID
}

type GridCreated struct {
	Map  space.MapID
	Grid space.GridID
}

type GridRemoved struct {
	Map  space.MapID
	Grid space.GridID
}
