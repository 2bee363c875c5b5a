// Package transform maintains the parent/child ownership hierarchy and
// publishes the movement, parent and map change events other systems
// react to.
package transform

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
	"github.com/l1jgo/rendertree/internal/core/space"
)

var (
	ErrNoTransform = errors.New("entity has no transform")
	ErrCycle       = errors.New("parent is a descendant of the entity")
)

// Hierarchy owns every mutation of component.Transform.
// Accessed only from the frame loop goroutine — no locks.
type Hierarchy struct {
	world  *ecs.World
	stores *component.Stores
	bus    *event.Bus
}

func NewHierarchy(world *ecs.World, stores *component.Stores, bus *event.Bus) *Hierarchy {
	h := &Hierarchy{world: world, stores: stores, bus: bus}
	stores.Transforms.OnRemove(h.unlink)
	return h
}

// Get returns e's transform.
func (h *Hierarchy) Get(e ecs.EntityID) (*component.Transform, bool) {
	return h.stores.Transforms.Get(e)
}

// Ensure returns e's transform, creating a detached one in nullspace.
func (h *Hierarchy) Ensure(e ecs.EntityID) *component.Transform {
	if t, ok := h.stores.Transforms.Get(e); ok {
		return t
	}
	t := &component.Transform{}
	h.stores.Transforms.Set(e, t)
	return t
}

// MakeMapRoot turns e into the root of map m. Used by the map manager.
func (h *Hierarchy) MakeMapRoot(e ecs.EntityID, m space.MapID) *component.Transform {
	t := h.Ensure(e)
	t.MapRoot = true
	t.Parent = ecs.NoEntity
	t.MapID = m
	return t
}

// MapOf returns the map e currently lives on (Nullspace if unknown).
func (h *Hierarchy) MapOf(e ecs.EntityID) space.MapID {
	if t, ok := h.stores.Transforms.Get(e); ok {
		return t.MapID
	}
	return space.Nullspace
}

// Children returns e's direct children. The slice must not be modified.
func (h *Hierarchy) Children(e ecs.EntityID) []ecs.EntityID {
	if t, ok := h.stores.Transforms.Get(e); ok {
		return t.Children
	}
	return nil
}

// WorldPosition sums local positions up to the root.
func (h *Hierarchy) WorldPosition(e ecs.EntityID) mgl32.Vec2 {
	var pos mgl32.Vec2
	// The hierarchy is acyclic as long as SetParent is the only writer;
	// the bound keeps a corrupted one from hanging the frame.
	for steps := h.stores.Transforms.Len(); steps >= 0; steps-- {
		t, ok := h.stores.Transforms.Get(e)
		if !ok {
			break
		}
		pos = pos.Add(t.LocalPos)
		if t.Parent.IsZero() {
			break
		}
		e = t.Parent
	}
	return pos
}

// SetLocalPosition moves e relative to its parent and publishes
// EntityMoved when the position actually changed.
func (h *Hierarchy) SetLocalPosition(e ecs.EntityID, pos mgl32.Vec2) error {
	t, ok := h.stores.Transforms.Get(e)
	if !ok {
		return fmt.Errorf("move %d: %w", e, ErrNoTransform)
	}
	if t.LocalPos == pos {
		return nil
	}
	old := t.LocalPos
	t.LocalPos = pos
	event.Publish(h.bus, event.EntityMoved{Entity: e, OldPos: old, NewPos: pos})
	return nil
}

// SetParent attaches e under parent at localPos. The entity takes the
// parent's map; every entity in e's subtree whose map changes gets a
// MapChanged event. ParentChanged and EntityMoved are published for e.
func (h *Hierarchy) SetParent(e, parent ecs.EntityID, localPos mgl32.Vec2) error {
	pt, ok := h.stores.Transforms.Get(parent)
	if !ok {
		return fmt.Errorf("attach %d to %d: parent: %w", e, parent, ErrNoTransform)
	}
	if h.isAncestorOrSelf(e, parent) {
		return fmt.Errorf("attach %d to %d: %w", e, parent, ErrCycle)
	}
	t := h.Ensure(e)

	oldParent := t.Parent
	if oldParent != parent {
		h.removeChild(oldParent, e)
		pt.Children = append(pt.Children, e)
		t.Parent = parent
	}
	oldPos := t.LocalPos
	t.LocalPos = localPos

	changed := h.retagMap(e, pt.MapID)

	if oldParent != parent {
		event.Publish(h.bus, event.ParentChanged{Entity: e, OldParent: oldParent, NewParent: parent})
	}
	for _, ev := range changed {
		event.Publish(h.bus, ev)
	}
	event.Publish(h.bus, event.EntityMoved{Entity: e, OldPos: oldPos, NewPos: localPos})
	return nil
}

// Detach moves e (and its subtree) to nullspace.
func (h *Hierarchy) Detach(e ecs.EntityID) error {
	t, ok := h.stores.Transforms.Get(e)
	if !ok {
		return fmt.Errorf("detach %d: %w", e, ErrNoTransform)
	}
	oldParent := t.Parent
	h.removeChild(oldParent, e)
	t.Parent = ecs.NoEntity

	changed := h.retagMap(e, space.Nullspace)
	if !oldParent.IsZero() {
		event.Publish(h.bus, event.ParentChanged{Entity: e, OldParent: oldParent, NewParent: ecs.NoEntity})
	}
	for _, ev := range changed {
		event.Publish(h.bus, ev)
	}
	return nil
}

// Destroy destroys e and its whole subtree, children first.
func (h *Hierarchy) Destroy(e ecs.EntityID) {
	var order []ecs.EntityID
	h.Walk(e, func(id ecs.EntityID, _ *component.Transform) bool {
		order = append(order, id)
		return true
	})
	for i := len(order) - 1; i >= 0; i-- {
		h.world.DestroyEntity(order[i])
	}
	if len(order) == 0 {
		h.world.DestroyEntity(e)
	}
}

// Walk visits e and its descendants depth-first, parents before children.
// Returning false from fn skips that entity's children.
func (h *Hierarchy) Walk(e ecs.EntityID, fn func(ecs.EntityID, *component.Transform) bool) {
	stack := []ecs.EntityID{e}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t, ok := h.stores.Transforms.Get(id)
		if !ok {
			continue
		}
		if !fn(id, t) {
			continue
		}
		for i := len(t.Children) - 1; i >= 0; i-- {
			stack = append(stack, t.Children[i])
		}
	}
}

func (h *Hierarchy) retagMap(e ecs.EntityID, m space.MapID) []event.MapChanged {
	var changed []event.MapChanged
	h.Walk(e, func(id ecs.EntityID, t *component.Transform) bool {
		if t.MapID == m {
			return true
		}
		changed = append(changed, event.MapChanged{Entity: id, OldMap: t.MapID, NewMap: m})
		t.MapID = m
		return true
	})
	return changed
}

func (h *Hierarchy) isAncestorOrSelf(e, candidate ecs.EntityID) bool {
	for steps := h.stores.Transforms.Len(); steps >= 0 && !candidate.IsZero(); steps-- {
		if candidate == e {
			return true
		}
		t, ok := h.stores.Transforms.Get(candidate)
		if !ok {
			return false
		}
		candidate = t.Parent
	}
	return false
}

func (h *Hierarchy) removeChild(parent, child ecs.EntityID) {
	if parent.IsZero() {
		return
	}
	pt, ok := h.stores.Transforms.Get(parent)
	if !ok {
		return
	}
	for i, c := range pt.Children {
		if c == child {
			pt.Children = append(pt.Children[:i], pt.Children[i+1:]...)
			return
		}
	}
}

// unlink keeps the parent's child list consistent when a transform is
// removed outside of Destroy.
func (h *Hierarchy) unlink(e ecs.EntityID, t *component.Transform) {
	h.removeChild(t.Parent, e)
	for _, c := range t.Children {
		if ct, ok := h.stores.Transforms.Get(c); ok && ct.Parent == e {
			ct.Parent = ecs.NoEntity
		}
	}
}
