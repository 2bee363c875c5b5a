package rendertree

import (
	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
)

// ── Map / grid lifecycle (applied immediately) ─────────────────────

func (s *System) onMapCreated(ev event.MapCreated) {
	s.registry.OnMapCreated(ev.Map)
}

func (s *System) onMapDestroyed(ev event.MapDestroyed) {
	s.registry.OnMapDestroyed(ev.Map)
}

func (s *System) onGridCreated(ev event.GridCreated) {
	if err := s.registry.OnGridCreated(ev.Map, ev.Grid); err != nil {
		s.log.Error("grid created before its map", zap.Error(err))
	}
}

func (s *System) onGridRemoved(ev event.GridRemoved) {
	s.registry.OnGridRemoved(ev.Map, ev.Grid)
}

// ── Invalidation ───────────────────────────────────────────────────

// onEntityMoved queues the mover and every descendant: children move with
// their parent without emitting their own events.
func (s *System) onEntityMoved(ev event.EntityMoved) {
	s.work = s.collectSubtree(ev.Entity, s.work[:0])
	for _, id := range s.work {
		s.queueOwned(id)
	}
}

// collectSubtree appends root and its descendants to out, skipping
// map/grid roots and anything already processed this frame.
func (s *System) collectSubtree(root ecs.EntityID, out []ecs.EntityID) []ecs.EntityID {
	stack := append(s.stack[:0], root)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, done := s.processed[id]; done {
			continue
		}
		t, ok := s.hier.Get(id)
		if !ok || t.IsRoot() {
			continue
		}
		s.processed[id] = struct{}{}
		out = append(out, id)
		stack = append(stack, t.Children...)
	}
	s.stack = stack[:0]
	return out
}

func (s *System) onMapChanged(ev event.MapChanged) {
	s.queueOwned(ev.Entity)
}

func (s *System) onParentChanged(ev event.ParentChanged) {
	s.queueOwned(ev.Entity)
}

func (s *System) onSpriteVisibility(ev event.SpriteVisibilityChanged) {
	s.QueueSpriteUpdate(ev.Entity)
}

func (s *System) onLightChanged(ev event.LightChanged) {
	s.QueueLightUpdate(ev.Entity)
}

// ── Immediate removal ──────────────────────────────────────────────

// A removed component cannot be positioned by the time the queue drains,
// so its entries go now.
func (s *System) onSpriteRemoved(ev event.ComponentRemoved[component.Sprite]) {
	s.forget(&s.sprites, ev.Entity, &ev.Component.TreeMembership)
}

func (s *System) onLightRemoved(ev event.ComponentRemoved[component.PointLight]) {
	s.forget(&s.lights, ev.Entity, &ev.Component.TreeMembership)
}

func (s *System) onLightForceRemove(ev event.LightForceRemove) {
	if l, ok := s.stores.Lights.Get(ev.Entity); ok {
		s.clearMembership(&s.lights, ev.Entity, &l.TreeMembership)
	}
}

// forget drops a record that is going away: tree entries and any pending
// queue slot.
func (s *System) forget(l *lane, e ecs.EntityID, m *component.TreeMembership) {
	s.clearMembership(l, e, m)
	if !m.UpdateQueued {
		return
	}
	m.UpdateQueued = false
	for i, id := range l.queue {
		if id == e {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}
}
