package rendertree

import (
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
	"github.com/l1jgo/rendertree/internal/core/space"
	"github.com/l1jgo/rendertree/internal/geom"
	"github.com/l1jgo/rendertree/internal/scene"
)

type harness struct {
	t   *testing.T
	sc  *scene.Scene
	sys *System
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sc := scene.New(zap.NewNop())
	sys := NewSystem(DefaultConfig(), sc.Stores, sc.Hierarchy, sc.Maps, sc.Bus, zap.NewNop())
	require.NoError(t, sys.Init())
	t.Cleanup(sys.Shutdown)
	return &harness{t: t, sc: sc, sys: sys}
}

func (h *harness) mapRoot(id space.MapID) ecs.EntityID {
	h.t.Helper()
	e, err := h.sc.Maps.CreateMap(id)
	require.NoError(h.t, err)
	return e
}

func (h *harness) grid(m space.MapID, origin mgl32.Vec2, w, ht float32) space.GridID {
	h.t.Helper()
	g, err := h.sc.Maps.CreateGrid(m, origin, geom.NewBox(0, 0, w, ht))
	require.NoError(h.t, err)
	return g
}

func (h *harness) entity(parent ecs.EntityID, pos mgl32.Vec2) ecs.EntityID {
	h.t.Helper()
	e, err := h.sc.Spawn("", parent, pos)
	require.NoError(h.t, err)
	return e
}

func (h *harness) sprite(parent ecs.EntityID, pos mgl32.Vec2) (ecs.EntityID, *component.Sprite) {
	e := h.entity(parent, pos)
	sp := &component.Sprite{Visible: true}
	h.sc.AddSprite(e, sp)
	return e, sp
}

func (h *harness) light(parent ecs.EntityID, pos mgl32.Vec2, radius float32) (ecs.EntityID, *component.PointLight) {
	e := h.entity(parent, pos)
	l := &component.PointLight{Enabled: true, Radius: radius}
	h.sc.AddLight(e, l)
	return e, l
}

func (h *harness) move(e ecs.EntityID, pos mgl32.Vec2) {
	require.NoError(h.t, h.sc.Hierarchy.SetLocalPosition(e, pos))
}

func (h *harness) frame() {
	h.sys.Update(16 * time.Millisecond)
	h.assertConsistent()
}

func (h *harness) spriteBox(m space.MapID, g space.GridID, e ecs.EntityID) (geom.Box, bool) {
	tr, err := h.sys.SpriteTree(m, g)
	require.NoError(h.t, err)
	return tr.Get(e)
}

func (h *harness) lightBox(m space.MapID, g space.GridID, e ecs.EntityID) (geom.Box, bool) {
	tr, err := h.sys.LightTree(m, g)
	require.NoError(h.t, err)
	return tr.Get(e)
}

// assertConsistent checks that every record's IntersectingGrids is exactly
// the set of grid trees holding it.
func (h *harness) assertConsistent() {
	h.t.Helper()
	spritesIn := map[ecs.EntityID]map[space.GridID]struct{}{}
	lightsIn := map[ecs.EntityID]map[space.GridID]struct{}{}
	collect := func(into map[ecs.EntityID]map[space.GridID]struct{}, g space.GridID) func(ecs.EntityID, geom.Box) bool {
		return func(id ecs.EntityID, _ geom.Box) bool {
			if into[id] == nil {
				into[id] = map[space.GridID]struct{}{}
			}
			_, dup := into[id][g]
			assert.False(h.t, dup)
			into[id][g] = struct{}{}
			return true
		}
	}
	for _, m := range h.sys.Registry().Maps() {
		for _, g := range h.sys.Registry().Grids(m) {
			pair, err := h.sys.Registry().Get(m, g)
			require.NoError(h.t, err)
			pair.Sprites.Each(collect(spritesIn, g))
			pair.Lights.Each(collect(lightsIn, g))
		}
	}
	norm := func(s map[space.GridID]struct{}) map[space.GridID]struct{} {
		if len(s) == 0 {
			return map[space.GridID]struct{}{}
		}
		return s
	}
	h.sc.Stores.Sprites.Each(func(id ecs.EntityID, sp *component.Sprite) {
		assert.Equal(h.t, norm(spritesIn[id]), norm(sp.IntersectingGrids), "sprite %d", id)
		delete(spritesIn, id)
	})
	h.sc.Stores.Lights.Each(func(id ecs.EntityID, l *component.PointLight) {
		assert.Equal(h.t, norm(lightsIn[id]), norm(l.IntersectingGrids), "light %d", id)
		delete(lightsIn, id)
	})
	assert.Empty(h.t, spritesIn, "trees hold sprites that no longer exist")
	assert.Empty(h.t, lightsIn, "trees hold lights that no longer exist")
}

func TestSpriteOnSharedBoundaryIsInBothGrids(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	left := h.grid(1, mgl32.Vec2{0, 0}, 10, 10)
	right := h.grid(1, mgl32.Vec2{10, 0}, 10, 10)

	e, sp := h.sprite(root, mgl32.Vec2{10, 5})
	h.frame()

	assert.ElementsMatch(t, []space.GridID{left, right}, sp.Grids())
	b, ok := h.spriteBox(1, left, e)
	require.True(t, ok)
	assert.Equal(t, geom.PointBox(mgl32.Vec2{10, 5}), b)
	b, ok = h.spriteBox(1, right, e)
	require.True(t, ok)
	assert.Equal(t, geom.PointBox(mgl32.Vec2{0, 5}), b, "stored in the right grid's local frame")
	_, ok = h.spriteBox(1, space.GridInvalid, e)
	assert.False(t, ok)
	assert.Equal(t, space.MapID(1), sp.IntersectingMap)
}

func TestOffGridSpriteGoesToInvalidBucketUntranslated(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	h.grid(1, mgl32.Vec2{100, 100}, 10, 10)

	e, sp := h.sprite(root, mgl32.Vec2{5, 5})
	h.frame()

	assert.Equal(t, []space.GridID{space.GridInvalid}, sp.Grids())
	b, ok := h.spriteBox(1, space.GridInvalid, e)
	require.True(t, ok)
	assert.Equal(t, geom.PointBox(mgl32.Vec2{5, 5}), b)
}

func TestOffGridDisabledLeavesRecordUnindexed(t *testing.T) {
	sc := scene.New(zap.NewNop())
	cfg := DefaultConfig()
	cfg.IncludeOffGrid = false
	sys := NewSystem(cfg, sc.Stores, sc.Hierarchy, sc.Maps, sc.Bus, zap.NewNop())
	require.NoError(t, sys.Init())
	defer sys.Shutdown()

	root, err := sc.Maps.CreateMap(1)
	require.NoError(t, err)
	e, err := sc.Spawn("", root, mgl32.Vec2{5, 5})
	require.NoError(t, err)
	sp := &component.Sprite{Visible: true}
	sc.AddSprite(e, sp)

	sys.Update(time.Millisecond)
	assert.Empty(t, sp.Grids(), "no grid intersected is a valid outcome")
	assert.Equal(t, space.MapID(1), sp.IntersectingMap)
}

func TestLightMovesBetweenGrids(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	a := h.grid(1, mgl32.Vec2{0, 0}, 15, 15)
	b := h.grid(1, mgl32.Vec2{0, 18}, 15, 15)

	e, l := h.light(root, mgl32.Vec2{10, 10}, 3)
	h.frame()

	assert.Equal(t, []space.GridID{a}, l.Grids())
	box, ok := h.lightBox(1, a, e)
	require.True(t, ok)
	assert.Equal(t, geom.NewBox(7, 7, 13, 13), box, "6x6 box centered on the light")

	h.move(e, mgl32.Vec2{10, 20})
	h.frame()

	assert.ElementsMatch(t, []space.GridID{b, space.GridInvalid}, l.Grids())
	_, ok = h.lightBox(1, a, e)
	assert.False(t, ok)
	box, ok = h.lightBox(1, b, e)
	require.True(t, ok)
	assert.Equal(t, geom.NewBox(7, -1, 13, 5), box)
	box, ok = h.lightBox(1, space.GridInvalid, e)
	require.True(t, ok)
	assert.Equal(t, geom.NewBox(7, 17, 13, 23), box)

	tb, err := h.sys.LightTree(1, b)
	require.NoError(t, err)
	assert.Equal(t, 1, tb.Len())
}

func TestLightCoveredByAdjacentGridsSkipsOffGrid(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	a := h.grid(1, mgl32.Vec2{0, 0}, 10, 10)
	b := h.grid(1, mgl32.Vec2{10, 0}, 10, 10)

	e, l := h.light(root, mgl32.Vec2{10, 5}, 2)
	h.frame()
	assert.ElementsMatch(t, []space.GridID{a, b}, l.Grids())
	_, ok := h.lightBox(1, space.GridInvalid, e)
	assert.False(t, ok)

	h.move(e, mgl32.Vec2{10, 9})
	h.frame()
	assert.ElementsMatch(t, []space.GridID{a, b, space.GridInvalid}, l.Grids())
}

func TestLightRadiusChangeRequeues(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	e, l := h.light(root, mgl32.Vec2{0, 0}, 1)
	h.frame()

	l.Radius = 4
	event.Publish(h.sc.Bus, event.LightChanged{Entity: e})
	assert.Equal(t, 1, h.sys.PendingLights())
	h.frame()

	box, ok := h.lightBox(1, space.GridInvalid, e)
	require.True(t, ok)
	assert.Equal(t, geom.NewBox(-4, -4, 4, 4), box)
}

func TestChildUsesParentsNewPosition(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	parent := h.entity(root, mgl32.Vec2{0, 0})
	child, sp := h.sprite(parent, mgl32.Vec2{1, 0})
	h.frame()

	h.move(parent, mgl32.Vec2{5, 5})
	assert.Equal(t, 1, h.sys.PendingSprites(), "moving the parent queues the child")
	h.frame()

	b, ok := h.spriteBox(1, space.GridInvalid, child)
	require.True(t, ok)
	assert.Equal(t, geom.PointBox(mgl32.Vec2{6, 5}), b)
	assert.False(t, sp.UpdateQueued)
}

func TestEnqueueIsIdempotentWithinFrame(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	parent := h.entity(root, mgl32.Vec2{})
	child, _ := h.sprite(parent, mgl32.Vec2{1, 1})
	h.frame()

	h.sys.QueueSpriteUpdate(child)
	h.sys.QueueSpriteUpdate(child)
	h.move(child, mgl32.Vec2{2, 2})
	h.move(parent, mgl32.Vec2{3, 3})
	assert.Equal(t, 1, h.sys.PendingSprites())

	h.frame()
	assert.Equal(t, 1, h.sys.Stats().SpritesUpdated)
	assert.Equal(t, 0, h.sys.PendingSprites())
}

func TestGridRootMoveDoesNotPropagate(t *testing.T) {
	h := newHarness(t)
	h.mapRoot(1)
	g := h.grid(1, mgl32.Vec2{}, 10, 10)
	ge, ok := h.sc.Maps.GridEntity(g)
	require.True(t, ok)
	_, _ = h.sprite(ge, mgl32.Vec2{2, 2})
	h.frame()

	require.NoError(t, h.sc.Maps.MoveGrid(g, mgl32.Vec2{50, 50}))
	assert.Equal(t, 0, h.sys.PendingSprites())
}

func TestInvisibleOccludedAndNullspaceAreUnindexed(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	g := h.grid(1, mgl32.Vec2{}, 10, 10)

	hidden, hs := h.sprite(root, mgl32.Vec2{1, 1})
	boxed, bs := h.sprite(root, mgl32.Vec2{2, 2})
	lost, ls := h.sprite(root, mgl32.Vec2{3, 3})
	h.frame()
	require.Equal(t, []space.GridID{g}, hs.Grids())

	hs.Visible = false
	event.Publish(h.sc.Bus, event.SpriteVisibilityChanged{Entity: hidden})
	bs.ContainerOccluded = true
	event.Publish(h.sc.Bus, event.SpriteVisibilityChanged{Entity: boxed})
	require.NoError(t, h.sc.Hierarchy.Detach(lost))
	h.frame()

	for _, sp := range []*component.Sprite{hs, bs, ls} {
		assert.Empty(t, sp.Grids())
	}
	assert.Equal(t, space.Nullspace, ls.IntersectingMap)
	tr, err := h.sys.SpriteTree(1, g)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())

	// Becoming visible again re-indexes.
	hs.Visible = true
	event.Publish(h.sc.Bus, event.SpriteVisibilityChanged{Entity: hidden})
	h.frame()
	assert.Equal(t, []space.GridID{g}, hs.Grids())
}

func TestMapChangeMovesRecordToNewMap(t *testing.T) {
	h := newHarness(t)
	a := h.mapRoot(1)
	b := h.mapRoot(2)
	e, sp := h.sprite(a, mgl32.Vec2{1, 1})
	h.frame()
	require.Equal(t, space.MapID(1), sp.IntersectingMap)

	require.NoError(t, h.sc.Hierarchy.SetParent(e, b, mgl32.Vec2{1, 1}))
	h.frame()

	assert.Equal(t, space.MapID(2), sp.IntersectingMap)
	_, ok := h.spriteBox(1, space.GridInvalid, e)
	assert.False(t, ok)
	_, ok = h.spriteBox(2, space.GridInvalid, e)
	assert.True(t, ok)
}

func TestComponentRemovalClearsImmediately(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	e, sp := h.sprite(root, mgl32.Vec2{1, 1})
	h.frame()

	h.move(e, mgl32.Vec2{2, 2})
	require.Equal(t, 1, h.sys.PendingSprites())
	require.True(t, h.sc.RemoveSprite(e))

	assert.Empty(t, sp.Grids())
	assert.Equal(t, 0, h.sys.PendingSprites(), "pending slot dropped with the component")
	_, ok := h.spriteBox(1, space.GridInvalid, e)
	assert.False(t, ok)
	h.frame()
}

func TestReplacingRecordsDropsOldEntries(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	g := h.grid(1, mgl32.Vec2{}, 10, 10)
	e, old := h.sprite(root, mgl32.Vec2{2, 2})
	le, oldLight := h.light(root, mgl32.Vec2{3, 3}, 1)
	h.frame()
	require.Equal(t, []space.GridID{g}, old.Grids())

	h.sc.AddSprite(e, &component.Sprite{Visible: false})
	assert.Empty(t, old.Grids())
	_, ok := h.spriteBox(1, g, e)
	assert.False(t, ok, "replaced sprite leaves the tree at once")
	h.frame()
	_, ok = h.spriteBox(1, g, e)
	assert.False(t, ok)

	h.move(le, mgl32.Vec2{4, 4})
	require.Equal(t, 1, h.sys.PendingLights())
	fresh := &component.PointLight{Enabled: true, Radius: 2}
	h.sc.AddLight(le, fresh)
	h.sc.AddLight(le, fresh)
	assert.Equal(t, 1, h.sys.PendingLights(), "one queue slot per entity")
	assert.Empty(t, oldLight.Grids())
	h.frame()
	assert.Equal(t, []space.GridID{g}, fresh.Grids())
	assert.Equal(t, 1, h.sys.Stats().LightsUpdated)

	sp := &component.Sprite{Visible: true}
	h.sc.AddSprite(e, sp)
	h.sc.AddSprite(e, &component.Sprite{Visible: true})
	assert.Equal(t, 1, h.sys.PendingSprites())
	assert.False(t, sp.UpdateQueued)
	h.frame()
}

func TestLightForceRemove(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	e, l := h.light(root, mgl32.Vec2{}, 2)
	h.frame()
	require.NotEmpty(t, l.Grids())

	l.Enabled = false
	event.Publish(h.sc.Bus, event.LightForceRemove{Entity: e})
	assert.Empty(t, l.Grids())
	_, ok := h.lightBox(1, space.GridInvalid, e)
	assert.False(t, ok)
	h.frame()
}

func TestGridRemovalStripsRecords(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	g := h.grid(1, mgl32.Vec2{}, 10, 10)
	other := h.grid(1, mgl32.Vec2{10, 0}, 10, 10)
	_, sp := h.sprite(root, mgl32.Vec2{10, 5})
	_, l := h.light(root, mgl32.Vec2{4, 4}, 1)
	h.frame()
	require.ElementsMatch(t, []space.GridID{g, other}, sp.Grids())

	pair, err := h.sys.Registry().Get(1, g)
	require.NoError(t, err)

	require.NoError(t, h.sc.Maps.RemoveGrid(g))

	assert.Equal(t, []space.GridID{other}, sp.Grids())
	assert.Empty(t, l.Grids())
	assert.Equal(t, 0, pair.Sprites.Len())
	assert.Equal(t, 0, pair.Lights.Len())
	_, err = h.sys.SpriteTree(1, g)
	assert.ErrorIs(t, err, ErrLookup)
	h.assertConsistent()
}

func TestMapDestructionClearsRecords(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	h.grid(1, mgl32.Vec2{}, 10, 10)
	_, sp := h.sprite(root, mgl32.Vec2{5, 5})
	_, l := h.light(root, mgl32.Vec2{50, 50}, 2)
	h.frame()
	require.NotEmpty(t, sp.Grids())
	require.NotEmpty(t, l.Grids())

	// Lifecycle event alone: records stay alive but lose all membership.
	event.Publish(h.sc.Bus, event.MapDestroyed{Map: 1})
	assert.Empty(t, sp.Grids())
	assert.Empty(t, l.Grids())
	assert.False(t, h.sys.Registry().HasMap(1))
	_, err := h.sys.SpriteTree(1, space.GridInvalid)
	assert.ErrorIs(t, err, ErrLookup)
}

func TestDeleteMapEndToEnd(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	_, sp := h.sprite(root, mgl32.Vec2{5, 5})
	h.frame()

	require.NoError(t, h.sc.Maps.DeleteMap(1))
	assert.Empty(t, sp.Grids())
	assert.Equal(t, 0, h.sc.Stores.Sprites.Len())
	assert.Zero(t, h.sys.Stats().LookupFailures)
	h.frame()
}

func TestTreeLookupsFailForUnindexed(t *testing.T) {
	h := newHarness(t)
	h.mapRoot(1)

	_, err := h.sys.SpriteTree(space.Nullspace, space.GridInvalid)
	assert.ErrorIs(t, err, ErrLookup)
	_, err = h.sys.LightTree(1, 42)
	assert.ErrorIs(t, err, ErrLookup)
	_, err = h.sys.LightTree(1, space.GridInvalid)
	assert.NoError(t, err)
}

func TestInitIndexesExistingWorld(t *testing.T) {
	sc := scene.New(zap.NewNop())
	root, err := sc.Maps.CreateMap(3)
	require.NoError(t, err)
	g, err := sc.Maps.CreateGrid(3, mgl32.Vec2{}, geom.NewBox(0, 0, 8, 8))
	require.NoError(t, err)
	e, err := sc.Spawn("lamp", root, mgl32.Vec2{4, 4})
	require.NoError(t, err)
	l := &component.PointLight{Enabled: true, Radius: 1}
	sc.AddLight(e, l)

	sys := NewSystem(DefaultConfig(), sc.Stores, sc.Hierarchy, sc.Maps, sc.Bus, zap.NewNop())
	require.NoError(t, sys.Init())
	assert.ErrorIs(t, sys.Init(), ErrAlreadyInitialized)

	sys.Update(time.Millisecond)
	assert.Equal(t, []space.GridID{g}, l.Grids())

	sys.Shutdown()
	assert.Equal(t, 0, sc.Bus.Len())
}

func TestRandomWalkKeepsMembershipExact(t *testing.T) {
	h := newHarness(t)
	root := h.mapRoot(1)
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			h.grid(1, mgl32.Vec2{float32(x * 20), float32(y * 20)}, 20, 20)
		}
	}
	rng := rand.New(rand.NewSource(11))
	pos := func() mgl32.Vec2 { return mgl32.Vec2{rng.Float32()*80 - 10, rng.Float32()*80 - 10} }

	var ents []ecs.EntityID
	for i := 0; i < 20; i++ {
		e, _ := h.sprite(root, pos())
		ents = append(ents, e)
		le, _ := h.light(e, mgl32.Vec2{1, 0}, rng.Float32()*6)
		ents = append(ents, le)
	}
	h.frame()

	for step := 0; step < 30; step++ {
		for i := 0; i < 10; i++ {
			e := ents[rng.Intn(len(ents))]
			h.move(e, pos())
		}
		if step%7 == 3 {
			e := ents[rng.Intn(len(ents))]
			if sp, ok := h.sc.Stores.Sprites.Get(e); ok {
				sp.Visible = !sp.Visible
				event.Publish(h.sc.Bus, event.SpriteVisibilityChanged{Entity: e})
			}
		}
		h.frame()
	}
}
