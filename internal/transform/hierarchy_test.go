package transform

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
	"github.com/l1jgo/rendertree/internal/core/space"
)

type fixture struct {
	world  *ecs.World
	stores *component.Stores
	bus    *event.Bus
	h      *Hierarchy
}

func newFixture() *fixture {
	w := ecs.NewWorld()
	s := component.NewStores(w)
	b := event.NewBus()
	return &fixture{world: w, stores: s, bus: b, h: NewHierarchy(w, s, b)}
}

func (f *fixture) mapRoot(m space.MapID) ecs.EntityID {
	e := f.world.CreateEntity()
	f.h.MakeMapRoot(e, m)
	return e
}

func TestWorldPositionFollowsParent(t *testing.T) {
	f := newFixture()
	root := f.mapRoot(1)
	parent := f.world.CreateEntity()
	child := f.world.CreateEntity()
	require.NoError(t, f.h.SetParent(parent, root, mgl32.Vec2{0, 0}))
	require.NoError(t, f.h.SetParent(child, parent, mgl32.Vec2{1, 0}))

	var moved []ecs.EntityID
	event.Subscribe(f.bus, func(ev event.EntityMoved) { moved = append(moved, ev.Entity) })

	require.NoError(t, f.h.SetLocalPosition(parent, mgl32.Vec2{5, 5}))
	assert.Equal(t, mgl32.Vec2{6, 5}, f.h.WorldPosition(child))
	assert.Equal(t, []ecs.EntityID{parent}, moved, "only the direct mover is signalled")

	require.NoError(t, f.h.SetLocalPosition(parent, mgl32.Vec2{5, 5}))
	assert.Len(t, moved, 1, "no event without a change")
}

func TestSetParentAcrossMapsRetagsSubtree(t *testing.T) {
	f := newFixture()
	a := f.mapRoot(1)
	b := f.mapRoot(2)
	parent := f.world.CreateEntity()
	child := f.world.CreateEntity()
	require.NoError(t, f.h.SetParent(parent, a, mgl32.Vec2{}))
	require.NoError(t, f.h.SetParent(child, parent, mgl32.Vec2{1, 1}))

	var maps []event.MapChanged
	var parents []event.ParentChanged
	event.Subscribe(f.bus, func(ev event.MapChanged) { maps = append(maps, ev) })
	event.Subscribe(f.bus, func(ev event.ParentChanged) { parents = append(parents, ev) })

	require.NoError(t, f.h.SetParent(parent, b, mgl32.Vec2{3, 3}))
	assert.Equal(t, space.MapID(2), f.h.MapOf(child))
	assert.Equal(t, []event.MapChanged{
		{Entity: parent, OldMap: 1, NewMap: 2},
		{Entity: child, OldMap: 1, NewMap: 2},
	}, maps)
	assert.Equal(t, []event.ParentChanged{{Entity: parent, OldParent: a, NewParent: b}}, parents)
	assert.Empty(t, f.h.Children(a))
	assert.Equal(t, []ecs.EntityID{parent}, f.h.Children(b))
}

func TestSetParentRejectsCycle(t *testing.T) {
	f := newFixture()
	root := f.mapRoot(1)
	p := f.world.CreateEntity()
	c := f.world.CreateEntity()
	require.NoError(t, f.h.SetParent(p, root, mgl32.Vec2{}))
	require.NoError(t, f.h.SetParent(c, p, mgl32.Vec2{}))

	assert.ErrorIs(t, f.h.SetParent(p, c, mgl32.Vec2{}), ErrCycle)
	assert.ErrorIs(t, f.h.SetParent(p, p, mgl32.Vec2{}), ErrCycle)
	assert.ErrorIs(t, f.h.SetParent(p, f.world.CreateEntity(), mgl32.Vec2{}), ErrNoTransform)
	assert.ErrorIs(t, f.h.SetLocalPosition(f.world.CreateEntity(), mgl32.Vec2{}), ErrNoTransform)
}

func TestDetachMovesSubtreeToNullspace(t *testing.T) {
	f := newFixture()
	root := f.mapRoot(1)
	p := f.world.CreateEntity()
	c := f.world.CreateEntity()
	require.NoError(t, f.h.SetParent(p, root, mgl32.Vec2{}))
	require.NoError(t, f.h.SetParent(c, p, mgl32.Vec2{}))

	require.NoError(t, f.h.Detach(p))
	assert.Equal(t, space.Nullspace, f.h.MapOf(p))
	assert.Equal(t, space.Nullspace, f.h.MapOf(c))
	assert.Empty(t, f.h.Children(root))
}

func TestDestroyRemovesSubtree(t *testing.T) {
	f := newFixture()
	root := f.mapRoot(1)
	p := f.world.CreateEntity()
	c := f.world.CreateEntity()
	require.NoError(t, f.h.SetParent(p, root, mgl32.Vec2{}))
	require.NoError(t, f.h.SetParent(c, p, mgl32.Vec2{}))

	f.h.Destroy(p)
	assert.False(t, f.world.Alive(p))
	assert.False(t, f.world.Alive(c))
	assert.True(t, f.world.Alive(root))
	assert.Empty(t, f.h.Children(root))
}
