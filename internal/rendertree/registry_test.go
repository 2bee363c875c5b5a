package rendertree

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/space"
	"github.com/l1jgo/rendertree/internal/geom"
)

func TestRegistryLifecycle(t *testing.T) {
	stores := component.NewStores(ecs.NewWorld())
	r := NewRegistry(stores)

	r.OnMapCreated(space.Nullspace)
	assert.Empty(t, r.Maps(), "nullspace is never indexed")

	r.OnMapCreated(1)
	first, err := r.Get(1, space.GridInvalid)
	require.NoError(t, err)
	r.OnMapCreated(1)
	again, err := r.Get(1, space.GridInvalid)
	require.NoError(t, err)
	assert.Same(t, first.Sprites, again.Sprites, "recreating an indexed map keeps its trees")

	require.NoError(t, r.OnGridCreated(1, 7))
	assert.Equal(t, []space.GridID{space.GridInvalid, 7}, r.Grids(1))
	assert.ErrorIs(t, r.OnGridCreated(2, 8), ErrLookup)

	_, err = r.Get(2, space.GridInvalid)
	assert.ErrorIs(t, err, ErrLookup)
	_, err = r.Get(1, 9)
	assert.ErrorIs(t, err, ErrLookup)

	assert.True(t, r.OnGridRemoved(1, 7))
	assert.False(t, r.OnGridRemoved(1, 7))
	assert.True(t, r.OnMapDestroyed(1))
	assert.False(t, r.OnMapDestroyed(1))
	assert.False(t, r.HasMap(1))
}

func TestRegistryRecyclesPairs(t *testing.T) {
	stores := component.NewStores(ecs.NewWorld())
	r := NewRegistry(stores)
	r.OnMapCreated(1)
	require.NoError(t, r.OnGridCreated(1, 1))
	p, err := r.Get(1, 1)
	require.NoError(t, err)
	p.Sprites.AddOrUpdate(ecs.EntityID(5), geom.PointBox(mgl32.Vec2{1, 1}))

	r.OnGridRemoved(1, 1)
	require.NoError(t, r.OnGridCreated(1, 2))
	q, err := r.Get(1, 2)
	require.NoError(t, err)
	assert.Same(t, p.Sprites, q.Sprites, "freed slot is reused")
	assert.Equal(t, 0, q.Sprites.Len(), "reused trees start empty")
}

func TestRegistryStripUpdatesMembership(t *testing.T) {
	w := ecs.NewWorld()
	stores := component.NewStores(w)
	r := NewRegistry(stores)
	r.OnMapCreated(1)
	require.NoError(t, r.OnGridCreated(1, 3))

	e := w.CreateEntity()
	sp := &component.Sprite{Visible: true}
	sp.IntersectingMap = 1
	sp.AddGrid(3)
	sp.AddGrid(space.GridInvalid)
	stores.Sprites.Set(e, sp)

	for _, g := range []space.GridID{3, space.GridInvalid} {
		p, err := r.Get(1, g)
		require.NoError(t, err)
		p.Sprites.AddOrUpdate(e, geom.PointBox(mgl32.Vec2{}))
	}

	r.OnGridRemoved(1, 3)
	assert.Equal(t, []space.GridID{space.GridInvalid}, sp.Grids())

	r.OnMapDestroyed(1)
	assert.Empty(t, sp.Grids())
}
