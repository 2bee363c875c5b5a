package render

import (
	"slices"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/space"
	coresys "github.com/l1jgo/rendertree/internal/core/system"
	"github.com/l1jgo/rendertree/internal/dyntree"
	"github.com/l1jgo/rendertree/internal/geom"
)

// Trees gives read access to the per-grid render trees.
type Trees interface {
	SpriteTree(mapID space.MapID, grid space.GridID) (*dyntree.Tree[ecs.EntityID], error)
	LightTree(mapID space.MapID, grid space.GridID) (*dyntree.Tree[ecs.EntityID], error)
}

// Grids locates the grids a viewport touches.
type Grids interface {
	FindGridIDsIntersecting(mapID space.MapID, box geom.Box, includeOffGrid bool) []space.GridID
	GridWorldOrigin(grid space.GridID) (mgl32.Vec2, error)
}

// View is what one map's viewport saw in a frame, sorted by entity.
type View struct {
	Map      space.MapID
	Viewport geom.Box
	Sprites  []ecs.EntityID
	Lights   []ecs.EntityID
}

// Culler collects, once per frame, the sprites and lights inside each
// map's viewport. Phase 4 (Render), after the trees are reconciled.
type Culler struct {
	trees     Trees
	grids     Grids
	log       *zap.Logger
	viewports map[space.MapID]geom.Box
	last      []View

	seen map[ecs.EntityID]struct{}
}

func NewCuller(trees Trees, grids Grids, log *zap.Logger) *Culler {
	return &Culler{
		trees:     trees,
		grids:     grids,
		log:       log.Named("culler"),
		viewports: make(map[space.MapID]geom.Box),
		seen:      make(map[ecs.EntityID]struct{}, 64),
	}
}

func (c *Culler) Phase() coresys.Phase { return coresys.PhaseRender }

// SetViewport sets the world-space box drawn for mapID.
func (c *Culler) SetViewport(mapID space.MapID, box geom.Box) {
	c.viewports[mapID] = box
}

// CenterViewport places a viewport of the given half size around center.
func (c *Culler) CenterViewport(mapID space.MapID, center, half mgl32.Vec2) {
	c.viewports[mapID] = geom.BoxAround(center, half)
}

func (c *Culler) ClearViewport(mapID space.MapID) {
	delete(c.viewports, mapID)
}

// ClearViewports drops every viewport.
func (c *Culler) ClearViewports() {
	clear(c.viewports)
}

// LastFrame returns the views collected by the last Update, by map.
func (c *Culler) LastFrame() []View { return c.last }

func (c *Culler) Update(_ time.Duration) {
	maps := make([]space.MapID, 0, len(c.viewports))
	for m := range c.viewports {
		maps = append(maps, m)
	}
	sort.Slice(maps, func(i, j int) bool { return maps[i] < maps[j] })

	c.last = c.last[:0]
	for _, m := range maps {
		view := View{Map: m, Viewport: c.viewports[m]}
		grids := c.grids.FindGridIDsIntersecting(m, view.Viewport, true)
		view.Sprites = c.collect(m, grids, view.Viewport, c.trees.SpriteTree)
		view.Lights = c.collect(m, grids, view.Viewport, c.trees.LightTree)
		c.last = append(c.last, view)
	}
}

// collect queries each grid's tree with the viewport moved into the grid's
// frame. An entity spanning several grids is reported once.
func (c *Culler) collect(
	mapID space.MapID,
	grids []space.GridID,
	viewport geom.Box,
	tree func(space.MapID, space.GridID) (*dyntree.Tree[ecs.EntityID], error),
) []ecs.EntityID {
	clear(c.seen)
	var out []ecs.EntityID
	for _, g := range grids {
		t, err := tree(mapID, g)
		if err != nil {
			c.log.Warn("viewport grid not indexed", zap.Error(err))
			continue
		}
		local := viewport
		if g.IsValid() {
			origin, err := c.grids.GridWorldOrigin(g)
			if err != nil {
				c.log.Warn("viewport grid has no origin", zap.Error(err))
				continue
			}
			local = viewport.Translate(origin.Mul(-1))
		}
		t.Query(local, func(id ecs.EntityID, _ geom.Box) bool {
			if _, dup := c.seen[id]; !dup {
				c.seen[id] = struct{}{}
				out = append(out, id)
			}
			return true
		})
	}
	slices.Sort(out)
	return out
}
