package main

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/l1jgo/rendertree/internal/config"
	coresys "github.com/l1jgo/rendertree/internal/core/system"
	"github.com/l1jgo/rendertree/internal/render"
	"github.com/l1jgo/rendertree/internal/scene"
)

// cameraName is the scene entity the viewport follows.
const cameraName = "camera"

// camera centers the culler's viewport on the entity named "camera", or
// on every map's origin when there is none. Phase 2 (Update).
type camera struct {
	sc     *scene.Scene
	culler *render.Culler
	half   mgl32.Vec2
}

func newCamera(sc *scene.Scene, culler *render.Culler, cfg config.RenderConfig) *camera {
	return &camera{
		sc:     sc,
		culler: culler,
		half:   mgl32.Vec2{cfg.ViewportHalfWidth, cfg.ViewportHalfHeight},
	}
}

func (c *camera) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (c *camera) Update(_ time.Duration) {
	c.culler.ClearViewports()
	if e, err := c.sc.Lookup(cameraName); err == nil {
		if m := c.sc.Hierarchy.MapOf(e); !m.IsNullspace() {
			c.culler.CenterViewport(m, c.sc.Hierarchy.WorldPosition(e), c.half)
		}
		return
	}
	for _, m := range c.sc.Maps.Maps() {
		c.culler.CenterViewport(m, mgl32.Vec2{}, c.half)
	}
}
