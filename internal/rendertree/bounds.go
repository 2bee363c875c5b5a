package rendertree

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/geom"
)

// SpriteWorldBounds is the zero-extent box at the sprite's world position.
func SpriteWorldBounds(worldPos mgl32.Vec2) geom.Box {
	return geom.PointBox(worldPos)
}

// LightWorldBounds is the box of side 2*radius centered at the light.
func LightWorldBounds(worldPos mgl32.Vec2, l *component.PointLight) geom.Box {
	r := l.Radius
	if r < 0 {
		r = 0
	}
	return geom.BoxAround(worldPos, mgl32.Vec2{r, r})
}

// toGridLocal moves a world box into a grid's frame. The off-grid bucket
// stays in world coordinates.
func toGridLocal(world geom.Box, origin mgl32.Vec2) geom.Box {
	return world.Translate(origin.Mul(-1))
}
