package component

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/space"
)

// Transform places an entity in the ownership hierarchy.
// Pure data — mutations go through transform.Hierarchy so events fire.
type Transform struct {
	Parent   ecs.EntityID   // NoEntity for map roots and detached entities
	Children []ecs.EntityID // direct children, attach order
	LocalPos mgl32.Vec2     // relative to Parent
	MapID    space.MapID

	// Roots of the map/grid structure. Their children are tracked by the
	// map manager, not by movement propagation.
	MapRoot  bool
	GridRoot bool
}

// IsRoot reports whether the transform is a map or grid root.
func (t *Transform) IsRoot() bool { return t.MapRoot || t.GridRoot }
