package component

import "github.com/l1jgo/rendertree/internal/core/ecs"

// Stores groups the component stores the render tree works with.
type Stores struct {
	Transforms *ecs.PtrComponentStore[Transform]
	Sprites    *ecs.PtrComponentStore[Sprite]
	Lights     *ecs.PtrComponentStore[PointLight]
}

// NewStores creates the stores and registers them with w so entity
// destruction clears them. Renderables are registered before transforms:
// their remove hooks may still need the owner's transform.
func NewStores(w *ecs.World) *Stores {
	s := &Stores{
		Transforms: ecs.NewPtrComponentStore[Transform](),
		Sprites:    ecs.NewPtrComponentStore[Sprite](),
		Lights:     ecs.NewPtrComponentStore[PointLight](),
	}
	w.Registry().Register(s.Sprites)
	w.Registry().Register(s.Lights)
	w.Registry().Register(s.Transforms)
	return s
}
