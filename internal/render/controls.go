// Package render holds the consumers of the render trees: the controls a
// renderer uses to change what is drawable, and the per-frame culler.
package render

import (
	"errors"
	"fmt"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/event"
)

var (
	ErrNoSprite = errors.New("entity has no sprite")
	ErrNoLight  = errors.New("entity has no light")
)

// Controls mutates sprite and light records and announces each change on
// the bus so the render trees pick it up.
type Controls struct {
	stores *component.Stores
	bus    *event.Bus
}

func NewControls(stores *component.Stores, bus *event.Bus) *Controls {
	return &Controls{stores: stores, bus: bus}
}

func (c *Controls) sprite(e ecs.EntityID) (*component.Sprite, error) {
	sp, ok := c.stores.Sprites.Get(e)
	if !ok {
		return nil, fmt.Errorf("entity %d: %w", e, ErrNoSprite)
	}
	return sp, nil
}

func (c *Controls) light(e ecs.EntityID) (*component.PointLight, error) {
	l, ok := c.stores.Lights.Get(e)
	if !ok {
		return nil, fmt.Errorf("entity %d: %w", e, ErrNoLight)
	}
	return l, nil
}

// SetSpriteVisible shows or hides the sprite on e.
func (c *Controls) SetSpriteVisible(e ecs.EntityID, visible bool) error {
	sp, err := c.sprite(e)
	if err != nil {
		return err
	}
	if sp.Visible == visible {
		return nil
	}
	sp.Visible = visible
	event.Publish(c.bus, event.SpriteVisibilityChanged{Entity: e})
	return nil
}

// SetSpriteOccluded marks the sprite as hidden inside a container.
func (c *Controls) SetSpriteOccluded(e ecs.EntityID, occluded bool) error {
	sp, err := c.sprite(e)
	if err != nil {
		return err
	}
	if sp.ContainerOccluded == occluded {
		return nil
	}
	sp.ContainerOccluded = occluded
	event.Publish(c.bus, event.SpriteVisibilityChanged{Entity: e})
	return nil
}

func (c *Controls) SetLightEnabled(e ecs.EntityID, enabled bool) error {
	l, err := c.light(e)
	if err != nil {
		return err
	}
	if l.Enabled == enabled {
		return nil
	}
	l.Enabled = enabled
	event.Publish(c.bus, event.LightChanged{Entity: e})
	return nil
}

// SetLightRadius changes the light's reach. Negative radii are clamped to 0.
func (c *Controls) SetLightRadius(e ecs.EntityID, radius float32) error {
	l, err := c.light(e)
	if err != nil {
		return err
	}
	if radius < 0 {
		radius = 0
	}
	if l.Radius == radius {
		return nil
	}
	l.Radius = radius
	event.Publish(c.bus, event.LightChanged{Entity: e})
	return nil
}

func (c *Controls) SetLightOccluded(e ecs.EntityID, occluded bool) error {
	l, err := c.light(e)
	if err != nil {
		return err
	}
	if l.ContainerOccluded == occluded {
		return nil
	}
	l.ContainerOccluded = occluded
	event.Publish(c.bus, event.LightChanged{Entity: e})
	return nil
}

// ForceRemoveLight disables the light and drops its tree entries at once,
// without waiting for the next reconciliation.
func (c *Controls) ForceRemoveLight(e ecs.EntityID) error {
	l, err := c.light(e)
	if err != nil {
		return err
	}
	l.Enabled = false
	event.Publish(c.bus, event.LightForceRemove{Entity: e})
	return nil
}
