package data

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/rendertree/internal/component"
	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/core/space"
	"github.com/l1jgo/rendertree/internal/geom"
	"github.com/l1jgo/rendertree/internal/scene"
)

var ErrInvalidScene = errors.New("invalid scene")

// SceneFile is the on-disk scene layout, loaded from scene.yaml.
type SceneFile struct {
	Maps     []MapDef    `yaml:"maps"`
	Entities []EntityDef `yaml:"entities"`
}

type MapDef struct {
	ID    uint32    `yaml:"id"`
	Grids []GridDef `yaml:"grids"`
}

// GridDef places a grid on its map. Bounds are local: [min_x, min_y, max_x, max_y].
type GridDef struct {
	Name   string     `yaml:"name"`
	Origin [2]float32 `yaml:"origin"`
	Bounds [4]float32 `yaml:"bounds"`
}

// EntityDef is one scene entity. Exactly one of Map or Parent is set;
// Parent names an earlier entity or a grid.
type EntityDef struct {
	Name   string     `yaml:"name"`
	Map    uint32     `yaml:"map"`
	Parent string     `yaml:"parent"`
	Pos    [2]float32 `yaml:"pos"`
	Sprite *SpriteDef `yaml:"sprite"`
	Light  *LightDef  `yaml:"light"`
}

type SpriteDef struct {
	Visible  *bool  `yaml:"visible"` // default true
	Occluded bool   `yaml:"occluded"`
	Layer    int    `yaml:"layer"`
	Texture  string `yaml:"texture"`
}

type LightDef struct {
	Enabled  *bool      `yaml:"enabled"` // default true
	Occluded bool       `yaml:"occluded"`
	Radius   float32    `yaml:"radius"`
	Energy   float32    `yaml:"energy"`
	Color    [3]float32 `yaml:"color"`
}

// Loaded reports what Apply created.
type Loaded struct {
	Maps     map[space.MapID]ecs.EntityID
	Grids    map[string]space.GridID
	Entities map[string]ecs.EntityID
}

// LoadScene reads and validates a scene file.
func LoadScene(path string) (*SceneFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene %s: %w", path, err)
	}
	f, err := ParseScene(raw)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return f, nil
}

func ParseScene(raw []byte) (*SceneFile, error) {
	var f SceneFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *SceneFile) validate() error {
	maps := make(map[uint32]struct{}, len(f.Maps))
	names := make(map[string]struct{})
	for _, m := range f.Maps {
		if m.ID == 0 {
			return fmt.Errorf("%w: map id 0 is nullspace", ErrInvalidScene)
		}
		if _, dup := maps[m.ID]; dup {
			return fmt.Errorf("%w: map %d declared twice", ErrInvalidScene, m.ID)
		}
		maps[m.ID] = struct{}{}
		for _, g := range m.Grids {
			if g.Name == "" {
				return fmt.Errorf("%w: unnamed grid on map %d", ErrInvalidScene, m.ID)
			}
			if _, dup := names[g.Name]; dup {
				return fmt.Errorf("%w: name %q used twice", ErrInvalidScene, g.Name)
			}
			names[g.Name] = struct{}{}
			if !g.box().Valid() {
				return fmt.Errorf("%w: grid %q has inverted bounds", ErrInvalidScene, g.Name)
			}
		}
	}
	for i, e := range f.Entities {
		label := e.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if (e.Map == 0) == (e.Parent == "") {
			return fmt.Errorf("%w: entity %s needs exactly one of map or parent", ErrInvalidScene, label)
		}
		if e.Map != 0 {
			if _, ok := maps[e.Map]; !ok {
				return fmt.Errorf("%w: entity %s on undeclared map %d", ErrInvalidScene, label, e.Map)
			}
		}
		if e.Parent != "" {
			if _, ok := names[e.Parent]; !ok {
				return fmt.Errorf("%w: entity %s parent %q not declared before it", ErrInvalidScene, label, e.Parent)
			}
		}
		if e.Name != "" {
			if _, dup := names[e.Name]; dup {
				return fmt.Errorf("%w: name %q used twice", ErrInvalidScene, e.Name)
			}
			names[e.Name] = struct{}{}
		}
		if e.Light != nil && e.Light.Radius < 0 {
			return fmt.Errorf("%w: entity %s has negative light radius", ErrInvalidScene, label)
		}
	}
	return nil
}

func (g GridDef) box() geom.Box {
	return geom.NewBox(g.Bounds[0], g.Bounds[1], g.Bounds[2], g.Bounds[3])
}

// Apply builds the scene's maps, grids and entities into sc. Grids are
// named in sc so entities and scripts can refer to them.
func (f *SceneFile) Apply(sc *scene.Scene) (*Loaded, error) {
	out := &Loaded{
		Maps:     make(map[space.MapID]ecs.EntityID, len(f.Maps)),
		Grids:    make(map[string]space.GridID),
		Entities: make(map[string]ecs.EntityID, len(f.Entities)),
	}
	for _, m := range f.Maps {
		id := space.MapID(m.ID)
		root, err := sc.Maps.CreateMap(id)
		if err != nil {
			return nil, fmt.Errorf("apply map %d: %w", m.ID, err)
		}
		out.Maps[id] = root
		for _, g := range m.Grids {
			gid, err := sc.Maps.CreateGrid(id, vec(g.Origin), g.box())
			if err != nil {
				return nil, fmt.Errorf("apply grid %q: %w", g.Name, err)
			}
			ge, _ := sc.Maps.GridEntity(gid)
			sc.Name(ge, g.Name)
			out.Grids[g.Name] = gid
		}
	}

	for _, e := range f.Entities {
		parent := out.Maps[space.MapID(e.Map)]
		if e.Parent != "" {
			p, err := sc.Lookup(e.Parent)
			if err != nil {
				return nil, fmt.Errorf("apply entity %q: %w", e.Name, err)
			}
			parent = p
		}
		id, err := sc.Spawn(e.Name, parent, vec(e.Pos))
		if err != nil {
			return nil, fmt.Errorf("apply entity %q: %w", e.Name, err)
		}
		if e.Name != "" {
			out.Entities[e.Name] = id
		}
		if s := e.Sprite; s != nil {
			sc.AddSprite(id, &component.Sprite{
				Visible:           boolOr(s.Visible, true),
				ContainerOccluded: s.Occluded,
				Layer:             s.Layer,
				Texture:           s.Texture,
			})
		}
		if l := e.Light; l != nil {
			sc.AddLight(id, &component.PointLight{
				Enabled:           boolOr(l.Enabled, true),
				ContainerOccluded: l.Occluded,
				Radius:            l.Radius,
				Energy:            l.Energy,
				Color:             l.Color,
			})
		}
	}
	return out, nil
}

func vec(v [2]float32) mgl32.Vec2 { return mgl32.Vec2{v[0], v[1]} }

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
