package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/core/ecs"
	"github.com/l1jgo/rendertree/internal/render"
	"github.com/l1jgo/rendertree/internal/scene"
)

var ErrNotGrid = errors.New("entity is not a grid")

// Engine wraps a single gopher-lua VM running scenario scripts.
// Single-goroutine access only (frame loop).
//
// Scripts define on_frame(n) and drive the scene through:
//
//	move(name, x, y)            set local position
//	position(name) -> x, y      world position
//	set_parent(name, parent)    reparent, keeping the local position
//	set_visible(name, bool)     sprite visibility
//	set_radius(name, r)         light radius
//	set_enabled(name, bool)     light on/off
//	remove_grid(name)           remove a grid and everything on it
//	destroy(name)               destroy the entity and its subtree at frame end
//	log(msg)
type Engine struct {
	vm       *lua.LState
	scene    *scene.Scene
	controls *render.Controls
	log      *zap.Logger
}

// NewEngine creates a Lua engine bound to sc. Call LoadDir or LoadString
// to add scripts.
func NewEngine(sc *scene.Scene, controls *render.Controls, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, scene: sc, controls: controls, log: log}
	for name, fn := range map[string]lua.LGFunction{
		"move":        e.luaMove,
		"position":    e.luaPosition,
		"set_parent":  e.luaSetParent,
		"set_visible": e.luaSetVisible,
		"set_radius":  e.luaSetRadius,
		"set_enabled": e.luaSetEnabled,
		"remove_grid": e.luaRemoveGrid,
		"destroy":     e.luaDestroy,
		"log":         e.luaLog,
	} {
		vm.SetGlobal(name, vm.NewFunction(fn))
	}
	return e
}

// LoadDir loads all .lua files in a directory, in name order. A missing
// directory is not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source.
func (e *Engine) LoadString(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	return nil
}

// HasFrameHook reports whether any loaded script defines on_frame.
func (e *Engine) HasFrameHook() bool {
	return e.vm.GetGlobal("on_frame") != lua.LNil
}

// OnFrame calls on_frame(n) if it is defined.
func (e *Engine) OnFrame(n uint64) error {
	fn := e.vm.GetGlobal("on_frame")
	if fn == lua.LNil {
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(n)); err != nil {
		return fmt.Errorf("on_frame(%d): %w", n, err)
	}
	return nil
}

// Close releases the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// entity resolves the name argument at idx, raising a Lua error if unknown.
func (e *Engine) entity(L *lua.LState, idx int) ecs.EntityID {
	id, err := e.scene.Lookup(L.CheckString(idx))
	if err != nil {
		L.RaiseError("%v", err)
	}
	return id
}

func (e *Engine) check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%v", err)
	}
}

func (e *Engine) luaMove(L *lua.LState) int {
	id := e.entity(L, 1)
	pos := mgl32.Vec2{float32(L.CheckNumber(2)), float32(L.CheckNumber(3))}
	e.check(L, e.scene.Hierarchy.SetLocalPosition(id, pos))
	return 0
}

func (e *Engine) luaPosition(L *lua.LState) int {
	pos := e.scene.Hierarchy.WorldPosition(e.entity(L, 1))
	L.Push(lua.LNumber(pos.X()))
	L.Push(lua.LNumber(pos.Y()))
	return 2
}

func (e *Engine) luaSetParent(L *lua.LState) int {
	id := e.entity(L, 1)
	parent := e.entity(L, 2)
	t, ok := e.scene.Hierarchy.Get(id)
	if !ok {
		L.RaiseError("%s has no transform", L.CheckString(1))
	}
	e.check(L, e.scene.Hierarchy.SetParent(id, parent, t.LocalPos))
	return 0
}

func (e *Engine) luaSetVisible(L *lua.LState) int {
	e.check(L, e.controls.SetSpriteVisible(e.entity(L, 1), L.CheckBool(2)))
	return 0
}

func (e *Engine) luaSetRadius(L *lua.LState) int {
	e.check(L, e.controls.SetLightRadius(e.entity(L, 1), float32(L.CheckNumber(2))))
	return 0
}

func (e *Engine) luaSetEnabled(L *lua.LState) int {
	e.check(L, e.controls.SetLightEnabled(e.entity(L, 1), L.CheckBool(2)))
	return 0
}

func (e *Engine) luaRemoveGrid(L *lua.LState) int {
	name := L.CheckString(1)
	id := e.entity(L, 1)
	grid, ok := e.scene.Maps.GridAt(id)
	if !ok {
		L.RaiseError("%s: %v", name, ErrNotGrid)
	}
	e.check(L, e.scene.Maps.RemoveGrid(grid))
	return 0
}

func (e *Engine) luaDestroy(L *lua.LState) int {
	e.scene.World.MarkForDestruction(e.entity(L, 1))
	return 0
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info(L.CheckString(1), zap.String("source", "lua"))
	return 0
}
