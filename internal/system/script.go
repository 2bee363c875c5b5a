package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/rendertree/internal/core/system"
)

// FrameHook is a per-frame script entry point.
type FrameHook interface {
	OnFrame(n uint64) error
}

// ScriptSystem runs the scenario scripts at the start of every frame.
// Phase 0 (Input). A failing script is logged and the frame continues.
type ScriptSystem struct {
	hook   FrameHook
	log    *zap.Logger
	frame  uint64
	failed int
}

func NewScriptSystem(hook FrameHook, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{hook: hook, log: log}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ScriptSystem) Update(_ time.Duration) {
	s.frame++
	if err := s.hook.OnFrame(s.frame); err != nil {
		s.failed++
		s.log.Error("script frame hook failed", zap.Uint64("frame", s.frame), zap.Error(err))
	}
}

// Failures returns how many frames had a script error.
func (s *ScriptSystem) Failures() int { return s.failed }
