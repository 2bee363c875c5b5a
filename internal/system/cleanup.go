package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/rendertree/internal/core/ecs"
	coresys "github.com/l1jgo/rendertree/internal/core/system"
)

// Destroyer tears down an entity together with its transform subtree.
type Destroyer interface {
	Destroy(e ecs.EntityID)
}

// CleanupSystem destroys the entities queued for destruction during the
// frame, after the render trees and culler have run. Phase 5 (Cleanup).
type CleanupSystem struct {
	world *ecs.World
	hier  Destroyer
	log   *zap.Logger
	total int
}

func NewCleanupSystem(world *ecs.World, hier Destroyer, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: world, hier: hier, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	n := s.world.FlushDestroyQueueWith(s.hier.Destroy)
	if n > 0 {
		s.total += n
		s.log.Debug("destroyed queued entities", zap.Int("count", n))
	}
}

// Destroyed returns the number of entities destroyed so far.
func (s *CleanupSystem) Destroyed() int { return s.total }
