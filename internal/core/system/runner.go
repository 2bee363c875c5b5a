package system

import (
	"fmt"
	"sort"
	"time"
)

// Runner executes systems in phase order each frame.
// Systems sharing a phase keep their registration order.
type Runner struct {
	systems []System
	sorted  bool
	inited  []System
	frames  uint64
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Init calls Init on every Initializer in phase order. On failure the
// systems already initialized are shut down again.
func (r *Runner) Init() error {
	r.ensureSorted()
	for _, s := range r.systems {
		in, ok := s.(Initializer)
		if !ok {
			continue
		}
		if err := in.Init(); err != nil {
			r.Shutdown()
			return fmt.Errorf("init %T: %w", s, err)
		}
		r.inited = append(r.inited, s)
	}
	return nil
}

// Shutdown tears systems down in reverse init order.
func (r *Runner) Shutdown() {
	for i := len(r.inited) - 1; i >= 0; i-- {
		if sd, ok := r.inited[i].(Shutdowner); ok {
			sd.Shutdown()
		}
	}
	r.inited = r.inited[:0]
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
	r.frames++
}

// TickPhase runs only the systems of the given phase. Used by tests and
// tools that need to stop between phases.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Frames returns the number of completed Tick calls.
func (r *Runner) Frames() uint64 { return r.frames }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
