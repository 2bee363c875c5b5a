package system

import "time"

// Phase defines execution ordering within a single frame.
type Phase int

const (
	PhaseInput      Phase = iota // 0: scripted/external input
	PhasePreUpdate               // 1: prepare frame state
	PhaseUpdate                  // 2: transforms, physics
	PhasePostUpdate              // 3: render tree synchronization
	PhaseRender                  // 4: tree consumers (culling)
	PhaseCleanup                 // 5: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseRender:
		return "render"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Initializer is implemented by systems that register subscriptions or
// allocate state before the first frame.
type Initializer interface {
	Init() error
}

// Shutdowner is implemented by systems that must tear down what Init set up.
type Shutdowner interface {
	Shutdown()
}
