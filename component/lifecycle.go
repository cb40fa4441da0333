package component

import (
	"context"
	"time"
)

// State is where a component is in its lifecycle
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateFailed // Initialize, Start or Stop returned an error
)

var stateNames = [...]string{"created", "initialized", "started", "stopped", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// LifecycleComponent is implemented by the inputs and the bridge.
// Initialize validates and builds clients without I/O; Start connects and
// spawns goroutines; Stop drains within timeout.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
