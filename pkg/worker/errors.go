package worker

import (
	stderrors "errors"
	"fmt"

	"github.com/c360/mqtt2influxdb/errors"
)

// Lifecycle errors wrap the shared sentinels so errors.Is works against
// either
var (
	ErrPoolNotStarted     = fmt.Errorf("worker pool: %w", errors.ErrNotStarted)
	ErrPoolAlreadyStarted = fmt.Errorf("worker pool: %w", errors.ErrAlreadyStarted)
	ErrPoolStopped        = fmt.Errorf("worker pool: %w", errors.ErrShuttingDown)
)

var (
	// ErrQueueFull is returned by Submit instead of blocking
	ErrQueueFull = stderrors.New("worker pool queue full")
	// ErrStopTimeout means some workers were still busy when Stop gave up
	ErrStopTimeout = fmt.Errorf("worker pool stop: %w", errors.ErrConnectionTimeout)
	// ErrProcessorPanic wraps the value recovered from a processor
	ErrProcessorPanic = stderrors.New("processor panicked")
	errNilProcessor   = stderrors.New("worker pool: nil processor")
)
