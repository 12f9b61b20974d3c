// ABOUTME: Session and worker state enumerations
// ABOUTME: Names used in logs, errors and the stress dashboard
package session

import "fmt"

// State is the lifecycle state of a session
type State int

const (
	StateCreated State = iota
	StateConfigured
	StatePrepared
	StateRunning
	StateFlushed
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateFlushed:
		return "flushed"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WorkerState is the lifecycle state of a producer or consumer
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerDraining
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerDraining:
		return "draining"
	case WorkerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int(s))
	}
}
