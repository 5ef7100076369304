package controller

import (
	"errors"
	"sync"

	"github.com/dw96/odin-data/pkg/log"
)

// ErrInvalidTransition is returned for lifecycle calls that do not
// apply in the current state, e.g. Stop while Idle.
var ErrInvalidTransition = errors.New("controller: invalid state transition")

// State is the acquisition lifecycle state.
type State int

const (
	// StateIdle means no active acquisition; the graph is freely
	// reconfigurable.
	StateIdle State = iota

	// StateConfiguring is entered for the duration of a control
	// request and exits back to Idle when the request completes.
	StateConfiguring

	// StateRunning means frames are flowing; structural changes are
	// rejected, parameter-only configuration is still accepted.
	StateRunning

	// StateStopping drains in-flight frames and flushes terminal
	// plugins before returning to Idle.
	StateStopping
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConfiguring:
		return "Configuring"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// lifecycle guards the acquisition state machine. Control requests are
// serialised by the Controller's request lock; the lifecycle lock only
// protects the state word so frame-path readers never contend on the
// request lock.
type lifecycle struct {
	mu     sync.RWMutex
	state  State
	logger log.Logger
}

func newLifecycle(logger log.Logger) *lifecycle {
	return &lifecycle{state: StateIdle, logger: logger}
}

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// transitionTo moves to a new state, validating the edge.
func (l *lifecycle) transitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state

	valid := false
	switch prev {
	case StateIdle:
		valid = next == StateConfiguring || next == StateRunning
	case StateConfiguring:
		valid = next == StateIdle
	case StateRunning:
		valid = next == StateStopping
	case StateStopping:
		valid = next == StateIdle
	}
	if !valid {
		l.mu.Unlock()
		return ErrInvalidTransition
	}

	l.state = next
	l.mu.Unlock()

	l.logger.Info("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}
