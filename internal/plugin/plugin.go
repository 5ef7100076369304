// Package plugin defines the stage contract of the processing graph and
// the dispatch machinery shared by every stage.
//
// A stage receives frames through the Callback interface, transforms or
// terminally consumes them, and pushes derived frames to the downstream
// targets registered in its connection registry. The Base type carries
// the registry, the per-instance lock, fault isolation and the
// processed/dropped counters so concrete plugins only implement frame
// handling and configuration.
package plugin

import (
	"errors"
	"fmt"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
)

var (
	// ErrProcessingFault marks a failure confined to a single frame.
	// The frame is dropped and the pipeline continues.
	ErrProcessingFault = errors.New("plugin: processing fault")

	// ErrDuplicateTarget is returned when connecting a downstream name
	// that is already registered.
	ErrDuplicateTarget = errors.New("plugin: duplicate target")

	// ErrUnknownTarget is returned when disconnecting a downstream name
	// that is not registered.
	ErrUnknownTarget = errors.New("plugin: unknown target")

	// ErrUnknownFactory is returned when creating a plugin from an
	// unregistered factory index.
	ErrUnknownFactory = errors.New("plugin: unknown factory")
)

// Callback is the capability a stage implements to receive a Frame
// asynchronously. Ownership of the Frame transfers with the call.
type Callback interface {
	OnFrame(f *frame.Frame)
}

// Version is the three-part version of a plugin implementation.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String formats the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Plugin is one named stage of the processing graph.
type Plugin interface {
	Callback

	// Name returns the unique instance name.
	Name() string

	// Version returns the implementation version triple.
	Version() Version

	// Connect registers a downstream target under the given name.
	// Fails with ErrDuplicateTarget if the name is taken.
	Connect(name string, target Callback) error

	// Disconnect removes the named downstream target. Fails with
	// ErrUnknownTarget if the name is not registered.
	Disconnect(name string) error

	// Targets returns downstream target names in registration order.
	Targets() []string

	// Configure applies a key to typed-value document. Unknown keys are
	// ignored per key. Out-of-range values are clamped and the clamp is
	// reported in the reply; the request still succeeds.
	Configure(req, reply *ipc.Message) error

	// Status reports current (not commanded) parameters into reply.
	// Never mutates plugin state.
	Status(reply *ipc.Message)

	// ProcessedFrames returns the number of frames handled successfully.
	ProcessedFrames() uint64

	// DroppedFrames returns the number of frames dropped on faults.
	DroppedFrames() uint64
}

// Handler is the processing hook a concrete plugin implements. It is
// invoked with the per-instance lock held and must never push frames
// itself; derived frames are returned and pushed by the Base after the
// lock is released. Returning the input frame transfers its ownership
// downstream; otherwise the Base releases the input when the call
// returns.
type Handler interface {
	ProcessFrame(f *frame.Frame) ([]*frame.Frame, error)
}

// Configurer is implemented by plugins that accept configuration keys
// beyond the connection-changing ones. ConfigureParams runs under the
// instance lock via Base.Configure; plugins must not define their own
// Configure method, which would bypass the lock and fault isolation.
type Configurer interface {
	ConfigureParams(req, reply *ipc.Message) error
}

// StatusReporter is implemented by plugins that expose parameters in
// status documents. ReportStatus runs under the instance lock via
// Base.Status.
type StatusReporter interface {
	ReportStatus(reply *ipc.Message)
}

// Flusher is implemented by terminal plugins holding external resources
// that must be drained when acquisition stops.
type Flusher interface {
	Flush() error
}

// Closer is implemented by plugins that own goroutines or file handles
// outliving individual frames. The controller closes such plugins on
// unload and at shutdown; a closed plugin must not receive frames.
type Closer interface {
	Close() error
}
