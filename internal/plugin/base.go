package plugin

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/pkg/log"
)

// Base provides the dispatch half of a plugin: the downstream registry,
// the per-instance lock, fault isolation and frame accounting. Concrete
// plugins embed *Base and implement Handler.
//
// The lock serialises ProcessFrame against Configure so a configuration
// change is never observed half-applied. It is held for the duration of
// one call only and never across a push to a downstream target.
type Base struct {
	name    string
	version Version
	handler Handler
	logger  log.Logger

	mu      sync.Mutex
	targets []target

	processed atomic.Uint64
	dropped   atomic.Uint64
}

type target struct {
	name string
	cb   Callback
}

// NewBase creates the dispatch base for a plugin instance.
func NewBase(name string, version Version, handler Handler, logger log.Logger) *Base {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Base{
		name:    name,
		version: version,
		handler: handler,
		logger:  logger,
	}
}

// Name returns the unique instance name.
func (b *Base) Name() string { return b.name }

// Version returns the implementation version triple.
func (b *Base) Version() Version { return b.version }

// Connect registers a downstream target. Target keys are unique;
// delivery order follows registration order.
func (b *Base) Connect(name string, cb Callback) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.targets {
		if t.name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateTarget, name)
		}
	}
	b.targets = append(b.targets, target{name: name, cb: cb})
	b.logger.Info("connected downstream target",
		log.String("plugin", b.name),
		log.String("target", name),
	)
	return nil
}

// Disconnect removes the named downstream target.
func (b *Base) Disconnect(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, t := range b.targets {
		if t.name == name {
			b.targets = append(b.targets[:i], b.targets[i+1:]...)
			b.logger.Info("disconnected downstream target",
				log.String("plugin", b.name),
				log.String("target", name),
			)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownTarget, name)
}

// Targets returns downstream target names in registration order.
func (b *Base) Targets() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, len(b.targets))
	for i, t := range b.targets {
		names[i] = t.name
	}
	return names
}

// OnFrame receives a frame from an upstream producer. The handler runs
// under the instance lock; derived frames are pushed afterwards. Any
// fault is caught here, logged, and converted into a dropped frame for
// this plugin only.
func (b *Base) OnFrame(f *frame.Frame) {
	derived, err := b.process(f)
	if err != nil {
		b.dropped.Add(1)
		b.logger.Error("frame dropped",
			log.String("plugin", b.name),
			log.Uint64("frame", f.FrameNumber()),
			log.String("acquisition", f.AcquisitionID()),
			log.Err(err),
		)
		f.Release()
		return
	}
	b.processed.Add(1)

	forwarded := false
	for _, d := range derived {
		if d == f {
			forwarded = true
		}
		b.Push(d)
	}
	if !forwarded {
		f.Release()
	}
}

// process invokes the handler under the lock, converting panics into
// processing faults.
func (b *Base) process(f *frame.Frame) (derived []*frame.Frame, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			derived = nil
			err = fmt.Errorf("%w: panic: %v", ErrProcessingFault, r)
		}
	}()
	return b.handler.ProcessFrame(f)
}

// Push delivers a frame to every registered downstream target in
// registration order, synchronously on the calling goroutine. Each
// target owns the frame it receives and may mutate it, so the first
// target takes the caller's frame and every further target takes an
// independent copy, all taken before any delivery. With no targets the
// frame is released. The instance lock is never held across delivery.
func (b *Base) Push(f *frame.Frame) {
	b.mu.Lock()
	snapshot := make([]target, len(b.targets))
	copy(snapshot, b.targets)
	b.mu.Unlock()

	if len(snapshot) == 0 {
		f.Release()
		return
	}

	frames := make([]*frame.Frame, len(snapshot))
	frames[0] = f
	for i := 1; i < len(snapshot); i++ {
		c, err := f.Clone()
		if err != nil {
			b.dropped.Add(1)
			b.logger.Error("fan-out copy failed",
				log.String("plugin", b.name),
				log.String("target", snapshot[i].name),
				log.Uint64("frame", f.FrameNumber()),
				log.Err(err),
			)
			continue
		}
		frames[i] = c
	}
	for i, t := range snapshot {
		if frames[i] == nil {
			continue
		}
		t.cb.OnFrame(frames[i])
	}
}

// Configure applies connection-agnostic configuration via the handler,
// serialised against frame processing. A fault inside the handler fails
// only this request; previously commanded state is untouched.
func (b *Base) Configure(req, reply *ipc.Message) (err error) {
	cfg, ok := b.handler.(Configurer)
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("configure %s: panic: %v", b.name, r)
		}
	}()
	return cfg.ConfigureParams(req, reply)
}

// Status reports the common frame counters and, when the handler
// reports parameters of its own, merges those in. Keys are prefixed
// with the instance name the way aggregated status documents expect.
func (b *Base) Status(reply *ipc.Message) {
	reply.SetParam(b.name+"/version", b.version.String())
	reply.SetParam(b.name+"/frames_processed", int(b.processed.Load()))
	reply.SetParam(b.name+"/frames_dropped", int(b.dropped.Load()))
	if sr, ok := b.handler.(StatusReporter); ok {
		b.mu.Lock()
		sr.ReportStatus(reply)
		b.mu.Unlock()
	}
}

// ProcessedFrames returns the number of successfully handled frames.
func (b *Base) ProcessedFrames() uint64 { return b.processed.Load() }

// DroppedFrames returns the number of frames dropped on faults.
func (b *Base) DroppedFrames() uint64 { return b.dropped.Load() }

// Logger returns the injected logger for use by concrete plugins.
func (b *Base) Logger() log.Logger { return b.logger }
