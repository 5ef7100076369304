// Package ingest owns the frame reception boundary.
//
// A single dedicated worker goroutine takes fully populated frames off
// a bounded queue and delivers them to the entry callback, so the
// upstream producer never traverses the graph itself and is never
// stalled by it. Frame order on the queue is delivery order. The queue
// outlives individual acquisitions: Start and Stop may alternate for
// the lifetime of the process.
package ingest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/pkg/log"
)

// ErrQueueFull is returned by Submit when the ingest queue is at
// capacity. The frame is released; the producer decides whether that
// matters.
var ErrQueueFull = errors.New("ingest: queue full")

// ErrNotRunning is returned by Submit before Start or after Stop.
var ErrNotRunning = errors.New("ingest: not running")

// Ingestor receives frames from the acquisition source and hands them
// to the entry plugin's callback on its own worker goroutine.
type Ingestor struct {
	sink   plugin.Callback
	logger log.Logger

	// mu guards running, pending and the enqueue side of queue. The
	// queue channel itself is created once and never closed; stopping
	// is signalled through done so a Submit racing a Stop can never
	// hit a closed channel.
	mu      sync.Mutex
	idle    *sync.Cond
	queue   chan *frame.Frame
	done    chan struct{}
	running bool
	pending int
	wg      sync.WaitGroup

	received atomic.Uint64
	dropped  atomic.Uint64
}

// New creates an Ingestor delivering to sink with the given queue
// depth.
func New(sink plugin.Callback, depth int, logger log.Logger) *Ingestor {
	if depth <= 0 {
		depth = 128
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	i := &Ingestor{
		sink:   sink,
		queue:  make(chan *frame.Frame, depth),
		logger: logger,
	}
	i.idle = sync.NewCond(&i.mu)
	return i
}

// Start launches the ingest worker. Safe to call again after Stop;
// frames still queued from the previous acquisition are delivered
// first.
func (i *Ingestor) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return
	}
	i.running = true
	i.done = make(chan struct{})
	i.wg.Add(1)
	go i.run(i.done)
}

func (i *Ingestor) run(done chan struct{}) {
	defer i.wg.Done()
	for {
		select {
		case f := <-i.queue:
			i.sink.OnFrame(f)
			i.finish()
		case <-done:
			return
		}
	}
}

// finish marks one frame as fully traversed, waking drain waiters on
// the last one.
func (i *Ingestor) finish() {
	i.mu.Lock()
	i.pending--
	if i.pending == 0 {
		i.idle.Broadcast()
	}
	i.mu.Unlock()
}

// Submit enqueues one frame for delivery. Non-blocking: when the queue
// is full the frame is released and ErrQueueFull returned, keeping the
// producer from stalling.
func (i *Ingestor) Submit(f *frame.Frame) error {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		f.Release()
		return ErrNotRunning
	}

	select {
	case i.queue <- f:
		i.pending++
		i.received.Add(1)
		i.mu.Unlock()
		return nil
	default:
		i.dropped.Add(1)
		i.mu.Unlock()
		i.logger.Warn("ingest queue full, frame dropped",
			log.Uint64("frame", f.FrameNumber()),
			log.String("acquisition", f.AcquisitionID()),
		)
		f.Release()
		return ErrQueueFull
	}
}

// Drain blocks until every submitted frame has finished traversal.
// Used as the controller's stop drain point.
func (i *Ingestor) Drain() {
	i.mu.Lock()
	for i.pending > 0 {
		i.idle.Wait()
	}
	i.mu.Unlock()
}

// Stop terminates the worker after the frame it is delivering, leaving
// the queue intact for the next Start. Safe to call more than once.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	close(i.done)
	i.mu.Unlock()

	i.wg.Wait()
}

// Received returns the number of frames accepted onto the queue.
func (i *Ingestor) Received() uint64 { return i.received.Load() }

// Dropped returns the number of frames rejected by a full queue.
func (i *Ingestor) Dropped() uint64 { return i.dropped.Load() }

// NewAcquisitionID generates an opaque identifier for a new
// acquisition run.
func NewAcquisitionID() string {
	return uuid.NewString()
}
