// Package controller owns plugin lifecycle, graph wiring and
// acquisition state.
//
// The Controller instantiates plugins from a factory registry, wires
// their downstream registries into the processing graph, routes
// configuration and status documents, and drives the acquisition state
// machine. Control requests are serialised on one lock; frame delivery
// never takes that lock.
package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/internal/pool"
	"github.com/dw96/odin-data/pkg/log"
)

// EntrySource is the reserved source name wiring a plugin to the ingest
// boundary. Connecting a plugin to EntrySource makes it an entry plugin
// receiving frames directly from the ingest worker.
const EntrySource = "ingest"

// ErrConfigurationFailed marks a structural request that was rejected
// whole: unknown names, duplicate names, or an attempt to change the
// graph while acquisition is running. State is unchanged.
var ErrConfigurationFailed = errors.New("controller: configuration failed")

// ErrBusy is the running-acquisition rejection for structural changes.
var ErrBusy = fmt.Errorf("%w: acquisition running", ErrConfigurationFailed)

// Controller administers the pipeline graph and acquisition lifecycle.
type Controller struct {
	mu       sync.Mutex // serialises control requests
	lc       *lifecycle
	registry *plugin.Registry
	pool     *pool.BlockPool
	logger   log.Logger

	plugins map[string]plugin.Plugin
	order   []string // load order

	entry *plugin.Base

	drain   func() // waits for dispatched frames to finish traversal
	onStart func() // starts the ingest boundary after Idle -> Running
	onStop  func() // stops the ingest boundary after Stopping -> Idle

	startedAt    time.Time
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// entryDispatch forwards ingest frames unchanged; the Base around it
// provides ordered fan-out to the entry plugins and the received-frame
// counter.
type entryDispatch struct{}

func (entryDispatch) ProcessFrame(f *frame.Frame) ([]*frame.Frame, error) {
	return []*frame.Frame{f}, nil
}

// New creates a Controller in StateIdle around the given factory
// registry and block pool.
func New(registry *plugin.Registry, bp *pool.BlockPool, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Controller{
		lc:         newLifecycle(logger),
		registry:   registry,
		pool:       bp,
		logger:     logger,
		plugins:    make(map[string]plugin.Plugin),
		entry:      plugin.NewBase(EntrySource, plugin.Version{Major: 1}, entryDispatch{}, logger),
		shutdownCh: make(chan struct{}),
	}
}

// State returns the current acquisition state.
func (c *Controller) State() State {
	return c.lc.State()
}

// OnFrame delivers one ingest frame to every entry plugin. This is the
// frame path; it never takes the control lock.
func (c *Controller) OnFrame(f *frame.Frame) {
	c.entry.OnFrame(f)
}

// SetDrain installs the hook Stop uses to wait for dispatched frames to
// finish traversal before flushing terminal plugins.
func (c *Controller) SetDrain(drain func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drain = drain
}

// SetOnStart installs the hook Start invokes once the acquisition is
// Running, so the ingest boundary opens for every start path, whether
// the request arrived over the control channel or programmatically.
func (c *Controller) SetOnStart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStart = fn
}

// SetOnStop installs the hook Stop invokes once the acquisition has
// drained, flushed and returned to Idle.
func (c *Controller) SetOnStop(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStop = fn
}

// structural runs fn as a structural control request: rejected while
// running, otherwise bracketed by the Configuring state.
func (c *Controller) structural(reason string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.lc.State() {
	case StateRunning, StateStopping:
		return ErrBusy
	}
	if err := c.lc.transitionTo(StateConfiguring, reason); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationFailed, err)
	}
	err := fn()
	if terr := c.lc.transitionTo(StateIdle, reason+" complete"); terr != nil {
		c.logger.Error("failed to leave configuring state", log.Err(terr))
	}
	return err
}

// LoadPlugin instantiates the plugin factory registered under index and
// registers the instance under name. Fails if the name exists or the
// factory cannot be resolved.
func (c *Controller) LoadPlugin(name, index string) error {
	return c.structural("load "+name, func() error {
		if name == EntrySource {
			return fmt.Errorf("%w: %q is reserved", ErrConfigurationFailed, name)
		}
		if _, ok := c.plugins[name]; ok {
			return fmt.Errorf("%w: plugin %q already loaded", ErrConfigurationFailed, name)
		}
		p, err := c.registry.Create(index, name, c.logger)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfigurationFailed, err)
		}
		c.plugins[name] = p
		c.order = append(c.order, name)
		c.logger.Info("loaded plugin",
			log.String("name", name),
			log.String("index", index),
			log.String("version", p.Version().String()),
		)
		return nil
	})
}

// UnloadPlugin removes the named plugin and severs every connection to
// and from it.
func (c *Controller) UnloadPlugin(name string) error {
	return c.structural("unload "+name, func() error {
		if _, ok := c.plugins[name]; !ok {
			return fmt.Errorf("%w: unknown plugin %q", ErrConfigurationFailed, name)
		}
		c.closeLocked(name)
		delete(c.plugins, name)
		for i, n := range c.order {
			if n == name {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		// Sever dangling inbound edges.
		_ = c.entry.Disconnect(name)
		for _, p := range c.plugins {
			_ = p.Disconnect(name)
		}
		c.logger.Info("unloaded plugin", log.String("name", name))
		return nil
	})
}

// Connect wires dst into src's downstream registry. src may be
// EntrySource to attach dst to the ingest boundary.
func (c *Controller) Connect(src, dst string) error {
	return c.structural("connect "+src+"->"+dst, func() error {
		return c.connectLocked(src, dst)
	})
}

// Disconnect removes dst from src's downstream registry.
func (c *Controller) Disconnect(src, dst string) error {
	return c.structural("disconnect "+src+"->"+dst, func() error {
		return c.disconnectLocked(src, dst)
	})
}

func (c *Controller) connectLocked(src, dst string) error {
	target, ok := c.plugins[dst]
	if !ok {
		return fmt.Errorf("%w: unknown plugin %q", ErrConfigurationFailed, dst)
	}
	source, err := c.source(src)
	if err != nil {
		return err
	}
	if err := source.Connect(dst, target); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationFailed, err)
	}
	return nil
}

func (c *Controller) disconnectLocked(src, dst string) error {
	source, err := c.source(src)
	if err != nil {
		return err
	}
	if err := source.Disconnect(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationFailed, err)
	}
	return nil
}

// source resolves a connection source: the ingest boundary or a loaded
// plugin.
func (c *Controller) source(name string) (interface {
	Connect(string, plugin.Callback) error
	Disconnect(string) error
}, error) {
	if name == EntrySource {
		return c.entry, nil
	}
	p, ok := c.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown plugin %q", ErrConfigurationFailed, name)
	}
	return p, nil
}

// Configure routes a configuration document to the named plugin.
// Connection-changing keys ("connect", "disconnect") mutate the graph
// and are rejected while running; parameter keys are always routed to
// the plugin.
func (c *Controller) Configure(name string, req, reply *ipc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.plugins[name]
	if !ok {
		return fmt.Errorf("%w: unknown plugin %q", ErrConfigurationFailed, name)
	}

	state := c.lc.State()
	idle := state == StateIdle
	if idle {
		if err := c.lc.transitionTo(StateConfiguring, "configure "+name); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigurationFailed, err)
		}
		defer func() {
			if terr := c.lc.transitionTo(StateIdle, "configure "+name+" complete"); terr != nil {
				c.logger.Error("failed to leave configuring state", log.Err(terr))
			}
		}()
	}

	if dst, ok := req.GetString("connect"); ok {
		if !idle {
			return ErrBusy
		}
		if err := c.connectLocked(name, dst); err != nil {
			return err
		}
	}
	if dst, ok := req.GetString("disconnect"); ok {
		if !idle {
			return ErrBusy
		}
		if err := c.disconnectLocked(name, dst); err != nil {
			return err
		}
	}

	return p.Configure(req, reply)
}

// Status aggregates every plugin's status plus controller-level
// counters into reply. Read-only; no state transition.
func (c *Controller) Status(reply *ipc.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	received := c.entry.ProcessedFrames()
	var dropped uint64
	for _, p := range c.plugins {
		dropped += p.DroppedFrames()
	}

	reply.SetParam("state", c.lc.State().String())
	reply.SetParam("frames_received", int(received))
	reply.SetParam("frames_dropped", int(dropped))
	reply.SetParam("throughput", c.throughput(received))

	ps := c.pool.Stats()
	reply.SetParam("pool/blocks_in_use", ps.BlocksInUse)
	reply.SetParam("pool/blocks_free", ps.BlocksFree)
	reply.SetParam("pool/retained_bytes", int(ps.RetainedBytes))

	for _, name := range c.order {
		c.plugins[name].Status(reply)
	}
}

// throughput returns frames per second since acquisition start, zero
// when not running.
func (c *Controller) throughput(received uint64) float64 {
	if c.lc.State() != StateRunning || c.startedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(c.startedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(received) / elapsed
}

// Start begins an acquisition: Idle -> Running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lc.transitionTo(StateRunning, "start"); err != nil {
		return err
	}
	c.startedAt = time.Now()
	if c.onStart != nil {
		c.onStart()
	}
	return nil
}

// Stop ends an acquisition: Running -> Stopping -> Idle. Stopping is a
// drain point, not preemption: dispatched frames finish traversal, then
// terminal plugins are flushed and their resources released.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lc.transitionTo(StateStopping, "stop"); err != nil {
		return err
	}
	if c.drain != nil {
		c.drain()
	}
	for _, name := range c.order {
		if fl, ok := c.plugins[name].(plugin.Flusher); ok {
			if err := fl.Flush(); err != nil {
				c.logger.Error("plugin flush failed",
					log.String("plugin", name),
					log.Err(err),
				)
			}
		}
	}
	if err := c.lc.transitionTo(StateIdle, "stop complete"); err != nil {
		return err
	}
	if c.onStop != nil {
		c.onStop()
	}
	return nil
}

// closeLocked releases the named plugin's long-lived resources if it
// owns any.
func (c *Controller) closeLocked(name string) {
	cl, ok := c.plugins[name].(plugin.Closer)
	if !ok {
		return
	}
	if err := cl.Close(); err != nil {
		c.logger.Error("plugin close failed",
			log.String("plugin", name),
			log.Err(err),
		)
	}
}

// Shutdown stops any running acquisition, closes every plugin holding
// long-lived resources and signals process exit.
func (c *Controller) Shutdown() error {
	if c.lc.State() == StateRunning {
		if err := c.Stop(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	for _, name := range c.order {
		c.closeLocked(name)
	}
	c.mu.Unlock()
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })
	return nil
}

// ShutdownRequested is closed once a shutdown request has been handled.
func (c *Controller) ShutdownRequested() <-chan struct{} {
	return c.shutdownCh
}

// HandleRequest dispatches one control-channel request and builds the
// reply. Failures become nack replies; the controller itself never
// faults on a bad request.
func (c *Controller) HandleRequest(req *ipc.Message) *ipc.Message {
	reply := ipc.AckReply(req)
	var err error

	switch req.Value {
	case ipc.OpLoad:
		name, _ := req.GetString("name")
		index, _ := req.GetString("index")
		err = c.LoadPlugin(name, index)
	case ipc.OpConnect:
		src, _ := req.GetString("source")
		dst, _ := req.GetString("destination")
		err = c.Connect(src, dst)
	case ipc.OpDisconnect:
		src, _ := req.GetString("source")
		dst, _ := req.GetString("destination")
		err = c.Disconnect(src, dst)
	case ipc.OpConfigure:
		err = c.Configure(req.Target, req, reply)
	case ipc.OpStatus:
		c.Status(reply)
	case ipc.OpStart:
		err = c.Start()
	case ipc.OpStop:
		err = c.Stop()
	case ipc.OpShutdown:
		err = c.Shutdown()
	default:
		err = fmt.Errorf("%w: unknown operation %q", ErrConfigurationFailed, req.Value)
	}

	if err != nil {
		c.logger.Warn("control request failed",
			log.String("op", req.Value),
			log.String("target", req.Target),
			log.Err(err),
		)
		return ipc.NackReply(req, err.Error())
	}
	return reply
}
