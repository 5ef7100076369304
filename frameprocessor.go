// Package odindata provides an embeddable frame processing engine for
// detector data acquisition.
//
// Example usage:
//
//	cfg := odindata.DefaultConfig()
//	fp, err := odindata.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := fp.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer fp.Stop()
//
//	f := fp.NewFrame("data")
//	f.SetFrameNumber(0)
//	_ = f.CopyData(payload)
//	_ = fp.Submit(f)
package odindata

import (
	"fmt"

	"github.com/dw96/odin-data/internal/config"
	"github.com/dw96/odin-data/internal/controller"
	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ingest"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/internal/pool"
	"github.com/dw96/odin-data/pkg/log"
	"github.com/dw96/odin-data/plugins/blosc"
	"github.com/dw96/odin-data/plugins/filewriter"
	"github.com/dw96/odin-data/plugins/liveview"
	"github.com/dw96/odin-data/plugins/offsetadjust"
)

// Config holds the configuration for the frame processor.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = config.Config

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return config.DefaultConfig()
}

// NewAcquisitionID generates a fresh unique acquisition identifier.
func NewAcquisitionID() string {
	return ingest.NewAcquisitionID()
}

// FrameProcessor owns one processing pipeline: the block pool, the
// ingest queue, the plugin graph and its controller. Use New() to
// create an instance, then Start() to begin accepting frames.
type FrameProcessor struct {
	config   config.Config
	opts     options
	registry *plugin.Registry
	pool     *pool.BlockPool
	ctl      *controller.Controller
	ingestor *ingest.Ingestor
	logger   log.Logger
}

// New creates a frame processor from cfg. The configured plugins are
// loaded, connected and configured immediately; call Start() before
// submitting frames.
func New(cfg Config, opts ...Option) (*FrameProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	fp := &FrameProcessor{
		config:   cfg,
		opts:     o,
		registry: plugin.NewRegistry(),
		pool:     pool.NewBlockPool(cfg.PoolLimitBytes, o.logger),
		logger:   o.logger,
	}
	fp.ctl = controller.New(fp.registry, fp.pool, o.logger)
	fp.ingestor = ingest.New(fp.ctl, cfg.IngestQueueDepth, o.logger)
	// The controller owns the acquisition lifecycle; the ingest worker
	// follows it through these hooks, so a start or stop arriving over
	// the control channel opens and closes the ingest boundary exactly
	// like a programmatic one.
	fp.ctl.SetDrain(fp.ingestor.Drain)
	fp.ctl.SetOnStart(fp.ingestor.Start)
	fp.ctl.SetOnStop(fp.ingestor.Stop)

	if err := fp.registerFactories(); err != nil {
		return nil, err
	}
	if err := fp.applyLayout(); err != nil {
		return nil, err
	}

	return fp, nil
}

// registerFactories installs the built-in plugin factories plus any
// registered through WithFactory.
func (fp *FrameProcessor) registerFactories() error {
	builtin := map[string]plugin.Factory{
		"blosc":        blosc.NewFactory(fp.pool),
		"offsetadjust": offsetadjust.NewFactory(),
		"filewriter":   filewriter.NewFactory(),
		"liveview":     liveview.NewFactory(),
	}
	for index, factory := range builtin {
		if err := fp.registry.Register(index, factory); err != nil {
			return err
		}
	}
	for index, factory := range fp.opts.factories {
		if err := fp.registry.Register(index, factory); err != nil {
			return fmt.Errorf("register factory %q: %w", index, err)
		}
	}
	return nil
}

// applyLayout builds the pipeline described by the configuration.
func (fp *FrameProcessor) applyLayout() error {
	for _, p := range fp.config.Plugins {
		if err := fp.ctl.LoadPlugin(p.Name, p.Index); err != nil {
			return fmt.Errorf("load plugin %q: %w", p.Name, err)
		}
	}
	for _, conn := range fp.config.Connections {
		if err := fp.ctl.Connect(conn.Source, conn.Destination); err != nil {
			return fmt.Errorf("connect %s to %s: %w", conn.Source, conn.Destination, err)
		}
	}
	return fp.ApplyParams(fp.config.Params)
}

// ApplyParams delivers configuration documents to their target
// plugins in order. Structural keys inside a document follow the same
// rules as the configure operation.
func (fp *FrameProcessor) ApplyParams(docs []config.ParamDoc) error {
	for _, doc := range docs {
		req := ipc.NewRequest(ipc.OpConfigure)
		req.Target = doc.Target
		for k, v := range doc.Params {
			req.SetParam(k, v)
		}
		reply := ipc.AckReply(req)
		if err := fp.ctl.Configure(doc.Target, req, reply); err != nil {
			return fmt.Errorf("configure %q: %w", doc.Target, err)
		}
	}
	return nil
}

// Start transitions the pipeline to acquiring and begins draining the
// ingest queue. Starting an already running pipeline is a no-op.
func (fp *FrameProcessor) Start() error {
	if fp.ctl.State() == controller.StateRunning {
		return nil
	}
	return fp.ctl.Start()
}

// Stop drains in-flight frames, flushes terminal plugins and returns
// the pipeline to idle. Stopping an idle pipeline is a no-op.
func (fp *FrameProcessor) Stop() error {
	if fp.ctl.State() != controller.StateRunning {
		return nil
	}
	return fp.ctl.Stop()
}

// NewFrame allocates an empty frame backed by the processor's block
// pool. The caller owns the returned frame until Submit accepts it.
func (fp *FrameProcessor) NewFrame(datasetName string) *frame.Frame {
	return frame.New(fp.pool, datasetName)
}

// Submit hands a frame to the pipeline. Ownership transfers on
// success; on failure the frame has already been released.
func (fp *FrameProcessor) Submit(f *frame.Frame) error {
	return fp.ingestor.Submit(f)
}

// Handle processes one control document and returns the reply.
func (fp *FrameProcessor) Handle(req *ipc.Message) *ipc.Message {
	return fp.ctl.HandleRequest(req)
}

// Controller exposes the pipeline controller, for serving the control
// API.
func (fp *FrameProcessor) Controller() *controller.Controller {
	return fp.ctl
}

// ShutdownRequested is closed after a shutdown control request.
func (fp *FrameProcessor) ShutdownRequested() <-chan struct{} {
	return fp.ctl.ShutdownRequested()
}
