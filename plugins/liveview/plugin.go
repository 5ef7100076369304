// Package liveview publishes snapshots of frames passing through the
// graph to in-process channel subscribers, for monitoring displays.
//
// The plugin is a pure observer: every frame is forwarded downstream
// unchanged, and a copy of every Nth frame is offered to each
// subscriber with a non-blocking send. A slow subscriber loses frames
// rather than stalling the pipeline; drops are counted per subscriber.
package liveview

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/pkg/log"
)

// ConfigInterval selects how many frames pass between published views.
const ConfigInterval = "interval"

var (
	ErrSubscriberExists   = errors.New("liveview: subscriber id already registered")
	ErrSubscriberNotFound = errors.New("liveview: unknown subscriber id")
	ErrNilChannel         = errors.New("liveview: nil subscriber channel")
)

var pluginVersion = plugin.Version{Major: 1, Minor: 0, Patch: 0}

// View is a self-contained snapshot of one frame. The payload is a
// copy; holding a View never pins a pool block.
type View struct {
	DatasetName   string
	FrameNumber   uint64
	AcquisitionID string
	DataType      frame.DataType
	Dimensions    []uint64
	Data          []byte
}

// SubscriberStats counts delivery outcomes for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	ch      chan<- View
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Plugin forwards frames while publishing sampled views.
type Plugin struct {
	*plugin.Base

	// interval and the frame counter are touched only under the
	// instance lock that brackets ProcessFrame and ConfigureParams.
	commandedInterval uint64
	liveInterval      uint64
	sinceLast         uint64

	smu       sync.RWMutex
	subs      map[string]*subscriber
	published atomic.Uint64
}

// New creates a live view instance publishing every frame by default.
func New(name string, logger log.Logger) *Plugin {
	p := &Plugin{
		commandedInterval: 1,
		liveInterval:      1,
		subs:              make(map[string]*subscriber),
	}
	p.Base = plugin.NewBase(name, pluginVersion, p, logger)
	return p
}

// NewFactory returns the plugin factory for registry registration.
func NewFactory() plugin.Factory {
	return func(name string, logger log.Logger) (plugin.Plugin, error) {
		return New(name, logger), nil
	}
}

// Subscribe registers a view channel under id. Sends are non-blocking;
// size the channel for the consumer's latency.
func (p *Plugin) Subscribe(id string, ch chan<- View) error {
	if ch == nil {
		return ErrNilChannel
	}
	p.smu.Lock()
	defer p.smu.Unlock()
	if _, exists := p.subs[id]; exists {
		return ErrSubscriberExists
	}
	p.subs[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes a subscriber. The channel is not closed; the
// subscriber owns it.
func (p *Plugin) Unsubscribe(id string) error {
	p.smu.Lock()
	defer p.smu.Unlock()
	if _, exists := p.subs[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(p.subs, id)
	return nil
}

// Stats reports delivery counters for one subscriber.
func (p *Plugin) Stats(id string) (SubscriberStats, error) {
	p.smu.RLock()
	defer p.smu.RUnlock()
	sub, exists := p.subs[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}, nil
}

// ProcessFrame forwards the frame unchanged and publishes a view when
// the sampling interval has elapsed.
func (p *Plugin) ProcessFrame(f *frame.Frame) ([]*frame.Frame, error) {
	p.liveInterval = p.commandedInterval
	p.sinceLast++
	if p.sinceLast >= p.liveInterval {
		p.sinceLast = 0
		p.publish(f)
	}
	return []*frame.Frame{f}, nil
}

func (p *Plugin) publish(f *frame.Frame) {
	p.smu.RLock()
	defer p.smu.RUnlock()
	if len(p.subs) == 0 {
		return
	}

	view := View{
		DatasetName:   f.DatasetName(),
		FrameNumber:   f.FrameNumber(),
		AcquisitionID: f.AcquisitionID(),
		DataType:      f.DataType(),
		Dimensions:    f.Dimensions(),
		Data:          append([]byte(nil), f.Data()...),
	}
	p.published.Add(1)

	for _, sub := range p.subs {
		select {
		case sub.ch <- view:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// ConfigureParams accepts the sampling interval. Values below 1 are
// clamped to 1 with a warning.
func (p *Plugin) ConfigureParams(req, reply *ipc.Message) error {
	if interval, ok := req.GetInt(ConfigInterval); ok {
		if interval < 1 {
			reply.SetWarning(ConfigInterval, "interval below 1 clamped to 1")
			interval = 1
		}
		p.commandedInterval = uint64(interval)
	}
	return nil
}

// ReportStatus reports the sampling interval and delivery totals.
func (p *Plugin) ReportStatus(reply *ipc.Message) {
	name := p.Name()
	var dropped uint64
	p.smu.RLock()
	subscribers := len(p.subs)
	for _, sub := range p.subs {
		dropped += sub.dropped.Load()
	}
	p.smu.RUnlock()
	reply.SetParam(name+"/interval", int(p.liveInterval))
	reply.SetParam(name+"/subscribers", subscribers)
	reply.SetParam(name+"/frames_published", int(p.published.Load()))
	reply.SetParam(name+"/frames_dropped_to_subscribers", int(dropped))
}
