// Package offsetadjust rewrites frame numbers by a configured offset so
// downstream writers see a zero-based (or otherwise shifted) sequence
// regardless of where the detector's hardware counter started.
package offsetadjust

import (
	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/pkg/log"
)

// ConfigOffset is the configuration key holding the signed offset added
// to every frame number.
const ConfigOffset = "offset"

var pluginVersion = plugin.Version{Major: 1, Minor: 0, Patch: 0}

// Plugin adjusts the frame number of every passing frame. The commanded
// offset goes live at the first frame of each new acquisition so the
// numbering stays consistent within one run.
type Plugin struct {
	*plugin.Base

	commandedOffset    int64
	liveOffset         int64
	currentAcquisition string
	seen               bool
}

// New creates an offset adjustment instance.
func New(name string, logger log.Logger) *Plugin {
	p := &Plugin{}
	p.Base = plugin.NewBase(name, pluginVersion, p, logger)
	return p
}

// NewFactory returns the plugin factory for registry registration.
func NewFactory() plugin.Factory {
	return func(name string, logger log.Logger) (plugin.Plugin, error) {
		return New(name, logger), nil
	}
}

// ProcessFrame shifts the frame number in place and forwards the same
// frame. Called under the instance lock.
func (p *Plugin) ProcessFrame(f *frame.Frame) ([]*frame.Frame, error) {
	if !p.seen || f.AcquisitionID() != p.currentAcquisition {
		p.liveOffset = p.commandedOffset
		p.currentAcquisition = f.AcquisitionID()
		p.seen = true
		p.Logger().Debug("offset adjustment reset",
			log.String("plugin", p.Name()),
			log.String("acquisition", p.currentAcquisition),
			log.Int64("offset", p.liveOffset),
		)
	}
	f.SetFrameNumber(uint64(int64(f.FrameNumber()) + p.liveOffset))
	return []*frame.Frame{f}, nil
}

// ConfigureParams accepts the offset key; other keys are ignored.
func (p *Plugin) ConfigureParams(req, reply *ipc.Message) error {
	if off, ok := req.GetInt(ConfigOffset); ok {
		p.commandedOffset = int64(off)
	}
	return nil
}

// ReportStatus reports the live offset.
func (p *Plugin) ReportStatus(reply *ipc.Message) {
	reply.SetParam(p.Name()+"/offset", int(p.liveOffset))
	reply.SetParam(p.Name()+"/acquisition", p.currentAcquisition)
}
