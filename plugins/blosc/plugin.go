// Package blosc provides the compression stage of the processing
// graph. Frames are shuffled, compressed with the selected codec and
// re-emitted as derived frames carrying the original metadata plus a
// self-describing header.
//
// Configuration follows commanded-versus-live semantics: configure
// updates the commanded settings, which are copied into the live
// settings at the first frame of each new acquisition so a mid-run
// reconfiguration never changes the encoding inside one acquisition.
package blosc

import (
	"fmt"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/internal/pool"
	"github.com/dw96/odin-data/pkg/log"
)

// Configuration keys.
const (
	ConfigLevel      = "level"
	ConfigShuffle    = "shuffle"
	ConfigThreads    = "threads"
	ConfigCompressor = "compressor"
)

const (
	// maxThreads bounds the codec worker count.
	maxThreads = 8

	// defaultTypeSize is the element size assumed when a frame does
	// not declare its pixel type: 16-bit pixels, the dominant detector
	// format.
	defaultTypeSize = 2
)

var pluginVersion = plugin.Version{Major: 1, Minor: 1, Patch: 0}

// settings holds one coherent set of compression parameters.
type settings struct {
	compressor int
	level      int
	shuffle    int
	threads    int
}

func defaultSettings() settings {
	return settings{
		compressor: CompressorLZ4,
		level:      1,
		shuffle:    ShuffleBit,
		threads:    1,
	}
}

// Plugin compresses every received frame and pushes the compressed
// derivative downstream.
type Plugin struct {
	*plugin.Base
	pool *pool.BlockPool

	commanded          settings
	live               settings
	currentAcquisition string
}

// New creates a compression plugin instance drawing output buffers from
// the given pool.
func New(name string, bp *pool.BlockPool, logger log.Logger) *Plugin {
	p := &Plugin{
		pool:      bp,
		commanded: defaultSettings(),
		live:      defaultSettings(),
	}
	p.Base = plugin.NewBase(name, pluginVersion, p, logger)
	return p
}

// NewFactory returns the plugin factory for registry registration.
func NewFactory(bp *pool.BlockPool) plugin.Factory {
	return func(name string, logger log.Logger) (plugin.Plugin, error) {
		return New(name, bp, logger), nil
	}
}

// ProcessFrame compresses one frame. Called under the instance lock.
func (p *Plugin) ProcessFrame(src *frame.Frame) ([]*frame.Frame, error) {
	p.updateSettings(src.AcquisitionID())
	s := p.live

	typeSize := src.DataType().Size()
	if typeSize == 0 {
		typeSize = defaultTypeSize
	}
	uncompressed := src.DataSize()

	scratch := make([]byte, uncompressed+maxOverhead)
	shuffled := applyShuffle(s.shuffle, src.Data(), typeSize)
	payload, usedCodec, err := compress(s.compressor, s.level, s.threads, shuffled)
	if err != nil {
		return nil, fmt.Errorf("%w: %s compression failed on frame %d: %v",
			plugin.ErrProcessingFault, compressorName(s.compressor), src.FrameNumber(), err)
	}

	out := scratch
	if headerSize+len(payload) > len(scratch) {
		out = make([]byte, headerSize+len(payload))
	}
	out = out[:headerSize+len(payload)]
	putHeader(out, usedCodec, s.shuffle, typeSize, uint64(uncompressed))
	copy(out[headerSize:], payload)

	dest := frame.New(p.pool, src.DatasetName())
	if err := dest.CopyData(out); err != nil {
		return nil, fmt.Errorf("compress frame %d: %w", src.FrameNumber(), err)
	}
	dest.CopyMetadataFrom(src)
	dest.SetParameter("compressed_size", len(out))

	p.Logger().Debug("compressed frame",
		log.Uint64("frame", src.FrameNumber()),
		log.String("compressor", compressorName(usedCodec)),
		log.Int("uncompressed", uncompressed),
		log.Int("compressed", len(out)),
	)
	return []*frame.Frame{dest}, nil
}

// updateSettings copies the commanded settings into the live settings
// when the frame's acquisition id differs from the current one.
func (p *Plugin) updateSettings(acquisitionID string) {
	if acquisitionID == p.currentAcquisition {
		return
	}
	p.Logger().Info("new acquisition detected",
		log.String("plugin", p.Name()),
		log.String("acquisition", acquisitionID),
		log.String("compressor", compressorName(p.commanded.compressor)),
		log.Int("level", p.commanded.level),
	)
	p.live = p.commanded
	p.currentAcquisition = acquisitionID
}

// ConfigureParams applies the compression parameter document. Out-of-range
// values are clamped to documented bounds and the clamp reported in the
// reply; unknown keys are ignored. Called under the instance lock.
func (p *Plugin) ConfigureParams(req, reply *ipc.Message) error {
	if level, ok := req.GetInt(ConfigLevel); ok {
		switch {
		case level < 1:
			p.commanded.level = 1
			reply.SetWarning(ConfigLevel, "clamped to lower bound 1")
		case level > 9:
			p.commanded.level = 9
			reply.SetWarning(ConfigLevel, "clamped to upper bound 9")
		default:
			p.commanded.level = level
		}
	}

	if shuffle, ok := req.GetInt(ConfigShuffle); ok {
		if shuffle < ShuffleNone || shuffle > ShuffleBit {
			p.commanded.shuffle = ShuffleNone
			reply.SetWarning(ConfigShuffle, fmt.Sprintf("invalid mode %d, shuffle disabled", shuffle))
		} else {
			p.commanded.shuffle = shuffle
		}
	}

	if threads, ok := req.GetInt(ConfigThreads); ok {
		switch {
		case threads < 1:
			p.commanded.threads = 1
			reply.SetWarning(ConfigThreads, "clamped to lower bound 1")
		case threads > maxThreads:
			p.commanded.threads = maxThreads
			reply.SetWarning(ConfigThreads, fmt.Sprintf("clamped to maximum %d", maxThreads))
		default:
			p.commanded.threads = threads
		}
	}

	if compressor, ok := req.GetInt(ConfigCompressor); ok {
		if compressor < CompressorLZ4 || compressor > CompressorZstd {
			p.commanded.compressor = CompressorLZ4
			reply.SetWarning(ConfigCompressor,
				fmt.Sprintf("invalid compressor %d, using %s", compressor, compressorName(CompressorLZ4)))
		} else {
			p.commanded.compressor = compressor
		}
	}

	return nil
}

// ReportStatus reports the live (not commanded) settings. Called under
// the instance lock.
func (p *Plugin) ReportStatus(reply *ipc.Message) {
	name := p.Name()
	reply.SetParam(name+"/compressor", p.live.compressor)
	reply.SetParam(name+"/compressor_name", compressorName(p.live.compressor))
	reply.SetParam(name+"/level", p.live.level)
	reply.SetParam(name+"/shuffle", p.live.shuffle)
	reply.SetParam(name+"/threads", p.live.threads)
	reply.SetParam(name+"/acquisition", p.currentAcquisition)
}
