// Package filewriter terminates the processing graph by appending
// frames to per-dataset files on disk.
//
// Disk I/O is decoupled from graph traversal: ProcessFrame only retains
// the frame and queues it, and a single internal worker drains the
// queue and performs the writes, so a slow disk never stalls upstream
// plugins. Files are created lazily on the first frame of each new
// acquisition and closed when the controller flushes the plugin at
// stop.
//
// The on-disk layout is one file per dataset per acquisition, a
// sequence of self-describing records; each appended frame extends the
// outer dimension by one.
package filewriter

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/pkg/log"
)

// Configuration keys.
const (
	ConfigPath   = "path"
	ConfigPrefix = "prefix"
)

// recordMagic marks the start of each frame record.
var recordMagic = [4]byte{'O', 'D', 'F', 'R'}

var pluginVersion = plugin.Version{Major: 1, Minor: 0, Patch: 0}

// Plugin writes every received frame to disk on its own worker.
type Plugin struct {
	*plugin.Base

	// Commanded by Configure, read by the worker under fmu.
	path   string
	prefix string

	// qcond covers both the worker waiting for jobs and Flush waiting
	// for the queue to drain, so wake-ups use Broadcast.
	qmu     sync.Mutex
	qcond   *sync.Cond
	jobs    *queue.Queue
	pending int
	quit    bool

	fmu                sync.Mutex
	files              map[string]*os.File
	currentAcquisition string

	written     atomic.Uint64
	writeErrors atomic.Uint64
	wg          sync.WaitGroup
}

// New creates a file writer instance and starts its I/O worker.
func New(name string, logger log.Logger) *Plugin {
	p := &Plugin{
		path:   ".",
		prefix: "odin",
		jobs:   queue.New(),
		files:  make(map[string]*os.File),
	}
	p.qcond = sync.NewCond(&p.qmu)
	p.Base = plugin.NewBase(name, pluginVersion, p, logger)
	p.wg.Add(1)
	go p.worker()
	return p
}

// NewFactory returns the plugin factory for registry registration.
func NewFactory() plugin.Factory {
	return func(name string, logger log.Logger) (plugin.Plugin, error) {
		return New(name, logger), nil
	}
}

// ProcessFrame queues the frame for the I/O worker. Called under the
// instance lock; the retain keeps the frame alive until the worker has
// written it.
func (p *Plugin) ProcessFrame(f *frame.Frame) ([]*frame.Frame, error) {
	f.Retain()

	p.qmu.Lock()
	p.jobs.Add(f)
	p.pending++
	p.qcond.Broadcast()
	p.qmu.Unlock()
	return nil, nil
}

// worker drains the job queue, writing one frame at a time.
func (p *Plugin) worker() {
	defer p.wg.Done()
	for {
		p.qmu.Lock()
		for p.jobs.Length() == 0 && !p.quit {
			p.qcond.Wait()
		}
		if p.quit && p.jobs.Length() == 0 {
			p.qmu.Unlock()
			return
		}
		f := p.jobs.Remove().(*frame.Frame)
		p.qmu.Unlock()

		if err := p.write(f); err != nil {
			p.writeErrors.Add(1)
			p.Logger().Error("frame write failed",
				log.String("plugin", p.Name()),
				log.Uint64("frame", f.FrameNumber()),
				log.String("dataset", f.DatasetName()),
				log.Err(err),
			)
		} else {
			p.written.Add(1)
		}
		f.Release()

		p.qmu.Lock()
		p.pending--
		if p.pending == 0 {
			p.qcond.Broadcast()
		}
		p.qmu.Unlock()
	}
}

// write appends one frame record to its dataset file, rolling all files
// over on an acquisition change.
func (p *Plugin) write(f *frame.Frame) error {
	p.fmu.Lock()
	defer p.fmu.Unlock()

	if f.AcquisitionID() != p.currentAcquisition {
		p.closeFilesLocked()
		p.currentAcquisition = f.AcquisitionID()
	}

	file, ok := p.files[f.DatasetName()]
	if !ok {
		name := fmt.Sprintf("%s_%s_%s.raw", p.prefix, sanitize(p.currentAcquisition), sanitize(f.DatasetName()))
		var err error
		file, err = os.OpenFile(filepath.Join(p.path, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open dataset file: %w", err)
		}
		p.files[f.DatasetName()] = file
		p.Logger().Info("opened dataset file",
			log.String("plugin", p.Name()),
			log.String("file", name),
		)
	}

	return writeRecord(file, f)
}

// writeRecord serialises one frame: magic, frame number, data type,
// dimensions, payload length, payload.
func writeRecord(file *os.File, f *frame.Frame) error {
	dims := f.Dimensions()
	header := make([]byte, 0, 32+8*len(dims))
	header = append(header, recordMagic[:]...)
	header = binary.LittleEndian.AppendUint64(header, f.FrameNumber())
	header = append(header, byte(f.DataType()), byte(len(dims)))
	for _, d := range dims {
		header = binary.LittleEndian.AppendUint64(header, d)
	}
	header = binary.LittleEndian.AppendUint32(header, uint32(f.DataSize()))

	if _, err := file.Write(header); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	if _, err := file.Write(f.Data()); err != nil {
		return fmt.Errorf("write record payload: %w", err)
	}
	return nil
}

func (p *Plugin) closeFilesLocked() {
	for name, file := range p.files {
		if err := file.Close(); err != nil {
			p.Logger().Error("close dataset file failed",
				log.String("dataset", name),
				log.Err(err),
			)
		}
	}
	p.files = make(map[string]*os.File)
}

// Flush waits for every queued frame to reach disk and closes the open
// dataset files. The controller calls this while stopping.
func (p *Plugin) Flush() error {
	p.qmu.Lock()
	for p.pending > 0 {
		p.qcond.Wait()
	}
	p.qmu.Unlock()

	p.fmu.Lock()
	p.closeFilesLocked()
	p.fmu.Unlock()
	return nil
}

// Close terminates the I/O worker after a final flush. The plugin must
// not receive frames after Close.
func (p *Plugin) Close() error {
	if err := p.Flush(); err != nil {
		return err
	}
	p.qmu.Lock()
	p.quit = true
	p.qcond.Broadcast()
	p.qmu.Unlock()
	p.wg.Wait()
	return nil
}

// ConfigureParams accepts the output path and file prefix.
func (p *Plugin) ConfigureParams(req, reply *ipc.Message) error {
	p.fmu.Lock()
	defer p.fmu.Unlock()
	if path, ok := req.GetString(ConfigPath); ok {
		p.path = path
	}
	if prefix, ok := req.GetString(ConfigPrefix); ok {
		p.prefix = prefix
	}
	return nil
}

// ReportStatus reports writer throughput and failure counters.
func (p *Plugin) ReportStatus(reply *ipc.Message) {
	name := p.Name()
	p.fmu.Lock()
	path := p.path
	acq := p.currentAcquisition
	p.fmu.Unlock()
	reply.SetParam(name+"/path", path)
	reply.SetParam(name+"/acquisition", acq)
	reply.SetParam(name+"/frames_written", int(p.written.Load()))
	reply.SetParam(name+"/write_errors", int(p.writeErrors.Load()))
}

// sanitize keeps file names free of path separators.
func sanitize(s string) string {
	if s == "" {
		return "default"
	}
	out := []rune(s)
	for i, r := range out {
		if r == '/' || r == '\\' {
			out[i] = '_'
		}
	}
	return string(out)
}
