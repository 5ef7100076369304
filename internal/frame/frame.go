// Package frame defines the self-describing data unit flowing through
// the processing graph.
//
// A Frame couples one pool-owned Block with the metadata a downstream
// stage needs: dataset name, frame number, acquisition id, pixel type
// and dimensions, plus free-form parameters. Ownership of a Frame
// transfers on push and is never shared: a producer fanning out to
// several targets gives each target its own copy. The Block returns to
// the pool exactly once, when the last reference is released.
package frame

import (
	"sync/atomic"

	"github.com/dw96/odin-data/internal/pool"
)

// Frame is one unit of detector data plus metadata, backed by exactly
// one pool-owned Block. Create with New, fill with CopyData, and hand
// off ownership by pushing downstream. Metadata accessors are not
// synchronised; a Frame must only be mutated by its current owner.
type Frame struct {
	datasetName   string
	frameNumber   uint64
	acquisitionID string
	dataType      DataType
	dimensions    []uint64
	parameters    map[string]interface{}

	pool  *pool.BlockPool
	block *pool.Block
	refs  int32
}

// New creates an empty Frame for the named dataset. The backing Block
// is acquired lazily on the first CopyData call. The Frame starts with
// a single reference held by the caller.
func New(p *pool.BlockPool, datasetName string) *Frame {
	return &Frame{
		datasetName: datasetName,
		pool:        p,
		refs:        1,
	}
}

// CopyData copies n bytes from src into the Frame's Block, acquiring or
// growing the Block first when n exceeds its capacity. Growth discards
// the previous contents.
func (f *Frame) CopyData(src []byte) error {
	n := len(src)
	if f.block == nil {
		b, err := f.pool.Acquire(n)
		if err != nil {
			return err
		}
		f.block = b
	} else if n > f.block.Capacity() {
		if err := f.pool.Resize(f.block, n); err != nil {
			return err
		}
	}
	f.block.CopyData(src)
	return nil
}

// Data returns a read-only view of the payload up to DataSize bytes.
// The view is valid until the last reference is released.
func (f *Frame) Data() []byte {
	if f.block == nil {
		return nil
	}
	return f.block.Data()
}

// DataSize returns the number of payload bytes.
func (f *Frame) DataSize() int {
	if f.block == nil {
		return 0
	}
	return f.block.Size()
}

// Retain adds a reference. A consumer keeping the Frame alive beyond
// its OnFrame call, such as a writer handing it to an internal worker,
// retains before the call returns.
func (f *Frame) Retain() {
	atomic.AddInt32(&f.refs, 1)
}

// Release drops one reference. When the last reference is released the
// Block returns to the pool's free list. Further releases are no-ops.
func (f *Frame) Release() {
	for {
		n := atomic.LoadInt32(&f.refs)
		if n <= 0 {
			return
		}
		if atomic.CompareAndSwapInt32(&f.refs, n, n-1) {
			if n == 1 && f.block != nil {
				f.pool.Release(f.block)
			}
			return
		}
	}
}

// DatasetName returns the dataset this Frame belongs to.
func (f *Frame) DatasetName() string { return f.datasetName }

// SetDatasetName sets the dataset name.
func (f *Frame) SetDatasetName(name string) { f.datasetName = name }

// FrameNumber returns the frame sequence number within the acquisition.
func (f *Frame) FrameNumber() uint64 { return f.frameNumber }

// SetFrameNumber sets the frame sequence number.
func (f *Frame) SetFrameNumber(n uint64) { f.frameNumber = n }

// AcquisitionID returns the opaque identifier of the acquisition run
// this Frame belongs to. The first Frame carrying a new id marks the
// start of a new acquisition.
func (f *Frame) AcquisitionID() string { return f.acquisitionID }

// SetAcquisitionID sets the acquisition identifier.
func (f *Frame) SetAcquisitionID(id string) { f.acquisitionID = id }

// DataType returns the declared pixel element type.
func (f *Frame) DataType() DataType { return f.dataType }

// SetDataType sets the pixel element type.
func (f *Frame) SetDataType(t DataType) { f.dataType = t }

// Dimensions returns the ordered dimension sizes of the frame payload.
func (f *Frame) Dimensions() []uint64 { return f.dimensions }

// SetDimensions sets the ordered dimension sizes.
func (f *Frame) SetDimensions(dims []uint64) {
	f.dimensions = append([]uint64(nil), dims...)
}

// Parameter returns the free-form metadata value stored under key.
func (f *Frame) Parameter(key string) (interface{}, bool) {
	v, ok := f.parameters[key]
	return v, ok
}

// SetParameter stores a free-form metadata value under key.
func (f *Frame) SetParameter(key string, value interface{}) {
	if f.parameters == nil {
		f.parameters = make(map[string]interface{})
	}
	f.parameters[key] = value
}

// Parameters returns a copy of the free-form metadata map.
func (f *Frame) Parameters() map[string]interface{} {
	if f.parameters == nil {
		return nil
	}
	out := make(map[string]interface{}, len(f.parameters))
	for k, v := range f.parameters {
		out[k] = v
	}
	return out
}

// Clone creates an independent copy: same metadata, a fresh pool Block
// holding a copy of the payload. Fan-out uses clones because each
// downstream target owns, and may mutate, the frame it receives.
func (f *Frame) Clone() (*Frame, error) {
	c := New(f.pool, f.datasetName)
	c.CopyMetadataFrom(f)
	if f.block != nil {
		if err := c.CopyData(f.Data()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CopyMetadataFrom copies every metadata field except the payload from
// src. Derived frames use this to carry the original annotations.
func (f *Frame) CopyMetadataFrom(src *Frame) {
	f.datasetName = src.datasetName
	f.frameNumber = src.frameNumber
	f.acquisitionID = src.acquisitionID
	f.dataType = src.dataType
	f.SetDimensions(src.dimensions)
	for k, v := range src.parameters {
		f.SetParameter(k, v)
	}
}
