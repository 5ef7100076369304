package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dw96/odin-data/internal/pool"
	"github.com/dw96/odin-data/pkg/log"
)

func newTestPool() *pool.BlockPool {
	return pool.NewBlockPool(0, log.NewNoopLogger())
}

func TestCopyDataAcquiresAndGrows(t *testing.T) {
	p := newTestPool()
	f := New(p, "data")

	require.NoError(t, f.CopyData([]byte("abc")))
	assert.Equal(t, 3, f.DataSize())
	assert.Equal(t, []byte("abc"), f.Data())

	// Growing past capacity reallocates; contents come from the new copy.
	payload := make([]byte, 1<<12)
	payload[0] = 0x42
	require.NoError(t, f.CopyData(payload))
	assert.Equal(t, 1<<12, f.DataSize())
	assert.Equal(t, byte(0x42), f.Data()[0])
}

func TestReleaseReturnsBlockOnce(t *testing.T) {
	p := newTestPool()
	f := New(p, "data")
	require.NoError(t, f.CopyData([]byte("payload")))

	f.Release()
	s := p.Stats()
	assert.Equal(t, 0, s.BlocksInUse)
	assert.Equal(t, 1, s.BlocksFree)

	// Double release must not corrupt the free list.
	f.Release()
	s = p.Stats()
	assert.Equal(t, 1, s.BlocksFree)
}

func TestRetainDefersRelease(t *testing.T) {
	p := newTestPool()
	f := New(p, "data")
	require.NoError(t, f.CopyData([]byte("payload")))

	f.Retain()
	f.Release()
	assert.Equal(t, 1, p.Stats().BlocksInUse, "block released while still referenced")

	f.Release()
	assert.Equal(t, 0, p.Stats().BlocksInUse)
}

func TestCopyMetadataFrom(t *testing.T) {
	p := newTestPool()
	src := New(p, "raw")
	src.SetFrameNumber(7)
	src.SetAcquisitionID("scan-001")
	src.SetDataType(DataTypeUInt16)
	src.SetDimensions([]uint64{512, 1024})
	src.SetParameter("exposure", 0.01)

	dst := New(p, "")
	dst.CopyMetadataFrom(src)

	assert.Equal(t, "raw", dst.DatasetName())
	assert.Equal(t, uint64(7), dst.FrameNumber())
	assert.Equal(t, "scan-001", dst.AcquisitionID())
	assert.Equal(t, DataTypeUInt16, dst.DataType())
	assert.Equal(t, []uint64{512, 1024}, dst.Dimensions())
	v, ok := dst.Parameter("exposure")
	require.True(t, ok)
	assert.Equal(t, 0.01, v)

	// Dimension slices must not alias.
	src.Dimensions()[0] = 1
	assert.Equal(t, uint64(512), dst.Dimensions()[0])
}

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dt   DataType
		size int
		name string
	}{
		{DataTypeUnknown, 0, "unknown"},
		{DataTypeUInt8, 1, "uint8"},
		{DataTypeUInt16, 2, "uint16"},
		{DataTypeUInt32, 4, "uint32"},
		{DataTypeUInt64, 8, "uint64"},
		{DataTypeFloat, 4, "float"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.size, tt.dt.Size())
		assert.Equal(t, tt.name, tt.dt.String())
	}
}
