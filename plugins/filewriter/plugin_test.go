package filewriter

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/pool"
	"github.com/dw96/odin-data/pkg/log"
)

func newTestWriter(t *testing.T, dir string) (*Plugin, *pool.BlockPool) {
	t.Helper()
	bp := pool.NewBlockPool(0, log.NewNoopLogger())
	p := New("fw", log.NewNoopLogger())
	t.Cleanup(func() { _ = p.Close() })

	req := ipc.NewRequest(ipc.OpConfigure)
	req.SetParam(ConfigPath, dir)
	req.SetParam(ConfigPrefix, "test")
	reply := ipc.AckReply(req)
	require.NoError(t, p.Configure(req, reply))
	return p, bp
}

func makeFrame(t *testing.T, bp *pool.BlockPool, dataset, acq string, number uint64, payload []byte) *frame.Frame {
	t.Helper()
	f := frame.New(bp, dataset)
	f.SetAcquisitionID(acq)
	f.SetFrameNumber(number)
	f.SetDataType(frame.DataTypeUInt8)
	f.SetDimensions([]uint64{uint64(len(payload))})
	require.NoError(t, f.CopyData(payload))
	return f
}

type record struct {
	number  uint64
	dtype   frame.DataType
	dims    []uint64
	payload []byte
}

func readRecords(t *testing.T, path string) []record {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var recs []record
	for len(raw) > 0 {
		require.GreaterOrEqual(t, len(raw), 18)
		require.Equal(t, recordMagic[:], raw[:4])
		var r record
		r.number = binary.LittleEndian.Uint64(raw[4:12])
		r.dtype = frame.DataType(raw[12])
		ndims := int(raw[13])
		raw = raw[14:]
		for i := 0; i < ndims; i++ {
			r.dims = append(r.dims, binary.LittleEndian.Uint64(raw[:8]))
			raw = raw[8:]
		}
		size := binary.LittleEndian.Uint32(raw[:4])
		raw = raw[4:]
		r.payload = raw[:size]
		raw = raw[size:]
		recs = append(recs, r)
	}
	return recs
}

func TestWriterAppendsRecordsPerDataset(t *testing.T) {
	dir := t.TempDir()
	p, bp := newTestWriter(t, dir)

	p.OnFrame(makeFrame(t, bp, "data", "scan1", 0, []byte{1, 2, 3}))
	p.OnFrame(makeFrame(t, bp, "data", "scan1", 1, []byte{4, 5, 6}))
	p.OnFrame(makeFrame(t, bp, "dark", "scan1", 0, []byte{9}))
	require.NoError(t, p.Flush())

	recs := readRecords(t, filepath.Join(dir, "test_scan1_data.raw"))
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(0), recs[0].number)
	assert.Equal(t, []byte{1, 2, 3}, recs[0].payload)
	assert.Equal(t, []uint64{3}, recs[0].dims)
	assert.Equal(t, frame.DataTypeUInt8, recs[0].dtype)
	assert.Equal(t, uint64(1), recs[1].number)
	assert.Equal(t, []byte{4, 5, 6}, recs[1].payload)

	darks := readRecords(t, filepath.Join(dir, "test_scan1_dark.raw"))
	require.Len(t, darks, 1)
	assert.Equal(t, []byte{9}, darks[0].payload)
}

func TestWriterRollsFilesOnAcquisitionChange(t *testing.T) {
	dir := t.TempDir()
	p, bp := newTestWriter(t, dir)

	p.OnFrame(makeFrame(t, bp, "data", "scan1", 0, []byte{1}))
	p.OnFrame(makeFrame(t, bp, "data", "scan2", 0, []byte{2}))
	require.NoError(t, p.Flush())

	require.Len(t, readRecords(t, filepath.Join(dir, "test_scan1_data.raw")), 1)
	require.Len(t, readRecords(t, filepath.Join(dir, "test_scan2_data.raw")), 1)
}

func TestWriterReleasesBlocksAfterFlush(t *testing.T) {
	dir := t.TempDir()
	p, bp := newTestWriter(t, dir)

	for i := 0; i < 8; i++ {
		p.OnFrame(makeFrame(t, bp, "data", "scan1", uint64(i), []byte{byte(i)}))
	}
	require.NoError(t, p.Flush())

	stats := bp.Stats()
	assert.Equal(t, 0, stats.BlocksInUse)
}

func TestWriterStatusCounters(t *testing.T) {
	dir := t.TempDir()
	p, bp := newTestWriter(t, dir)

	p.OnFrame(makeFrame(t, bp, "data", "scan1", 0, []byte{1}))
	require.NoError(t, p.Flush())

	req := ipc.NewRequest(ipc.OpStatus)
	reply := ipc.AckReply(req)
	p.Status(reply)

	written, ok := reply.GetInt("fw/frames_written")
	require.True(t, ok)
	assert.Equal(t, 1, written)
	errs, ok := reply.GetInt("fw/write_errors")
	require.True(t, ok)
	assert.Equal(t, 0, errs)
}

func TestWriterCountsWriteErrors(t *testing.T) {
	p, bp := newTestWriter(t, filepath.Join(t.TempDir(), "missing", "dir"))

	p.OnFrame(makeFrame(t, bp, "data", "scan1", 0, []byte{1}))
	require.NoError(t, p.Flush())

	req := ipc.NewRequest(ipc.OpStatus)
	reply := ipc.AckReply(req)
	p.Status(reply)
	errs, ok := reply.GetInt("fw/write_errors")
	require.True(t, ok)
	assert.Equal(t, 1, errs)
}
