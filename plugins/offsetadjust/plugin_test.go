package offsetadjust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/pool"
	"github.com/dw96/odin-data/pkg/log"
)

type capture struct {
	numbers []uint64
}

func (c *capture) OnFrame(f *frame.Frame) {
	c.numbers = append(c.numbers, f.FrameNumber())
	f.Release()
}

func push(t *testing.T, p *Plugin, bp *pool.BlockPool, acq string, num uint64) {
	t.Helper()
	f := frame.New(bp, "data")
	f.SetAcquisitionID(acq)
	f.SetFrameNumber(num)
	require.NoError(t, f.CopyData([]byte("x")))
	p.OnFrame(f)
}

func setOffset(t *testing.T, p *Plugin, off int) {
	t.Helper()
	req := ipc.NewRequest(ipc.OpConfigure)
	req.SetParam(ConfigOffset, off)
	require.NoError(t, p.Configure(req, ipc.AckReply(req)))
}

func TestOffsetAppliedFromAcquisitionStart(t *testing.T) {
	bp := pool.NewBlockPool(0, log.NewNoopLogger())
	p := New("offset", log.NewNoopLogger())
	sink := &capture{}
	require.NoError(t, p.Connect("sink", sink))

	setOffset(t, p, -100)
	push(t, p, bp, "A", 100)
	push(t, p, bp, "A", 101)

	assert.Equal(t, []uint64{0, 1}, sink.numbers)
	assert.Equal(t, 0, bp.Stats().BlocksInUse)
}

func TestOffsetChangeWaitsForNewAcquisition(t *testing.T) {
	bp := pool.NewBlockPool(0, log.NewNoopLogger())
	p := New("offset", log.NewNoopLogger())
	sink := &capture{}
	require.NoError(t, p.Connect("sink", sink))

	push(t, p, bp, "A", 10)
	setOffset(t, p, 5)
	push(t, p, bp, "A", 11)
	push(t, p, bp, "B", 12)

	assert.Equal(t, []uint64{10, 11, 17}, sink.numbers)
}

func TestStatusReportsLiveOffset(t *testing.T) {
	bp := pool.NewBlockPool(0, log.NewNoopLogger())
	p := New("offset", log.NewNoopLogger())
	setOffset(t, p, 7)
	push(t, p, bp, "A", 1)

	reply := ipc.AckReply(ipc.NewRequest(ipc.OpStatus))
	p.Status(reply)
	off, ok := reply.GetInt("offset/offset")
	require.True(t, ok)
	assert.Equal(t, 7, off)
}
