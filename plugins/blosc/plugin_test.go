package blosc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/pool"
	"github.com/dw96/odin-data/pkg/log"
)

// capture collects pushed frames without releasing them.
type capture struct {
	frames []*frame.Frame
}

func (c *capture) OnFrame(f *frame.Frame) {
	c.frames = append(c.frames, f)
}

func testPlugin(t *testing.T) (*Plugin, *capture, *pool.BlockPool) {
	t.Helper()
	bp := pool.NewBlockPool(0, log.NewNoopLogger())
	p := New("blosc", bp, log.NewNoopLogger())
	cap := &capture{}
	require.NoError(t, p.Connect("capture", cap))
	return p, cap, bp
}

func sourceFrame(t *testing.T, bp *pool.BlockPool, acq string, num uint64, payload []byte) *frame.Frame {
	t.Helper()
	f := frame.New(bp, "data")
	f.SetFrameNumber(num)
	f.SetAcquisitionID(acq)
	f.SetDataType(frame.DataTypeUInt16)
	f.SetDimensions([]uint64{4, uint64(len(payload) / 8)})
	require.NoError(t, f.CopyData(payload))
	return f
}

func configure(t *testing.T, p *Plugin, params map[string]interface{}) *ipc.Message {
	t.Helper()
	req := ipc.NewRequest(ipc.OpConfigure)
	for k, v := range params {
		req.SetParam(k, v)
	}
	reply := ipc.AckReply(req)
	require.NoError(t, p.Configure(req, reply))
	return reply
}

func ramp(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func liveLevel(t *testing.T, p *Plugin) int {
	t.Helper()
	reply := ipc.AckReply(ipc.NewRequest(ipc.OpStatus))
	p.Status(reply)
	level, ok := reply.GetInt("blosc/level")
	require.True(t, ok)
	return level
}

func TestCompressRoundTripAllCodecs(t *testing.T) {
	codecs := []int{CompressorLZ4, CompressorLZ4HC, CompressorSnappy, CompressorZlib, CompressorZstd}
	payload := ramp(4096)

	for _, codec := range codecs {
		t.Run(compressorName(codec), func(t *testing.T) {
			p, cap, bp := testPlugin(t)
			configure(t, p, map[string]interface{}{
				ConfigCompressor: codec,
				ConfigLevel:      5,
				ConfigShuffle:    ShuffleByte,
			})

			p.OnFrame(sourceFrame(t, bp, "acq-1", 3, payload))
			require.Len(t, cap.frames, 1)
			out := cap.frames[0]

			// Metadata carried over from the source frame.
			assert.Equal(t, uint64(3), out.FrameNumber())
			assert.Equal(t, "acq-1", out.AcquisitionID())
			assert.Equal(t, frame.DataTypeUInt16, out.DataType())

			usedCodec, shuffle, typeSize, uncompressed, err := parseHeader(out.Data())
			require.NoError(t, err)
			assert.Equal(t, ShuffleByte, shuffle)
			assert.Equal(t, 2, typeSize)
			assert.Equal(t, uint64(len(payload)), uncompressed)

			plain, err := decompress(usedCodec, out.Data()[headerSize:], int(uncompressed))
			require.NoError(t, err)
			assert.Equal(t, payload, removeShuffle(shuffle, plain, typeSize))

			out.Release()
			assert.Equal(t, 0, bp.Stats().BlocksInUse)
		})
	}
}

func TestLevelClampReportsWarning(t *testing.T) {
	p, _, bp := testPlugin(t)

	reply := configure(t, p, map[string]interface{}{ConfigLevel: 15})
	text, ok := reply.Warning(ConfigLevel)
	require.True(t, ok)
	assert.Contains(t, text, "9")

	// The clamped commanded value goes live at the next acquisition.
	p.OnFrame(sourceFrame(t, bp, "acq-1", 1, ramp(64)))
	assert.Equal(t, 9, liveLevel(t, p))
}

func TestShuffleInvalidClampsToNone(t *testing.T) {
	p, _, _ := testPlugin(t)
	reply := configure(t, p, map[string]interface{}{ConfigShuffle: 7})
	text, ok := reply.Warning(ConfigShuffle)
	require.True(t, ok)
	assert.Contains(t, text, "disabled")
}

func TestThreadsClampMatchesWarning(t *testing.T) {
	p, _, bp := testPlugin(t)
	reply := configure(t, p, map[string]interface{}{ConfigThreads: 64})
	text, ok := reply.Warning(ConfigThreads)
	require.True(t, ok)
	// The clamp value and the reported value are the same bound.
	assert.Contains(t, text, "8")

	p.OnFrame(sourceFrame(t, bp, "acq-1", 1, ramp(64)))
	st := ipc.AckReply(ipc.NewRequest(ipc.OpStatus))
	p.Status(st)
	threads, ok := st.GetInt("blosc/threads")
	require.True(t, ok)
	assert.Equal(t, 8, threads)
}

func TestInvalidCompressorClampsToLZ4(t *testing.T) {
	p, _, bp := testPlugin(t)
	reply := configure(t, p, map[string]interface{}{ConfigCompressor: 42})
	text, ok := reply.Warning(ConfigCompressor)
	require.True(t, ok)
	assert.Contains(t, text, "lz4")

	p.OnFrame(sourceFrame(t, bp, "acq-1", 1, ramp(64)))
	st := ipc.AckReply(ipc.NewRequest(ipc.OpStatus))
	p.Status(st)
	code, ok := st.GetInt("blosc/compressor")
	require.True(t, ok)
	assert.Equal(t, CompressorLZ4, code)
}

func TestUnknownKeysIgnored(t *testing.T) {
	p, _, _ := testPlugin(t)
	reply := configure(t, p, map[string]interface{}{"future_knob": 1, ConfigLevel: 4})
	assert.False(t, reply.HasParam("warning:future_knob"))
}

func TestAcquisitionChangeResetsOnce(t *testing.T) {
	p, cap, bp := testPlugin(t)

	// Commanded level 5 goes live with the first frame of "A".
	configure(t, p, map[string]interface{}{ConfigLevel: 5})
	p.OnFrame(sourceFrame(t, bp, "A", 1, ramp(64)))
	assert.Equal(t, 5, liveLevel(t, p))

	// A mid-acquisition reconfigure stays commanded-only.
	configure(t, p, map[string]interface{}{ConfigLevel: 9})
	p.OnFrame(sourceFrame(t, bp, "A", 2, ramp(64)))
	assert.Equal(t, 5, liveLevel(t, p))

	// First "B" frame copies commanded into live, exactly once.
	p.OnFrame(sourceFrame(t, bp, "B", 3, ramp(64)))
	assert.Equal(t, 9, liveLevel(t, p))

	configure(t, p, map[string]interface{}{ConfigLevel: 2})
	p.OnFrame(sourceFrame(t, bp, "B", 4, ramp(64)))
	assert.Equal(t, 9, liveLevel(t, p), "no reset within the same acquisition")

	for _, f := range cap.frames {
		f.Release()
	}
	assert.Equal(t, 0, bp.Stats().BlocksInUse)
}

func TestUnsetDataTypeFallsBackToDefaultSize(t *testing.T) {
	p, cap, bp := testPlugin(t)

	f := frame.New(bp, "data")
	f.SetAcquisitionID("acq-1")
	f.SetFrameNumber(1)
	require.NoError(t, f.CopyData(ramp(128)))
	p.OnFrame(f)

	require.Len(t, cap.frames, 1)
	_, _, typeSize, _, err := parseHeader(cap.frames[0].Data())
	require.NoError(t, err)
	assert.Equal(t, defaultTypeSize, typeSize)
	cap.frames[0].Release()
}
