package odindata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dw96/odin-data/internal/config"
	"github.com/dw96/odin-data/internal/frame"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/pkg/log"
)

type recorder struct {
	*plugin.Base
	seen chan uint64
}

func (r *recorder) ProcessFrame(f *frame.Frame) ([]*frame.Frame, error) {
	r.seen <- f.FrameNumber()
	return nil, nil
}

func recorderFactory(seen chan uint64) Factory {
	return func(name string, logger log.Logger) (plugin.Plugin, error) {
		r := &recorder{seen: seen}
		r.Base = plugin.NewBase(name, plugin.Version{Major: 1}, r, logger)
		return r, nil
	}
}

func TestPipelineFromConfig(t *testing.T) {
	seen := make(chan uint64, 16)

	cfg := DefaultConfig()
	cfg.Plugins = []config.PluginLoad{
		{Name: "shift", Index: "offsetadjust"},
		{Name: "rec", Index: "recorder"},
	}
	cfg.Connections = []config.Connection{
		{Source: "ingest", Destination: "shift"},
		{Source: "shift", Destination: "rec"},
	}
	cfg.Params = []config.ParamDoc{
		{Target: "shift", Params: map[string]interface{}{"offset": -100}},
	}

	fp, err := New(cfg, WithFactory("recorder", recorderFactory(seen)))
	require.NoError(t, err)
	require.NoError(t, fp.Start())
	defer fp.Stop()

	f := fp.NewFrame("data")
	f.SetAcquisitionID("scan1")
	f.SetFrameNumber(100)
	require.NoError(t, f.CopyData([]byte{1}))
	require.NoError(t, fp.Submit(f))

	select {
	case num := <-seen:
		assert.Equal(t, uint64(0), num)
	case <-time.After(5 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestControlChannelStartOpensIngest(t *testing.T) {
	seen := make(chan uint64, 16)
	cfg := DefaultConfig()
	cfg.Plugins = []config.PluginLoad{{Name: "rec", Index: "recorder"}}
	cfg.Connections = []config.Connection{{Source: "ingest", Destination: "rec"}}

	fp, err := New(cfg, WithFactory("recorder", recorderFactory(seen)))
	require.NoError(t, err)

	require.Equal(t, ipc.MsgTypeAck, fp.Handle(ipc.NewRequest(ipc.OpStart)).Type)

	f := fp.NewFrame("data")
	f.SetFrameNumber(7)
	require.NoError(t, f.CopyData([]byte{1}))
	require.NoError(t, fp.Submit(f))

	select {
	case num := <-seen:
		assert.Equal(t, uint64(7), num)
	case <-time.After(5 * time.Second):
		t.Fatal("frame not delivered after control-channel start")
	}

	require.Equal(t, ipc.MsgTypeAck, fp.Handle(ipc.NewRequest(ipc.OpStop)).Type)

	// The stop reached the ingest worker: new submissions are refused.
	f2 := fp.NewFrame("data")
	require.NoError(t, f2.CopyData([]byte{1}))
	assert.Error(t, fp.Submit(f2))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IngestQueueDepth = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewRejectsUnknownPluginIndex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Plugins = []config.PluginLoad{{Name: "x", Index: "nope"}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewRejectsBadConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connections = []config.Connection{{Source: "ingest", Destination: "nope"}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestBuiltinPluginsRegistered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Plugins = []config.PluginLoad{
		{Name: "c", Index: "blosc"},
		{Name: "o", Index: "offsetadjust"},
		{Name: "w", Index: "filewriter"},
		{Name: "v", Index: "liveview"},
	}
	cfg.Params = []config.ParamDoc{
		{Target: "w", Params: map[string]interface{}{"path": t.TempDir()}},
	}
	fp, err := New(cfg)
	require.NoError(t, err)

	req := ipc.NewRequest(ipc.OpStatus)
	reply := fp.Handle(req)
	require.Equal(t, ipc.MsgTypeAck, reply.Type)
	for _, key := range []string{"c/version", "o/version", "w/version", "v/version"} {
		_, ok := reply.GetString(key)
		assert.True(t, ok, key)
	}
}

func TestHandleControlRoundTrip(t *testing.T) {
	fp, err := New(DefaultConfig())
	require.NoError(t, err)

	load := ipc.NewRequest(ipc.OpLoad)
	load.SetParam("name", "w")
	load.SetParam("index", "filewriter")
	require.Equal(t, ipc.MsgTypeAck, fp.Handle(load).Type)

	cfgReq := ipc.NewRequest(ipc.OpConfigure)
	cfgReq.Target = "w"
	cfgReq.SetParam("path", filepath.Join(t.TempDir()))
	require.Equal(t, ipc.MsgTypeAck, fp.Handle(cfgReq).Type)

	start := ipc.NewRequest(ipc.OpStart)
	require.Equal(t, ipc.MsgTypeAck, fp.Handle(start).Type)
	stop := ipc.NewRequest(ipc.OpStop)
	require.Equal(t, ipc.MsgTypeAck, fp.Handle(stop).Type)

	shutdown := ipc.NewRequest(ipc.OpShutdown)
	require.Equal(t, ipc.MsgTypeAck, fp.Handle(shutdown).Type)
	select {
	case <-fp.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("shutdown not signalled")
	}
}
