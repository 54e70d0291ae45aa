package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sync-recorder/internal/config"
	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/frame"
	"github.com/banshee-data/sync-recorder/internal/fsutil"
	"github.com/banshee-data/sync-recorder/internal/hwport"
	"github.com/banshee-data/sync-recorder/internal/monitoring"
	"github.com/banshee-data/sync-recorder/internal/recorder"
	"github.com/banshee-data/sync-recorder/internal/sensor"
	"github.com/banshee-data/sync-recorder/internal/testutil"
	"github.com/banshee-data/sync-recorder/internal/timeutil"
	"github.com/banshee-data/sync-recorder/internal/trigger"
)

var (
	desc    = frame.Description{Width: 2, Height: 2}
	started = time.Date(2024, 3, 5, 9, 7, 1, 0, time.UTC)
)

const (
	sessionDir = "/data/rec_20240305090701"
	rawConfig  = "[DEFAULT]\nT_SESSION_START = 250\n"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func testConfig() *config.Config {
	return &config.Config{
		EpochLength:      10,
		TriggerWidth:     1,
		SessionStartCode: 250,
		SessionEndCode:   251,
		IntervalFrames:   5,
		BackgroundCode:   0,
		EpochCount:       4,
		PinOrder:         trigger.IdentityPinOrder,
		DataPath:         "/data/rec_",
		Source:           "/etc/recorder/config.ini",
		Raw:              []byte(rawConfig),
	}
}

type fixture struct {
	fs     fsutil.FileSystem
	mem    *fsutil.MemoryFileSystem
	clock  *timeutil.MockClock
	port   *hwport.TestablePort
	source *sensor.TestableSource
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
}

func newFixture(t *testing.T, steps ...sensor.Step) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := timeutil.NewMockClock(started)
	clock.SetAutoAdvance(10 * time.Millisecond)
	mem := fsutil.NewMemoryFileSystem()
	port := hwport.NewTestablePort()
	src := &sensor.TestableSource{Desc: desc, Steps: steps, OnExhausted: cancel}

	f := &fixture{
		fs:     mem,
		mem:    mem,
		clock:  clock,
		port:   port,
		source: src,
		ctx:    ctx,
		cancel: cancel,
	}
	f.opts = Options{
		Config:  testConfig(),
		Mode:    recorder.ModeDepth,
		Source:  src,
		Port:    port,
		Encoder: recorder.NPYEncoder{},
		FS:      mem,
		Clock:   clock,
	}
	return f
}

func (f *fixture) run(t *testing.T) (*Controller, Summary, error) {
	t.Helper()
	f.opts.FS = f.fs
	c, err := New(f.opts)
	require.NoError(t, err)
	sum, err := c.Run(f.ctx)
	return c, sum, err
}

func (f *fixture) log(t *testing.T) string {
	t.Helper()
	data, err := f.mem.ReadFile(sessionDir + "/depth_times.txt")
	require.NoError(t, err)
	return string(data)
}

func ready(v uint16) sensor.Step {
	return sensor.Step{Ready: true, Frame: &frame.Frame{Width: 2, Height: 2, Pix: []uint16{v, v, v, v}}}
}

func frames(n int) []sensor.Step {
	steps := make([]sensor.Step, n)
	for i := range steps {
		steps[i] = ready(uint16(100 * (i + 1)))
	}
	return steps
}

func TestOutputDirectory(t *testing.T) {
	ts := time.Date(2017, 1, 2, 3, 4, 5, 999, time.UTC)
	assert.Equal(t, "/data/subject01_20170102030405", OutputDirectory("/data/subject01_", ts))
	assert.Equal(t, "C:\\kinect\\20170102030405", OutputDirectory("C:\\kinect\\", ts))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "acquiring", StateAcquiring.String())
	assert.Equal(t, "shutting-down", StateShuttingDown.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestRun_TwelveFrames(t *testing.T) {
	f := newFixture(t, frames(12)...)

	c, sum, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []byte{250, 0, 0, 0, 0, 1, 0, 0, 0, 0, 2, 0, 0, 251}, f.port.Values())
	assert.Equal(t, uint64(12), sum.Frames)
	assert.Equal(t, uint64(2), sum.EpochFrames)
	assert.Equal(t, uint64(10), sum.BackgroundFrames)
	assert.Equal(t, sessionDir, sum.OutputDirectory)
	assert.Equal(t, started, sum.StartTime)
	assert.Empty(t, sum.Err)
	assert.Equal(t, c.ID(), sum.ID)
	assert.Equal(t, StateClosed, c.State())

	lines := strings.Split(strings.TrimSuffix(f.log(t), "\n"), "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "0000000001\t2024-03-05 09:07:01.010000", lines[0])
	assert.Equal(t, "0000000012\t2024-03-05 09:07:01.120000", lines[11])

	files := f.mem.Files(sessionDir)
	assert.Len(t, files, 14) // 12 frames, log, config
	assert.Contains(t, files, sessionDir+"/depth_0000000012.npy")

	snap, err := f.mem.ReadFile(sessionDir + "/config.ini")
	require.NoError(t, err)
	assert.Equal(t, rawConfig, string(snap))

	assert.True(t, f.port.IsClosed())
	assert.True(t, f.source.IsClosed())
}

// events records port writes, frame fetches and file writes in the order
// they happen.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(format string, v ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, fmt.Sprintf(format, v...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

type eventPort struct {
	*hwport.TestablePort
	ev *events
}

func (p eventPort) WriteValue(v byte) error {
	p.ev.add("trigger %d", v)
	return p.TestablePort.WriteValue(v)
}

func (p eventPort) Close() error {
	p.ev.add("port close")
	return p.TestablePort.Close()
}

type eventSource struct {
	*sensor.TestableSource
	ev *events
}

func (s eventSource) LatestFrame() (*frame.Frame, error) {
	s.ev.add("fetch")
	return s.TestableSource.LatestFrame()
}

type eventFS struct {
	fsutil.FileSystem
	ev *events
}

func (f eventFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	f.ev.add("file %s", filepath.Base(name))
	return f.FileSystem.WriteFile(name, data, perm)
}

func (f eventFS) Create(name string) (io.WriteCloser, error) {
	w, err := f.FileSystem.Create(name)
	if err != nil {
		return nil, err
	}
	return eventWriter{WriteCloser: w, ev: f.ev}, nil
}

type eventWriter struct {
	io.WriteCloser
	ev *events
}

func (w eventWriter) Write(p []byte) (int, error) {
	seq, _, _ := strings.Cut(string(p), "\t")
	w.ev.add("log %s", seq)
	return w.WriteCloser.Write(p)
}

func (w eventWriter) Close() error {
	w.ev.add("log close")
	return w.WriteCloser.Close()
}

func TestRun_PerFrameOrder(t *testing.T) {
	f := newFixture(t, frames(3)...)
	f.opts.Config.IntervalFrames = 2
	ev := &events{}
	f.opts.Port = eventPort{TestablePort: f.port, ev: ev}
	f.opts.Source = eventSource{TestableSource: f.source, ev: ev}
	f.fs = eventFS{FileSystem: f.mem, ev: ev}

	_, sum, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum.Frames)

	want := []string{
		"file config.ini",
		"trigger 250",
		"trigger 0", "fetch", "file depth_0000000001.npy", "log 0000000001",
		"trigger 1", "fetch", "file depth_0000000002.npy", "log 0000000002",
		"trigger 0", "fetch", "file depth_0000000003.npy", "log 0000000003",
		"trigger 251",
		"log close",
		"port close",
	}
	assert.Equal(t, want, ev.all())
}

func TestRun_ProgressLogging(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	f := newFixture(t, frames(12)...)
	f.opts.LogEvery = 4

	c, _, err := f.run(t)
	require.NoError(t, err)

	prefix := "session " + c.ID() + ": "
	for _, l := range logs.Lines() {
		assert.True(t, strings.HasPrefix(l, prefix), "line %q lacks the session prefix", l)
	}
	assert.Equal(t, 2, logs.Count("sent epoch code"))
	assert.Equal(t, 3, logs.Count("elapsed"))
	assert.Equal(t, 1, logs.Count("closed after 12 frames (2 epoch, 10 background)"))
}

func TestRun_RampFrames(t *testing.T) {
	steps := []sensor.Step{
		{Ready: true, Frame: testutil.RampFrame(desc, 1)},
		{Ready: true, Frame: testutil.RampFrame(desc, 1000)},
	}
	f := newFixture(t, steps...)

	_, _, err := f.run(t)
	require.NoError(t, err)

	data, err := f.mem.ReadFile(sessionDir + "/depth_0000000002.npy")
	require.NoError(t, err)
	got, err := recorder.DecodeNPY(data)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1000, 1001, 1002, 1003}, got.Pix)
}

func TestRun_ReversedPinsAndHoldTicks(t *testing.T) {
	f := newFixture(t, frames(5)...)
	cfg := testConfig()
	cfg.PinOrder = trigger.PinOrder{7, 6, 5, 4, 3, 2, 1, 0}
	cfg.TriggerWidth = 3
	cfg.SessionStartCode = 1
	cfg.SessionEndCode = 2
	f.opts.Config = cfg

	_, _, err := f.run(t)
	require.NoError(t, err)

	want := []byte{
		0x80, 0x80, 0x80, // start code 1 on the reversed wiring
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0x80, 0x80, 0x80, // epoch code 1 on frame 5
		0x40, 0x40, 0x40, // end code 2
	}
	assert.Equal(t, want, f.port.Values())
}

func TestRun_ZeroFrames(t *testing.T) {
	f := newFixture(t)

	_, sum, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []byte{250, 251}, f.port.Values())
	assert.Equal(t, "", f.log(t))
	assert.Zero(t, sum.Frames)
	assert.Equal(t, []string{sessionDir + "/config.ini", sessionDir + "/depth_times.txt"}, f.mem.Files(sessionDir))
}

func TestRun_FrameWithoutPixelsKeepsResidualImage(t *testing.T) {
	f := newFixture(t,
		sensor.Step{Ready: true},
		ready(7),
		sensor.Step{Ready: true},
	)

	_, sum, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum.Frames)

	read := func(seq int) []uint16 {
		data, err := f.mem.ReadFile(sessionDir + "/" + recorder.LayoutFor(recorder.ModeDepth).FrameName(uint64(seq), ".npy"))
		require.NoError(t, err)
		fr, err := recorder.DecodeNPY(data)
		require.NoError(t, err)
		return fr.Pix
	}
	assert.Equal(t, []uint16{0, 0, 0, 0}, read(1), "blank before any frame")
	assert.Equal(t, []uint16{7, 7, 7, 7}, read(2))
	assert.Equal(t, []uint16{7, 7, 7, 7}, read(3), "residual image")
	assert.Equal(t, 3, strings.Count(f.log(t), "\n"))
	assert.Equal(t, []byte{250, 0, 0, 0, 251}, f.port.Values())
}

func TestRun_IdlePollsSleep(t *testing.T) {
	f := newFixture(t, sensor.Step{}, sensor.Step{}, ready(1))
	f.opts.PollInterval = 5 * time.Millisecond

	_, sum, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sum.Frames)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}, f.clock.Sleeps())
}

func TestRun_DirectoryFailure(t *testing.T) {
	f := newFixture(t, frames(3)...)
	ffs := fsutil.NewFaultyFileSystem(f.mem)
	ffs.FailMkdir = true
	f.fs = ffs

	c, sum, err := f.run(t)
	assert.ErrorIs(t, err, errs.ErrDirectory)
	assert.Empty(t, f.port.Values(), "no trigger before the directory exists")
	assert.True(t, f.port.IsClosed())
	assert.True(t, f.source.IsClosed())
	assert.Equal(t, StateClosed, c.State())
	assert.NotEmpty(t, sum.Err)
}

func TestRun_SnapshotFailure(t *testing.T) {
	f := newFixture(t, frames(3)...)
	ffs := fsutil.NewFaultyFileSystem(f.mem)
	ffs.FailWriteFileAfter = 0
	f.fs = ffs

	_, _, err := f.run(t)
	assert.ErrorIs(t, err, errs.ErrIO)
	assert.Empty(t, f.port.Values())
}

func TestRun_FrameWriteFailure(t *testing.T) {
	f := newFixture(t, frames(5)...)
	ffs := fsutil.NewFaultyFileSystem(f.mem)
	ffs.FailWriteFileAfter = 2 // config snapshot and the first frame
	f.fs = ffs

	_, sum, err := f.run(t)
	assert.ErrorIs(t, err, errs.ErrIO)
	assert.Equal(t, uint64(1), sum.Frames)
	// start, frame 1, frame 2 (its file then fails), end
	assert.Equal(t, []byte{250, 0, 0, 251}, f.port.Values())
	assert.Equal(t, 1, strings.Count(f.log(t), "\n"))
}

func TestRun_PortFailure(t *testing.T) {
	f := newFixture(t, frames(5)...)
	portErr := errors.New("write: broken pipe")
	f.port.WriteError = portErr
	f.port.FailAfter = 3

	_, sum, err := f.run(t)
	assert.ErrorIs(t, err, errs.ErrDevice)
	assert.ErrorIs(t, err, portErr)
	assert.Contains(t, err.Error(), "send session end code")
	assert.Equal(t, []byte{250, 0, 0}, f.port.Values())
	assert.Equal(t, uint64(2), sum.Frames)
	assert.Equal(t, 2, strings.Count(f.log(t), "\n"))
	assert.True(t, f.port.IsClosed())
}

func TestRun_StartCodeFailure(t *testing.T) {
	f := newFixture(t, frames(2)...)
	f.port.WriteError = errors.New("no device")

	_, _, err := f.run(t)
	assert.ErrorIs(t, err, errs.ErrDevice)
	assert.NotContains(t, err.Error(), "session end code", "end code is only sent after a start code")
}

func TestRun_SensorFailure(t *testing.T) {
	unplugged := errors.New("usb unplugged")
	f := newFixture(t, ready(1), sensor.Step{Err: unplugged})

	_, sum, err := f.run(t)
	assert.ErrorIs(t, err, errs.ErrDevice)
	assert.ErrorIs(t, err, unplugged)
	assert.Equal(t, []byte{250, 0, 251}, f.port.Values())
	assert.Equal(t, uint64(1), sum.Frames)
	assert.Contains(t, sum.Err, "usb unplugged")
}

func TestRun_FrameReadFailure(t *testing.T) {
	f := newFixture(t, sensor.Step{Ready: true, FrameErr: errors.New("timeout")})

	_, _, err := f.run(t)
	assert.ErrorIs(t, err, errs.ErrDevice)
	// the trigger for the detected frame already went out
	assert.Equal(t, []byte{250, 0, 251}, f.port.Values())
	assert.Equal(t, "", f.log(t))
}

func TestRun_CloseErrorsAreJoined(t *testing.T) {
	f := newFixture(t)
	f.port.CloseError = errors.New("port busy")
	f.source.CloseError = errors.New("sensor busy")

	_, _, err := f.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDevice)
	assert.Contains(t, err.Error(), "port busy")
	assert.Contains(t, err.Error(), "sensor busy")
}

func TestRun_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	c, _, err := f.run(t)
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []byte{250, 251}, f.port.Values())
	assert.Equal(t, 1, f.port.CloseCalls)
}

func TestRun_StopFromPreview(t *testing.T) {
	f := newFixture(t, frames(10)...)
	f.source.OnExhausted = nil
	p := &fakePreview{quitAfter: 4}
	f.opts.Preview = p

	_, sum, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum.Frames)
	assert.Equal(t, 3, p.shows)
	assert.True(t, p.closed)
	assert.Equal(t, []byte{250, 0, 0, 0, 251}, f.port.Values())
}

func TestRun_CancelBetweenFrames(t *testing.T) {
	f := newFixture(t, frames(10)...)
	f.source.OnPoll = func(delivered int) {
		if delivered == 6 {
			f.cancel()
		}
	}

	_, sum, err := f.run(t)
	require.NoError(t, err)
	// the poll that observed six delivered frames still runs to completion
	assert.Equal(t, uint64(7), sum.Frames)
	assert.Equal(t, byte(251), f.port.Values()[len(f.port.Values())-1])
}

func TestRun_Catalog(t *testing.T) {
	f := newFixture(t, frames(6)...)
	cat := &fakeCatalog{}
	f.opts.Catalog = cat

	c, _, err := f.run(t)
	require.NoError(t, err)

	require.Len(t, cat.begun, 1)
	require.Len(t, cat.ended, 1)
	assert.Equal(t, c.ID(), cat.begun[0].ID)
	assert.Equal(t, sessionDir, cat.begun[0].OutputDirectory)
	assert.Zero(t, cat.begun[0].Frames)
	assert.Equal(t, uint64(6), cat.ended[0].Frames)
	assert.Equal(t, uint64(1), cat.ended[0].EpochFrames)
	assert.False(t, cat.ended[0].EndTime.IsZero())
	assert.Equal(t, "/etc/recorder/config.ini", cat.ended[0].ConfigSource)
}

func TestRun_CatalogFailureDoesNotStopRecording(t *testing.T) {
	f := newFixture(t, frames(2)...)
	f.opts.Catalog = &fakeCatalog{err: errors.New("database is locked")}

	_, sum, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sum.Frames)
}

func TestNew_RejectsBadConfigurationBeforeIO(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no config", func(o *Options) { o.Config = nil }},
		{"bad pin order", func(o *Options) { o.Config.PinOrder = trigger.PinOrder{0, 0, 1, 2, 3, 4, 5, 6} }},
		{"end code out of range", func(o *Options) { o.Config.SessionEndCode = 300 }},
		{"no port", func(o *Options) { o.Port = nil }},
		{"no source", func(o *Options) { o.Source = nil }},
		{"no encoder", func(o *Options) { o.Encoder = nil }},
		{"bad geometry", func(o *Options) { o.Source = &sensor.TestableSource{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(&f.opts)
			_, err := New(f.opts)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
			assert.False(t, f.mem.Exists("/data"))
			assert.Empty(t, f.port.Values())
		})
	}
}

type fakePreview struct {
	quitAfter int
	polls     int
	shows     int
	closed    bool
}

func (p *fakePreview) Show(*frame.Surface) error {
	p.shows++
	return nil
}

func (p *fakePreview) Poll() bool {
	p.polls++
	return p.polls >= p.quitAfter
}

func (p *fakePreview) Close() error {
	p.closed = true
	return nil
}

type fakeCatalog struct {
	mu    sync.Mutex
	err   error
	begun []Summary
	ended []Summary
}

func (c *fakeCatalog) BeginSession(_ context.Context, s Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.begun = append(c.begun, s)
	return c.err
}

func (c *fakeCatalog) EndSession(_ context.Context, s Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = append(c.ended, s)
	return c.err
}
