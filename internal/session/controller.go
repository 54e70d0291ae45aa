// Package session runs one recording: it prepares the output directory,
// drives the acquisition loop that pairs every sensor frame with a trigger
// code, and shuts everything down in order.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sync-recorder/internal/config"
	"github.com/banshee-data/sync-recorder/internal/epoch"
	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/frame"
	"github.com/banshee-data/sync-recorder/internal/fsutil"
	"github.com/banshee-data/sync-recorder/internal/hwport"
	"github.com/banshee-data/sync-recorder/internal/monitoring"
	"github.com/banshee-data/sync-recorder/internal/recorder"
	"github.com/banshee-data/sync-recorder/internal/sensor"
	"github.com/banshee-data/sync-recorder/internal/timeutil"
	"github.com/banshee-data/sync-recorder/internal/trigger"
)

// DirectoryTimeLayout is appended to the data path to name a session
// directory.
const DirectoryTimeLayout = "20060102150405"

var (
	// ErrClosed is returned by Run on a controller that already ran.
	ErrClosed = errors.New("session already closed")
	// ErrRunning is returned by Run while another Run is in progress.
	ErrRunning = errors.New("session already running")
)

// Preview is an optional live view of the recording surface.
type Preview interface {
	Show(s *frame.Surface) error
	// Poll processes pending window events and reports whether the user
	// asked to stop.
	Poll() bool
	Close() error
}

// Catalog records sessions for later lookup.
type Catalog interface {
	BeginSession(ctx context.Context, s Summary) error
	EndSession(ctx context.Context, s Summary) error
}

// Options configures a Controller. Config, Source, Port and Encoder are
// required; the rest have defaults.
type Options struct {
	Config  *config.Config
	Mode    recorder.Mode
	Source  sensor.Source
	Port    hwport.Port
	Encoder recorder.Encoder

	FS      fsutil.FileSystem
	Clock   timeutil.Clock
	Preview Preview
	Catalog Catalog

	// PollInterval is slept between polls that find no new frame. Zero
	// polls continuously.
	PollInterval time.Duration
	// LogEvery logs progress every LogEvery frames. Zero disables it.
	LogEvery uint64
}

// Summary describes a session, finished or in progress.
type Summary struct {
	ID               string
	Mode             recorder.Mode
	OutputDirectory  string
	ConfigSource     string
	StartTime        time.Time
	EndTime          time.Time
	Frames           uint64
	EpochFrames      uint64
	BackgroundFrames uint64
	Err              string
}

// Controller owns the resources of one session. It runs once.
type Controller struct {
	opts    Options
	cfg     *config.Config
	fs      fsutil.FileSystem
	clock   timeutil.Clock
	trigger *trigger.Encoder
	sched   *epoch.Scheduler
	surface *frame.Surface
	id      uuid.UUID
	logf    func(format string, v ...interface{})

	mu      sync.Mutex
	state   State
	summary Summary

	rec     *recorder.Recorder
	started bool
}

// New validates opts and prepares a controller. All configuration checks
// happen here, before any file or device I/O.
func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: no configuration", errs.ErrConfiguration)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil || opts.Encoder == nil {
		return nil, fmt.Errorf("%w: a sensor source and a frame encoder are required", errs.ErrConfiguration)
	}
	if opts.Mode == "" {
		opts.Mode = recorder.ModeDepth
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	enc, err := trigger.NewEncoder(opts.Port, opts.Config.PinOrder, opts.Config.TriggerWidth)
	if err != nil {
		return nil, err
	}
	sched, err := epoch.New(opts.Config.IntervalFrames, opts.Config.EpochCount, opts.Config.BackgroundCode)
	if err != nil {
		return nil, err
	}
	surface, err := frame.NewSurface(opts.Source.Description())
	if err != nil {
		return nil, fmt.Errorf("%w: sensor geometry: %w", errs.ErrConfiguration, err)
	}

	id := uuid.New()
	return &Controller{
		opts:    opts,
		cfg:     opts.Config,
		fs:      opts.FS,
		clock:   opts.Clock,
		trigger: enc,
		sched:   sched,
		surface: surface,
		id:      id,
		logf:    monitoring.Prefixed(fmt.Sprintf("session %s: ", id)),
		summary: Summary{
			ID:           id.String(),
			Mode:         opts.Mode,
			ConfigSource: opts.Config.Source,
		},
	}, nil
}

// OutputDirectory returns the session directory for a session starting at
// t: dataPath followed directly by the zero-padded timestamp.
func OutputDirectory(dataPath string, t time.Time) string {
	return dataPath + t.Format(DirectoryTimeLayout)
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id.String()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Summary returns a snapshot of the session so far.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Run records until ctx is cancelled, the preview asks to stop, or an
// error ends the session. Cancellation is a normal stop and is not
// reported as an error. The session end code is sent whenever the start
// code was sent, and the recorder, sensor, port and preview are released
// on every path.
func (c *Controller) Run(ctx context.Context) (sum Summary, err error) {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.state = StateInitializing
	case StateClosed:
		c.mu.Unlock()
		return c.Summary(), ErrClosed
	default:
		c.mu.Unlock()
		return c.Summary(), ErrRunning
	}
	c.mu.Unlock()

	defer func() {
		c.setState(StateShuttingDown)
		err = errors.Join(err, c.shutdown(ctx, err))
		c.setState(StateClosed)
		sum = c.Summary()
	}()

	if err := c.initialize(ctx); err != nil {
		return Summary{}, err
	}
	c.setState(StateAcquiring)
	return Summary{}, c.acquire(ctx)
}

func (c *Controller) initialize(ctx context.Context) error {
	start := c.clock.Now()
	dir := OutputDirectory(c.cfg.DataPath, start)

	c.mu.Lock()
	c.summary.StartTime = start
	c.summary.OutputDirectory = dir
	c.mu.Unlock()

	if err := c.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %w", errs.ErrDirectory, dir, err)
	}
	c.logf("recording %s frames to %s", c.opts.Mode, dir)

	snap, err := c.cfg.Snapshot()
	if err != nil {
		return fmt.Errorf("%w: render config snapshot: %w", errs.ErrIO, err)
	}
	snapPath := filepath.Join(dir, c.cfg.SnapshotName())
	if err := c.fs.WriteFile(snapPath, snap, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %w", errs.ErrIO, snapPath, err)
	}

	rec, err := recorder.New(c.fs, dir, recorder.LayoutFor(c.opts.Mode), c.opts.Encoder, c.surface)
	if err != nil {
		return err
	}
	c.rec = rec

	if c.opts.Catalog != nil {
		if err := c.opts.Catalog.BeginSession(ctx, c.Summary()); err != nil {
			c.logf("catalog: %v", err)
		}
	}

	if err := c.trigger.Send(c.cfg.SessionStartCode); err != nil {
		return fmt.Errorf("send session start code: %w", err)
	}
	c.started = true
	return nil
}

// acquire is the polling loop. The stop signal is only checked between
// frames, so a frame that has been detected is always fully handled.
func (c *Controller) acquire(ctx context.Context) error {
	for {
		if c.stopRequested(ctx) {
			return nil
		}

		ready, err := c.opts.Source.HasNewFrame()
		if err != nil {
			return deviceError("poll sensor", err)
		}
		if !ready {
			if c.opts.PollInterval > 0 {
				c.clock.Sleep(c.opts.PollInterval)
			}
			continue
		}

		if err := c.captureFrame(); err != nil {
			return err
		}
	}
}

func (c *Controller) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		c.logf("stop requested: %v", context.Cause(ctx))
		return true
	default:
	}
	if c.opts.Preview != nil && c.opts.Preview.Poll() {
		c.logf("stop requested from preview")
		return true
	}
	return false
}

// captureFrame handles one detected frame: timestamp, trigger, fetch,
// persist. The trigger goes out before the frame is fetched.
func (c *Controller) captureFrame() error {
	ts := c.clock.Now()
	seq := c.rec.NextSequence()
	d := c.sched.Next(seq)

	if err := c.trigger.Send(d.Code); err != nil {
		return fmt.Errorf("frame %d: %w", seq, err)
	}
	if d.Kind == epoch.Epoch {
		c.logf("frame %d sent epoch code %d", seq, d.Code)
	}

	f, err := c.opts.Source.LatestFrame()
	if err != nil {
		return deviceError(fmt.Sprintf("read frame %d", seq), err)
	}
	if err := c.rec.Record(recorder.FrameEvent{Sequence: seq, Timestamp: ts, Frame: f}); err != nil {
		return err
	}

	if c.opts.Preview != nil {
		if err := c.opts.Preview.Show(c.surface); err != nil {
			c.logf("preview: %v", err)
		}
	}

	c.mu.Lock()
	c.summary.Frames = seq
	if d.Kind == epoch.Epoch {
		c.summary.EpochFrames++
	} else {
		c.summary.BackgroundFrames++
	}
	c.mu.Unlock()

	if c.opts.LogEvery > 0 && seq%c.opts.LogEvery == 0 {
		c.logf("frame %d, elapsed %v", seq, c.clock.Since(c.Summary().StartTime))
	}
	return nil
}

// shutdown sends the end code and releases every resource, collecting all
// failures. runErr is the error that ended the session, if any.
func (c *Controller) shutdown(ctx context.Context, runErr error) error {
	var errList []error

	if c.started {
		if err := c.trigger.Send(c.cfg.SessionEndCode); err != nil {
			errList = append(errList, fmt.Errorf("send session end code: %w", err))
		}
	}

	if c.rec != nil {
		if err := c.rec.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	if err := c.opts.Source.Close(); err != nil {
		errList = append(errList, deviceError("close sensor", err))
	}
	if err := c.opts.Port.Close(); err != nil {
		errList = append(errList, deviceError("close output port", err))
	}
	if c.opts.Preview != nil {
		if err := c.opts.Preview.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close preview: %w", err))
		}
	}

	err := errors.Join(errList...)
	c.mu.Lock()
	c.summary.EndTime = c.clock.Now()
	if final := errors.Join(runErr, err); final != nil {
		c.summary.Err = final.Error()
	}
	c.mu.Unlock()

	if c.opts.Catalog != nil && c.rec != nil {
		// the run context may already be cancelled
		if cerr := c.opts.Catalog.EndSession(context.WithoutCancel(ctx), c.Summary()); cerr != nil {
			c.logf("catalog: %v", cerr)
		}
	}

	s := c.Summary()
	c.logf("closed after %d frames (%d epoch, %d background)",
		s.Frames, s.EpochFrames, s.BackgroundFrames)
	return err
}

func deviceError(op string, err error) error {
	if errors.Is(err, errs.ErrDevice) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", errs.ErrDevice, op, err)
}
