package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/sync-recorder/internal/config"
	"github.com/banshee-data/sync-recorder/internal/db"
	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/frame"
	"github.com/banshee-data/sync-recorder/internal/hwport"
	"github.com/banshee-data/sync-recorder/internal/preview"
	"github.com/banshee-data/sync-recorder/internal/recorder"
	"github.com/banshee-data/sync-recorder/internal/sensor"
	"github.com/banshee-data/sync-recorder/internal/session"
	"github.com/banshee-data/sync-recorder/internal/timeutil"
	"github.com/banshee-data/sync-recorder/internal/version"
)

var (
	configPath  = flag.String("config", "config.ini", "Session configuration file (.ini, .yaml or .json)")
	sensorMode  = flag.String("mode", "depth", "Sensor stream to record: depth or infrared")
	portKind    = flag.String("port-kind", "serial", "Trigger output: serial, parallel or disabled")
	portPath    = flag.String("port", "/dev/ttyUSB0", "Trigger output device (serial port or /dev/parportN)")
	baudRate    = flag.Int("baud", hwport.DefaultBaudRate, "Serial trigger box baud rate")
	sourceKind  = flag.String("source", "pipe", "Frame source: pipe or synthetic")
	captureCmd  = flag.String("capture-cmd", "", "Capture helper command line for the pipe source")
	frameWidth  = flag.Int("width", 512, "Sensor frame width in pixels")
	frameHeight = flag.Int("height", 424, "Sensor frame height in pixels")
	fps         = flag.Float64("fps", 30, "Synthetic source frame rate")
	dropEvery   = flag.Uint64("drop-every", 0, "Synthetic source: deliver a frame without pixels every N frames (0 = never)")
	showPreview = flag.Bool("preview", true, "Show the live preview window (Esc or closing it stops the session)")
	catalogPath = flag.String("catalog", "", "Session catalog database (empty disables the catalog)")
	pollEvery   = flag.Duration("poll-interval", time.Millisecond, "Sleep between sensor polls that find no new frame (0 = spin)")
	logEvery    = flag.Uint64("log-every", 300, "Log progress every N frames (0 = never)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sessions" {
		if err := runSessions(os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("sessions: %v", err)
		}
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("recorder"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("recorder: %v", err)
	}
}

// settings are the validated command-line choices.
type settings struct {
	cfg  *config.Config
	mode recorder.Mode
	kind hwport.Kind
	desc frame.Description
}

// loadSettings reads the session configuration and checks every flag before
// any device is opened.
func loadSettings() (*settings, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	mode, err := recorder.ParseMode(*sensorMode)
	if err != nil {
		return nil, err
	}
	kind, err := hwport.ParseKind(*portKind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}
	desc := frame.Description{Width: *frameWidth, Height: *frameHeight}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}
	switch *sourceKind {
	case "pipe":
		if strings.TrimSpace(*captureCmd) == "" {
			return nil, fmt.Errorf("%w: -capture-cmd is required for the pipe source", errs.ErrConfiguration)
		}
	case "synthetic":
		if *fps <= 0 {
			return nil, fmt.Errorf("%w: -fps must be positive", errs.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unknown source %q: expected pipe or synthetic", errs.ErrConfiguration, *sourceKind)
	}
	return &settings{cfg: cfg, mode: mode, kind: kind, desc: desc}, nil
}

func run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	port, err := hwport.Open(s.kind, *portPath, hwport.PortOptions{BaudRate: *baudRate})
	if err != nil {
		return fmt.Errorf("%w: open trigger output: %w", errs.ErrDevice, err)
	}
	log.Printf("trigger output: %s %s", s.kind, *portPath)

	src, err := openSource(*sourceKind, s.desc, *captureCmd, *fps, *dropEvery)
	if err != nil {
		port.Close()
		return err
	}

	opts := session.Options{
		Config:       s.cfg,
		Mode:         s.mode,
		Source:       src,
		Port:         port,
		Encoder:      encoderFor(s.mode),
		PollInterval: *pollEvery,
		LogEvery:     *logEvery,
	}
	if *catalogPath != "" {
		catalog, err := db.NewDB(*catalogPath)
		if err != nil {
			src.Close()
			port.Close()
			return fmt.Errorf("open catalog: %w", err)
		}
		defer catalog.Close()
		opts.Catalog = catalog
	}
	if *showPreview {
		opts.Preview = preview.NewWindow(windowTitle(s.mode))
	}

	ctl, err := session.New(opts)
	if err != nil {
		src.Close()
		port.Close()
		if opts.Preview != nil {
			opts.Preview.Close()
		}
		return err
	}

	sum, err := ctl.Run(ctx)
	log.Printf("session %s: %d frames in %s (%d epoch, %d background)",
		sum.ID, sum.Frames, sum.OutputDirectory, sum.EpochFrames, sum.BackgroundFrames)
	return err
}

// openSource builds the frame source named on the command line.
func openSource(kind string, desc frame.Description, command string, rate float64, drop uint64) (sensor.Source, error) {
	switch kind {
	case "pipe":
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: empty capture command", errs.ErrConfiguration)
		}
		src, err := sensor.StartCapture(desc, fields[0], fields[1:]...)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "synthetic":
		src, err := sensor.NewSyntheticSource(desc, rate, timeutil.RealClock{})
		if err != nil {
			return nil, err
		}
		src.DropPixelsEvery = drop
		return src, nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q: expected pipe or synthetic", errs.ErrConfiguration, kind)
	}
}

// encoderFor picks the frame file format for a sensor mode.
func encoderFor(mode recorder.Mode) recorder.Encoder {
	if mode == recorder.ModeInfrared {
		return recorder.NPYEncoder{}
	}
	return preview.PNGEncoder{}
}

func windowTitle(mode recorder.Mode) string {
	if mode == recorder.ModeInfrared {
		return "Infrared"
	}
	return "Depth"
}
