// Command timing-report checks the frame timing of a recorded session and
// writes an interval plot and an HTML report next to it.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/sync-recorder/internal/config"
	"github.com/banshee-data/sync-recorder/internal/fsutil"
	"github.com/banshee-data/sync-recorder/internal/timing"
	"github.com/banshee-data/sync-recorder/internal/version"
)

var (
	outDir      = flag.String("out", "", "Output directory for the plot and report (default: the session directory)")
	configFile  = flag.String("config", "", "Session configuration used to mark epoch frames (default: the snapshot in the session directory)")
	lateFactor  = flag.Float64("late-factor", timing.DefaultLateFactor, "Count intervals above this multiple of the median as late")
	assetsHost  = flag.String("assets-host", "", "Where the HTML report loads echarts from (default: the public CDN)")
	noPlot      = flag.Bool("no-plot", false, "Skip the PNG interval plot")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const (
	plotName   = "intervals.png"
	reportName = "timing_report.html"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: timing-report [options] <session-dir>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("timing-report"))
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), os.Stdout); err != nil {
		log.Fatalf("timing-report: %v", err)
	}
}

func run(dir string, out io.Writer) error {
	fs := fsutil.OSFileSystem{}
	mode, entries, err := timing.LoadSessionLog(fs, dir)
	if err != nil {
		return err
	}
	stats := timing.Compute(entries, *lateFactor)

	markers, err := sessionMarkers(fs, dir, *configFile, entries)
	if err != nil {
		return err
	}

	dest := *outDir
	if dest == "" {
		dest = dir
	}
	title := filepath.Base(filepath.Clean(dir))

	printStats(out, title, string(mode), stats, len(markers))
	if len(entries) < 2 {
		log.Printf("%s: fewer than two frames, no plot or report written", title)
		return nil
	}

	if !*noPlot {
		plotPath := filepath.Join(dest, plotName)
		if err := timing.SavePlot(plotPath, title, entries, markers); err != nil {
			return fmt.Errorf("write plot: %w", err)
		}
		log.Printf("wrote %s", plotPath)
	}

	reportPath := filepath.Join(dest, reportName)
	if err := writeReport(reportPath, timing.Report{
		Title:      title,
		Subtitle:   string(mode),
		Entries:    entries,
		Markers:    markers,
		Stats:      stats,
		AssetsHost: *assetsHost,
	}); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Printf("wrote %s", reportPath)
	return nil
}

// writeReport renders r to path. The file is closed exactly once and a
// failed close is reported.
func writeReport(path string, r timing.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := timing.RenderHTML(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// sessionMarkers replays the epoch schedule from the session configuration.
// Without an explicit path the snapshot in dir is used; if there is none,
// no epoch frames are marked.
func sessionMarkers(fs fsutil.FileSystem, dir, path string, entries []timing.Entry) ([]timing.Marker, error) {
	if path == "" {
		path = findSnapshot(fs, dir)
		if path == "" {
			log.Printf("no config snapshot in %s, epoch frames not marked", dir)
			return nil, nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return timing.EpochMarkers(entries, cfg.IntervalFrames, cfg.EpochCount, cfg.BackgroundCode)
}

func findSnapshot(fs fsutil.FileSystem, dir string) string {
	for _, ext := range []string{".ini", ".yaml", ".yml", ".json"} {
		p := filepath.Join(dir, "config"+ext)
		if fs.Exists(p) {
			return p
		}
	}
	return ""
}

func printStats(w io.Writer, title, mode string, s timing.Stats, epochs int) {
	fmt.Fprintf(w, "%s (%s)\n", title, mode)
	fmt.Fprintf(w, "  frames        %d (seq %d..%d, %d missing)\n", s.Frames, s.First, s.Last, s.Missing)
	fmt.Fprintf(w, "  duration      %v\n", s.Duration)
	fmt.Fprintf(w, "  frame rate    %.2f fps\n", s.FrameRate)
	fmt.Fprintf(w, "  interval      mean %v  sd %v  median %v  p95 %v\n",
		s.MeanInterval, s.StdDevInterval, s.MedianInterval, s.P95Interval)
	fmt.Fprintf(w, "  range         %v .. %v\n", s.MinInterval, s.MaxInterval)
	fmt.Fprintf(w, "  late frames   %d (> %.1fx median)\n", s.LateFrames, s.LateFactor)
	fmt.Fprintf(w, "  epoch frames  %d\n", epochs)
}
