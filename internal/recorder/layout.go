package recorder

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/sync-recorder/internal/errs"
)

// TimestampLayout is the capture timestamp format used in the log.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Mode selects which sensor stream a session records.
type Mode string

const (
	ModeDepth    Mode = "depth"
	ModeInfrared Mode = "infrared"
)

// ParseMode accepts "depth" or "infrared" (also "ir"), case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "depth":
		return ModeDepth, nil
	case "infrared", "ir":
		return ModeInfrared, nil
	}
	return "", fmt.Errorf("%w: unknown sensor mode %q", errs.ErrConfiguration, s)
}

// Layout names the files a session writes for one sensor mode.
type Layout struct {
	FramePrefix string
	LogName     string
}

// LayoutFor returns the file layout for mode.
func LayoutFor(mode Mode) Layout {
	if mode == ModeInfrared {
		return Layout{FramePrefix: "ir_", LogName: "infrared_times.txt"}
	}
	return Layout{FramePrefix: "depth_", LogName: "depth_times.txt"}
}

// FrameName returns the file name for frame seq, e.g. depth_0000000042.png.
func (l Layout) FrameName(seq uint64, ext string) string {
	return fmt.Sprintf("%s%010d%s", l.FramePrefix, seq, ext)
}

// LogLine formats one timestamp log entry, newline included.
func LogLine(seq uint64, ts time.Time) string {
	return fmt.Sprintf("%010d\t%s\n", seq, ts.Format(TimestampLayout))
}
