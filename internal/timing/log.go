// Package timing analyses the timestamp log of a recorded session: frame
// intervals, sequence gaps and the epoch frames the trigger box saw, plus
// PNG and HTML renderings of the same.
package timing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/fsutil"
	"github.com/banshee-data/sync-recorder/internal/recorder"
)

// ErrMalformed is returned for a log line that cannot be parsed or that
// breaks sequence order.
var ErrMalformed = errors.New("malformed timestamp log")

// Entry is one log line.
type Entry struct {
	Sequence uint64
	Time     time.Time
}

// ParseLog reads log lines in the recorder format. Blank lines are skipped.
// Sequence numbers must increase strictly; gaps are allowed and show up in
// the statistics.
func ParseLog(r io.Reader, loc *time.Location) ([]Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	var (
		entries []Entry
		lineNo  int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		seqField, tsField, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing tab separator", ErrMalformed, lineNo)
		}
		// older depth logs wrote the sequence unpadded
		seq, err := strconv.ParseUint(strings.TrimSpace(seqField), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: sequence %q: %w", ErrMalformed, lineNo, seqField, err)
		}
		ts, err := time.ParseInLocation(recorder.TimestampLayout, strings.TrimSpace(tsField), loc)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: timestamp %q: %w", ErrMalformed, lineNo, tsField, err)
		}
		if n := len(entries); n > 0 && seq <= entries[n-1].Sequence {
			return nil, fmt.Errorf("%w: line %d: sequence %d after %d", ErrMalformed, lineNo, seq, entries[n-1].Sequence)
		}
		entries = append(entries, Entry{Sequence: seq, Time: ts})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read log: %w", errs.ErrIO, err)
	}
	return entries, nil
}

// LoadSessionLog finds the timestamp log in a session directory and parses
// it. The depth log is tried first.
func LoadSessionLog(fs fsutil.FileSystem, dir string) (recorder.Mode, []Entry, error) {
	for _, mode := range []recorder.Mode{recorder.ModeDepth, recorder.ModeInfrared} {
		path := filepath.Join(dir, recorder.LayoutFor(mode).LogName)
		if !fs.Exists(path) {
			continue
		}
		f, err := fs.Open(path)
		if err != nil {
			return "", nil, fmt.Errorf("%w: open %s: %w", errs.ErrIO, path, err)
		}
		entries, err := ParseLog(f, time.Local)
		f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", path, err)
		}
		return mode, entries, nil
	}
	return "", nil, fmt.Errorf("%w: no timestamp log in %s", errs.ErrIO, dir)
}
