package timing

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sync-recorder/internal/epoch"
)

// DefaultLateFactor marks an interval as late when it exceeds this multiple
// of the median interval.
const DefaultLateFactor = 1.5

// Stats summarises the frame timing of one session.
type Stats struct {
	Frames   int
	First    uint64
	Last     uint64
	Duration time.Duration

	// Missing counts sequence numbers absent between First and Last.
	Missing uint64

	MeanInterval   time.Duration
	StdDevInterval time.Duration
	MinInterval    time.Duration
	MaxInterval    time.Duration
	MedianInterval time.Duration
	P95Interval    time.Duration

	// FrameRate is derived from the mean interval; zero with fewer than two
	// frames.
	FrameRate float64

	// LateFrames counts intervals above LateFactor times the median.
	LateFrames int
	LateFactor float64
}

// Intervals returns the gaps between consecutive entries in seconds.
func Intervals(entries []Entry) []float64 {
	if len(entries) < 2 {
		return nil
	}
	out := make([]float64, len(entries)-1)
	for i := 1; i < len(entries); i++ {
		out[i-1] = entries[i].Time.Sub(entries[i-1].Time).Seconds()
	}
	return out
}

// Compute returns the statistics of entries. A non-positive lateFactor uses
// DefaultLateFactor.
func Compute(entries []Entry, lateFactor float64) Stats {
	if lateFactor <= 0 {
		lateFactor = DefaultLateFactor
	}
	s := Stats{Frames: len(entries), LateFactor: lateFactor}
	if len(entries) == 0 {
		return s
	}
	s.First = entries[0].Sequence
	s.Last = entries[len(entries)-1].Sequence
	s.Missing = s.Last - s.First + 1 - uint64(len(entries))
	s.Duration = entries[len(entries)-1].Time.Sub(entries[0].Time)

	iv := Intervals(entries)
	if len(iv) == 0 {
		return s
	}

	mean := stat.Mean(iv, nil)
	s.MeanInterval = seconds(mean)
	if len(iv) > 1 {
		_, std := stat.MeanStdDev(iv, nil)
		s.StdDevInterval = seconds(std)
	}
	s.MinInterval = seconds(floats.Min(iv))
	s.MaxInterval = seconds(floats.Max(iv))

	sorted := append([]float64(nil), iv...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.MedianInterval = seconds(median)
	s.P95Interval = seconds(stat.Quantile(0.95, stat.Empirical, sorted, nil))

	if mean > 0 {
		s.FrameRate = 1 / mean
	}
	for _, v := range iv {
		if v > lateFactor*median {
			s.LateFrames++
		}
	}
	return s
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Marker is a logged frame that carried an epoch code.
type Marker struct {
	Entry
	Code int
}

// EpochMarkers replays the epoch schedule over the logged sequence numbers
// and returns the frames that carried an epoch code. Sequence numbers
// missing from the log still advance the schedule.
func EpochMarkers(entries []Entry, intervalFrames, epochCount, backgroundCode int) ([]Marker, error) {
	sched, err := epoch.New(intervalFrames, epochCount, backgroundCode)
	if err != nil {
		return nil, err
	}
	var (
		markers []Marker
		next    uint64 = 1
	)
	for _, e := range entries {
		for ; next < e.Sequence; next++ {
			sched.Next(next)
		}
		d := sched.Next(e.Sequence)
		next = e.Sequence + 1
		if d.Kind == epoch.Epoch {
			markers = append(markers, Marker{Entry: e, Code: d.Code})
		}
	}
	return markers, nil
}
