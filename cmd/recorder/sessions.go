package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/sync-recorder/internal/db"
)

// runSessions lists the most recent sessions in the catalog.
func runSessions(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	path := fs.String("catalog", "sessions.db", "Session catalog database")
	limit := fs.Int("limit", 20, "Number of sessions to list (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	catalog, err := db.NewDB(*path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalog.Close()

	recs, err := catalog.ListSessions(context.Background(), *limit)
	if err != nil {
		return err
	}
	return printSessions(out, recs)
}

func printSessions(out io.Writer, recs []db.SessionRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tMODE\tFRAMES\tEPOCHS\tDURATION\tSTATUS\tDIRECTORY")
	for _, r := range recs {
		dur := "-"
		if r.EndTime != nil {
			dur = r.Duration().Round(time.Second).String()
		}
		status := r.Status
		if r.Error != "" {
			status += ": " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.StartTime.Local().Format(time.DateTime), r.Mode, r.Frames, r.EpochFrames, dur, status, r.OutputDirectory)
	}
	return tw.Flush()
}
