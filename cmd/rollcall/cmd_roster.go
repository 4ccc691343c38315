package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/normalize"
	"rollcall/internal/roster"
)

func rosterCmd() *cobra.Command {
	var (
		date       string
		outputJSON bool
		record     bool
	)

	cmd := &cobra.Command{
		Use:   "roster [course-id]",
		Short: "Run one reconciliation pass for a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			day := time.Now().UTC()
			if date != "" {
				var err error
				if day, err = time.Parse(normalize.DateLayout, date); err != nil {
					return fmt.Errorf("roster: --date must be yyyy-MM-dd: %w", err)
				}
			}

			deps, err := wire(ctx)
			if err != nil {
				return fmt.Errorf("roster: %w", err)
			}
			defer deps.Close()

			rs, err := deps.Rosters.Run(ctx, args[0], day)
			if err != nil {
				return fmt.Errorf("roster: %w", err)
			}
			if record {
				if deps.History == nil {
					return fmt.Errorf("roster: --record needs a reachable DATABASE_URL")
				}
				if _, err := deps.History.RecordPass(ctx, rs); err != nil {
					return fmt.Errorf("roster: %w", err)
				}
			}

			if outputJSON {
				return printJSON(cmd.OutOrStdout(), rs)
			}
			return printRoster(cmd.OutOrStdout(), rs)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to reconcile, yyyy-MM-dd (default today, UTC)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&record, "record", false, "store the result as a roster snapshot")
	return cmd
}

func printRoster(w io.Writer, rs *roster.Roster) error {
	fmt.Fprintf(w, "Course %s on %s: %d present, %d absent\n", rs.CourseID, rs.Date, rs.PresentCount, rs.AbsentCount)
	if rs.NoAttendanceRecorded {
		fmt.Fprintln(w, "No attendance recorded.")
	}
	if len(rs.Unmatched) > 0 {
		fmt.Fprintf(w, "Scans not on the roster: %v\n", rs.Unmatched)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tTIME\tSOURCE")
	for _, e := range rs.Entries {
		at := "-"
		if e.StatusTime != nil {
			at = e.StatusTime.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.EntityID, e.DisplayName, e.Status, at, e.Source)
	}
	return tw.Flush()
}
