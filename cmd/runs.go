package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agriwater/core/runlog"
)

var (
	runsLimit  int
	runsStatus string
	runsSince  time.Duration
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past optimization runs from the run log",
	RunE:  runRuns,
}

func init() {
	f := runsCmd.Flags()
	f.IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
	f.StringVar(&runsStatus, "status", "", "only runs with this solver status")
	f.DurationVar(&runsSince, "since", 0, "only runs newer than this duration")
	f.BoolVar(&runsJSON, "json", false, "print records as JSON lines")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.MQTT.Enabled = false
	cfg.Metrics.Sinks = nil
	svc, err := newServiceFrom(cfg)
	if err != nil {
		return err
	}
	defer closeService(svc)

	q := runlog.Query{Status: runsStatus, Limit: runsLimit}
	if runsSince > 0 {
		q.Start = time.Now().Add(-runsSince)
	}
	recs, err := svc.Runs(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runsJSON {
		enc := json.NewEncoder(out)
		for _, r := range recs {
			r.Schedule, r.Comparison = nil, nil
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTIME\tSTATUS\tHORIZON\tCOST\tSAVINGS\tFAILURE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.0f\t%.0f\t%s\n",
			r.RunID, r.Timestamp.Format(time.RFC3339), r.Status, r.Horizon, r.TotalCost, r.Savings, r.Failure)
	}
	return tw.Flush()
}
