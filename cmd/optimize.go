package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agriwater/pkg/export"
)

var (
	optHorizon   int
	optStartHour int
	optInput     string
	optOutput    string
	optQuiet     bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compute the cost-minimal pump schedule for the configured feed",
	RunE:  runOptimize,
}

func init() {
	f := optimizeCmd.Flags()
	f.IntVar(&optHorizon, "horizon", 0, "planning horizon in hours (overrides config)")
	f.IntVar(&optStartHour, "start-hour", -1, "hour of day of the first planned hour (overrides config)")
	f.StringVarP(&optInput, "input", "i", "", "pumping feed CSV (overrides config)")
	f.StringVarP(&optOutput, "output", "o", "", "output directory (overrides config)")
	f.BoolVarP(&optQuiet, "quiet", "q", false, "do not print the summary report")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if optHorizon > 0 {
		cfg.Optimizer.Horizon = optHorizon
	}
	if optStartHour >= 0 {
		cfg.Optimizer.StartHour = optStartHour % 24
	}
	if optInput != "" {
		cfg.Input.Path = optInput
	}
	if optOutput != "" {
		cfg.Output.Dir = optOutput
	}

	svc, err := newServiceFrom(cfg)
	if err != nil {
		return err
	}
	defer closeService(svc)
	svc.Start(ctx)

	res, err := svc.Optimize(ctx)
	if err != nil {
		return err
	}
	if optQuiet {
		return nil
	}
	return export.WriteSummary(cmd.OutOrStdout(), res)
}
