package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agriwater/simulator"
)

var (
	consumeDelay    time.Duration
	consumeDropRate float64
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run a simulated schedule consumer that acknowledges published runs",
	RunE:  runConsume,
}

func init() {
	f := consumeCmd.Flags()
	f.DurationVar(&consumeDelay, "ack-delay", 0, "delay before acknowledging")
	f.Float64Var(&consumeDropRate, "drop-rate", 0, "probability of not acknowledging a run")
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.MQTT.Broker == "" || cfg.MQTT.AckTopic == "" {
		return fmt.Errorf("mqtt.broker and mqtt.ack_topic are required")
	}
	cli, err := simulator.NewMQTTClient(cfg.MQTT.Broker, fmt.Sprintf("agriwater-consumer-%d", time.Now().UnixNano()))
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer cli.Disconnect(250)

	c := &simulator.Consumer{
		Client:      cli,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		AckTopic:    cfg.MQTT.AckTopic,
		Delay:       consumeDelay,
		DropRate:    consumeDropRate,
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", simulator.ScheduleFilter(cfg.MQTT.TopicPrefix))
	return c.Run(ctx)
}
