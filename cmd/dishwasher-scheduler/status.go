package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/dishwasher-scheduler/internal/logger"
	"github.com/sweeney/dishwasher-scheduler/internal/mqtt"
	"github.com/sweeney/dishwasher-scheduler/internal/relay"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the relay output and power draw",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mcfg := cfg.MQTT
		// Avoid kicking the daemon off the broker.
		mcfg.ClientID += "-status"

		conn, err := mqtt.Dial(mcfg, logger.NopLogger{})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer conn.Close()

		shelly, err := relay.NewShelly(conn, cfg.Shelly, mcfg.ClientID, logger.NopLogger{})
		if err != nil {
			return fmt.Errorf("shelly: %w", err)
		}
		defer shelly.Close()
		return printStatus(cmd.Context(), cmd.OutOrStdout(), shelly, shelly)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(ctx context.Context, w io.Writer, sw relay.Switch, m relay.Meter) error {
	on, err := sw.Output(ctx)
	if err != nil {
		return fmt.Errorf("read relay: %w", err)
	}
	power, err := m.Power(ctx)
	if err != nil {
		return fmt.Errorf("read power: %w", err)
	}
	_, err = fmt.Fprintf(w, "relay: %s, power: %.1fW\n", stateString(on), power)
	return err
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
