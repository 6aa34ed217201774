package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/weakevent/app"
	"github.com/kilianp07/weakevent/infra/mqtt"
)

var bridgePrefix string

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Relay MQTT messages through a weak listener",
	RunE:  bridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgePrefix, "prefix", "", "republish messages under this topic prefix")
	rootCmd.AddCommand(bridgeCmd)
}

func bridge(cmd *cobra.Command, args []string) error {
	ctx, stop, svc, err := setup()
	if err != nil {
		return err
	}
	defer stop()
	defer closeService(svc)

	src, err := mqtt.NewSource(svc.Config().MQTT)
	if err != nil {
		return fmt.Errorf("mqtt source: %w", err)
	}
	defer src.Close()

	relay := app.NewRelay(bridgePrefix, src)
	l, err := svc.Bridge(src, relay)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	if l == nil {
		return fmt.Errorf("bridge: Message event not resolved on %T", src)
	}
	defer l.Detach()

	if err := svc.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "relayed %d message(s)\n", relay.Total())
	return nil
}
