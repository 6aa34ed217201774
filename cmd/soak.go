package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/weakevent/app"
)

var (
	soakListeners int
	soakRounds    int
	soakFires     int
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Subscribe and drop many short lived targets and report collection",
	RunE:  soak,
}

func init() {
	soakCmd.Flags().IntVar(&soakListeners, "listeners", 0, "targets per round (overrides soak.listeners)")
	soakCmd.Flags().IntVar(&soakRounds, "rounds", 0, "number of rounds (overrides soak.rounds)")
	soakCmd.Flags().IntVar(&soakFires, "fires", 0, "firings per round (overrides soak.fires)")
	rootCmd.AddCommand(soakCmd)
}

func soak(cmd *cobra.Command, args []string) error {
	ctx, stop, svc, err := setup()
	if err != nil {
		return err
	}
	defer stop()
	defer closeService(svc)
	svc.Start(ctx)

	cfg := svc.Config().Soak
	if soakListeners > 0 {
		cfg.Listeners = soakListeners
	}
	if soakRounds > 0 {
		cfg.Rounds = soakRounds
	}
	if soakFires > 0 {
		cfg.Fires = soakFires
	}
	sum, err := app.Soak(ctx, svc.Engine, cfg, svc.Sink)
	if err != nil {
		return fmt.Errorf("soak: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "listeners:   %d\n", sum.Listeners)
	fmt.Fprintf(out, "collected:   %d\n", sum.Collected)
	fmt.Fprintf(out, "detached:    %d\n", sum.Detached)
	fmt.Fprintf(out, "dispatches:  %d\n", sum.Dispatches)
	fmt.Fprintf(out, "fire mean:   %s (stddev %s)\n", sum.MeanLatency, sum.StdDevLatency)
	fmt.Fprintf(out, "duration:    %s\n", sum.Duration)
	return nil
}
