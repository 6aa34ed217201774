// Package cmd implements the weakevent command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/weakevent/app"
	"github.com/kilianp07/weakevent/config"
	"github.com/kilianp07/weakevent/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "weakevent",
	Short: "Weak event subscription engine",
	Long: "weakevent runs the weak event engine: self-detaching listeners that never keep their target alive.\n" +
		"Without a subcommand it serves the metrics endpoints until interrupted.",
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// setup loads the configuration and builds the service. The caller closes
// the service.
func setup() (context.Context, context.CancelFunc, *app.Service, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return ctx, stop, svc, nil
}

func closeService(svc *app.Service) {
	if err := svc.Close(); err != nil {
		logger.New("main").Errorf("service close: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop, svc, err := setup()
	if err != nil {
		return err
	}
	defer stop()
	defer closeService(svc)
	return svc.Run(ctx)
}
