package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/weakevent/app"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Show a listener detaching itself once its target is collected",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop, svc, err := setup()
		if err != nil {
			return err
		}
		defer stop()
		defer closeService(svc)
		svc.Start(ctx)
		_, err = app.Demo(svc.Engine, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
