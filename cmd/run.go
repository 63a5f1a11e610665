package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runLimit int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily batch: score, promote, verify, draft, assign, revise, publish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Newsroom.RunDaily(ctx, runLimit)
		if perr := printJSON(os.Stdout, res); perr != nil && err == nil {
			err = perr
		}
		if err != nil {
			return eris.Wrap(err, "daily run")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max items per stage (0 = all)")
	rootCmd.AddCommand(runCmd)
}
