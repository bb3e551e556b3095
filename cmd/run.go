package cmd

import (
	"log"

	"github.com/dezerx-spartan/Spartan-Bot/spartanbot"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the Spartan Bot gateway connection and (optionally) the status API",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			bot, err := spartanbot.New(cfg)
			if err != nil {
				log.Fatalf("error creating spartanbot: %s", err.Error())
			}

			if err = bot.Run(ctx); err != nil {
				log.Fatalf("error running spartanbot: %s", err.Error())
			}
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
}
