package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/trackbridge/trackbridge/internal/ratelimit"
	"github.com/trackbridge/trackbridge/internal/ui"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the remaining GitHub API budget",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(false)
		tgt, err := openTarget(rootCtx, cfg)
		if err != nil {
			FatalError("%v", err)
		}
		gov := ratelimit.New(tgt, cfg.Migrate.SpareRequests)
		rl, err := gov.Snapshot(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(rl)
			return
		}
		ui.RenderRateLimit(os.Stdout, rl, gov.Threshold())
	},
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)
}
