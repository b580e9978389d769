package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/app"
	"github.com/nben/cipofetch/internal/fetchcache"
	"github.com/nben/cipofetch/internal/progress"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Start the interactive terminal menu.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reporter := progress.NewReporter()
		p := newPipeline(reporter)

		return app.Run(app.Deps{
			DB:       dbConn,
			Cache:    fetchcache.New(appConfig.CacheDir, rootLogger),
			Reporter: reporter,
			RunPipeline: func(runCtx context.Context) error {
				return p.Run(runCtx, false)
			},
			CacheDir: appConfig.CacheDir,
		})
	},
}
