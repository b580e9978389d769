package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/progress"
	"github.com/nben/cipofetch/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browse and analysis HTTP API.",
	Long: `Serve starts the HTTP API over the patent store. Ingestion can be
triggered through POST /api/fetch and observed through GET /api/status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reporter := progress.NewReporter()
		p := newPipeline(reporter)

		srv := web.NewServer(dbConn, reporter, func(runCtx context.Context) error {
			return p.Run(runCtx, false)
		}, rootLogger)
		return srv.Run(ctx, appConfig.ListenAddr)
	},
}
