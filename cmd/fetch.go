package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/progress"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run the full ingestion pipeline once.",
	Long: `Fetch lists the bulk-data resources from the catalog, downloads any whose
cached copy is missing or stale, extracts and parses the archive files, and
writes the records to the store. Resources that already imported cleanly and
are unchanged upstream are skipped; --force re-imports everything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reporter := progress.NewReporter()
		p := newPipeline(reporter)

		runErr := p.Run(ctx, fetchForce)

		snap := reporter.Status()
		fmt.Printf("\nResources: %d total, %d completed, %d cached, %d failed\n",
			snap.TotalResources, snap.Completed, snap.Cached, len(snap.Failed))
		for _, f := range snap.Failed {
			fmt.Printf("  failed: %s (%s)\n", f.Filename, f.Reason)
		}
		for tableName, n := range snap.RecordsByTable {
			fmt.Printf("  %s: %d records\n", tableName, n)
		}
		return runErr
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "Re-import resources even if already imported")
}
