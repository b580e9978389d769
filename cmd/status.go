package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/fetchcache"
	"github.com/nben/cipofetch/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store row counts, cache status, and recent import events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		counts, err := store.TableCounts(ctx, dbConn)
		if err != nil {
			return err
		}
		fmt.Println("Table row counts:")
		for _, tableName := range []string{
			"patents", "patent_abstracts", "patent_claims", "patent_disclosures",
			"patent_parties", "patent_ipc", "patent_priority_claims",
		} {
			fmt.Printf("  %-24s %d\n", tableName, counts[tableName])
		}

		cache := fetchcache.New(appConfig.CacheDir, rootLogger)
		files, totalBytes, err := cache.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("\nCache: %d archives, %.1f MB, in %s\n",
			files, float64(totalBytes)/1024/1024, appConfig.CacheDir)

		events, err := store.ImportHistory(ctx, dbConn, statusLimit)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			fmt.Printf("\nRecent import events (limit %d):\n", statusLimit)
			fmt.Printf("  %-40s | %-15s | %-20s | %s\n", "Resource", "Event", "Timestamp (UTC)", "Details")
			for _, ev := range events {
				details := ev.Message
				if ev.Records > 0 {
					details = fmt.Sprintf("%d records", ev.Records)
				}
				fmt.Printf("  %-40s | %-15s | %-20s | %s\n",
					ev.Filename, ev.Event, ev.Timestamp.Format(time.RFC3339), details)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum import events to display")
}
