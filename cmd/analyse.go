package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/analyser"
)

var analyseOpportunities bool

var analyseCmd = &cobra.Command{
	Use:     "analyse",
	Aliases: []string{"analyze"},
	Short:   "Print patent trend analysis (or opportunity suggestions).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if analyseOpportunities {
			opportunities, err := analyser.SuggestOpportunities(ctx, dbConn)
			if err != nil {
				return err
			}
			analyser.RenderOpportunities(os.Stdout, opportunities)
			return nil
		}
		trends, err := analyser.AnalyseTrends(ctx, dbConn)
		if err != nil {
			return err
		}
		analyser.RenderTrends(os.Stdout, trends)
		return nil
	},
}

func init() {
	analyseCmd.Flags().BoolVar(&analyseOpportunities, "opportunities", false, "Suggest opportunities instead of trends")
}
