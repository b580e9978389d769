package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/analyser"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the combined analysis report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var w io.Writer = os.Stdout
		if reportOut != "" {
			f, err := os.Create(reportOut)
			if err != nil {
				return fmt.Errorf("create report file %s: %w", reportOut, err)
			}
			defer f.Close()
			w = f
		}
		return analyser.WriteReport(cmd.Context(), dbConn, w)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the report to a file instead of stdout")
}
