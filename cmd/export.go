package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nben/cipofetch/internal/saver"
)

var exportChildren bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the patent tables to Parquet files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path, err := saver.ExportPatents(ctx, dbConn, appConfig.ExportDir, rootLogger)
		if err != nil {
			return err
		}
		fmt.Printf("Exported patents to %s\n", path)

		if !exportChildren {
			return nil
		}
		paths, err := saver.ExportChildTables(ctx, dbConn, appConfig.ExportDir, rootLogger)
		for _, p := range paths {
			fmt.Printf("Exported %s\n", p)
		}
		return err
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportChildren, "all", false, "Also export every child table")
}
