package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportOut  string
	exportFrom string
	exportTo   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download your analyses as an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := api.ExportXLSX(cmd.Context(), exportFrom, exportTo)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", exportOut, len(data))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "palm-analyses.xlsx", "Output file")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Only analyses created on or after YYYY-MM-DD")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Only analyses created on or before YYYY-MM-DD")
	rootCmd.AddCommand(exportCmd)
}
