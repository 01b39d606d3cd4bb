package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kairosgraph/kairos/pkg/export"
	"github.com/kairosgraph/kairos/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export <tenant-id>",
	Short: "Export a tenant's graph to an exchange format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("output")

		format, err := export.ParseFormat(formatStr)
		if err != nil {
			return err
		}

		core, _, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return export.Export(cmd.Context(), core.Store(), types.TenantID(args[0]), format, out)
	},
}

func init() {
	exportCmd.Flags().String("format", "jsonl", "output format: jsonl, graphml")
	exportCmd.Flags().String("output", "", "output file (default stdout)")
}
