package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kairosgraph/kairos/pkg/ingest"
	"github.com/kairosgraph/kairos/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <tenant-id>",
	Short: "Ingest CSV data into a tenant's graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodesPath, _ := cmd.Flags().GetString("nodes")
		edgesPath, _ := cmd.Flags().GetString("relationships")
		if nodesPath == "" && edgesPath == "" {
			return usageError{msg: "at least one of --nodes or --relationships is required"}
		}

		core, _, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		loader := ingest.NewLoader(core.Store(), core.Logger())
		t := types.TenantID(args[0])

		if nodesPath != "" {
			f, err := os.Open(nodesPath)
			if err != nil {
				return err
			}
			stats, err := loader.LoadNodes(cmd.Context(), t, f)
			f.Close()
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d nodes\n", stats.Nodes)
		}
		if edgesPath != "" {
			f, err := os.Open(edgesPath)
			if err != nil {
				return err
			}
			stats, err := loader.LoadRelationships(cmd.Context(), t, f)
			f.Close()
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d relationships\n", stats.Edges)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("nodes", "", "node CSV file (id_alias,label,prop...)")
	ingestCmd.Flags().String("relationships", "", "relationship CSV file (from_alias,to_alias,kind,valid_from[,valid_to],prop...)")
}
