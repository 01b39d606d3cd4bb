package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kairosgraph/kairos/pkg/temporal"
	"github.com/kairosgraph/kairos/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query <tenant-id>",
	Short: "Query a tenant's graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		labels, _ := cmd.Flags().GetStringSlice("labels")
		kinds, _ := cmd.Flags().GetStringSlice("kinds")
		validAt, _ := cmd.Flags().GetString("valid-at")
		txAt, _ := cmd.Flags().GetString("transaction-at")
		limit, _ := cmd.Flags().GetInt("limit")
		relationships, _ := cmd.Flags().GetBool("relationships")

		var leaf types.GraphQuery
		if relationships || len(kinds) > 0 {
			fr := types.FindRelationships{Kinds: kinds, Limit: limit}
			leaf = fr
		} else {
			leaf = types.FindNodes{Labels: labels, Limit: limit}
		}

		q := leaf
		switch {
		case validAt != "" && txAt != "":
			vt, err := temporal.ParseTimestamp(validAt)
			if err != nil {
				return err
			}
			tt, err := temporal.ParseTimestamp(txAt)
			if err != nil {
				return err
			}
			q = types.Bitemporal{Inner: leaf, ValidTime: vt, TransactionTime: tt}
		case validAt != "":
			vt, err := temporal.ParseTimestamp(validAt)
			if err != nil {
				return err
			}
			q = types.AsOf{Inner: leaf, ValidTime: vt}
		case txAt != "":
			tt, err := temporal.ParseTimestamp(txAt)
			if err != nil {
				return err
			}
			q = types.AsAt{Inner: leaf, TransactionTime: tt}
		}

		core, _, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		paths, err := core.Query(cmd.Context(), types.TenantID(args[0]), q)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(paths, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	queryCmd.Flags().StringSlice("labels", nil, "node labels to match")
	queryCmd.Flags().StringSlice("kinds", nil, "relationship kinds to match (implies a relationship query)")
	queryCmd.Flags().Bool("relationships", false, "query relationships instead of nodes")
	queryCmd.Flags().String("valid-at", "", "pin valid time (RFC3339)")
	queryCmd.Flags().String("transaction-at", "", "pin transaction time (RFC3339)")
	queryCmd.Flags().Int("limit", 0, "maximum rows")
}
