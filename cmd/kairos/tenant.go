package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <tenant-id>",
	Short: "Create a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, _ := cmd.Flags().GetString("isolation")
		core, _, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		info, err := core.CreateTenant(cmd.Context(), types.TenantID(args[0]), tenant.IsolationPolicy(policy))
		if err != nil {
			return err
		}
		fmt.Printf("Created tenant %s (isolation: %s)\n", info.ID, info.Policy)
		return nil
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, _, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tISOLATION\tSTATUS\tCREATED")
		for _, info := range core.ListTenants(cmd.Context()) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.ID, info.Policy, info.Status, info.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var tenantDescribeCmd = &cobra.Command{
	Use:   "describe <tenant-id>",
	Short: "Describe a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		core, _, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		info, err := core.DescribeTenant(cmd.Context(), types.TenantID(args[0]))
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete <tenant-id>",
	Short: "Delete a tenant and its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		core, _, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		if err := core.DeleteTenant(cmd.Context(), types.TenantID(args[0]), force); err != nil {
			return err
		}
		fmt.Printf("Deleted tenant %s\n", args[0])
		return nil
	},
}

func init() {
	tenantCreateCmd.Flags().String("isolation", "", "isolation policy: property, label, database")
	tenantDeleteCmd.Flags().Bool("force", false, "drop the registry entry even if the data purge fails")

	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantDescribeCmd)
	tenantCmd.AddCommand(tenantDeleteCmd)
}
