package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, cfg, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		if err := core.HealthCheck(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("ok (driver: %s)\n", cfg.Database.Driver)
		return nil
	},
}
