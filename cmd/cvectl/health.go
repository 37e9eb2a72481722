package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server liveness and readiness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := newClient()
		out := cmd.OutOrStdout()

		var live map[string]any
		if err := c.getJSON("/livez", &live); err != nil {
			return fmt.Errorf("liveness check failed: %w", err)
		}
		fmt.Fprintf(out, "Liveness:  %v\n", live["status"])

		var ready map[string]any
		if err := c.getJSON("/readyz", &ready); err != nil {
			return fmt.Errorf("readiness check failed: %w", err)
		}
		fmt.Fprintf(out, "Readiness: %v\n", ready["status"])
		if leader, ok := ready["leader"].(bool); ok {
			fmt.Fprintf(out, "Leader:    %t\n", leader)
		}
		return nil
	},
}
