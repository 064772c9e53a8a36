package main

import "github.com/spf13/cobra"

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Trigger a reconcile pass on the server (requires files:admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}

		report, err := client.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		return getFormatter().FormatReconcile(stdout(cmd), report)
	},
}
