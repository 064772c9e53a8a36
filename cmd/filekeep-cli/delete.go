package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/clientcli"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id> [id...]",
	Short: "Delete files from the server",
	Long: `Request deletion of one or more files. The files stop being readable
immediately; the server removes their bytes on its next reconcile pass.

Examples:
  filekeep-cli delete 0b8e...
  filekeep-cli delete -q 0b8e... 91fa...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	ids, err := clientcli.ParseIDs(args)
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	results, err := client.Delete(cmd.Context(), clientcli.DeleteOptions{IDs: ids})
	if err != nil {
		return err
	}

	if err := getFormatter().FormatDelete(stdout(cmd), results); err != nil {
		return err
	}

	if clientcli.HasDeleteErrors(results) {
		return &exitError{code: 1}
	}
	return nil
}
