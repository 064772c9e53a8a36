package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/clientcli"
)

var statusCmd = &cobra.Command{
	Use:   "status <id> [id...]",
	Short: "Show the lifecycle state of files",
	Long: `Show the lifecycle state (PENDING, FINALIZED, FAILED, DELETED) of
one or more files. With -q only the state is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ids, err := clientcli.ParseIDs(args)
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	formatter := getFormatter()
	for _, id := range ids {
		status, err := client.Status(cmd.Context(), id)
		if err != nil {
			return err
		}
		if err := formatter.FormatStatus(stdout(cmd), status); err != nil {
			return err
		}
	}
	return nil
}
