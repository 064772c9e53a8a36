package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <id> <new-name>",
	Short: "Rename a stored file",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

func runRename(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid file id %q: %w", args[0], err)
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	info, err := client.Rename(cmd.Context(), id, args[1])
	if err != nil {
		return err
	}

	return getFormatter().FormatFile(stdout(cmd), info)
}
