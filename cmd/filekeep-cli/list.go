package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/clientcli"
)

var (
	listLimit  int
	listAll    bool
	listCursor string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your files",
	Long: `List the files owned by the token's subject.
Admin tokens see every owner's files.

Examples:
  filekeep-cli list
  filekeep-cli list --limit 10
  filekeep-cli list --all
  filekeep-cli list --cursor "eyJjcmVhdGVk..."`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 100, "max results per page (max: 1000)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "fetch all pages")
	listCmd.Flags().StringVar(&listCursor, "cursor", "", "pagination cursor")
}

func runList(cmd *cobra.Command, _ []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	result, err := client.List(cmd.Context(), clientcli.ListOptions{
		Limit:  listLimit,
		Cursor: listCursor,
		All:    listAll,
	})
	if err != nil {
		return err
	}

	return getFormatter().FormatList(stdout(cmd), result)
}
