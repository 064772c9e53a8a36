package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/clientcli"
)

var (
	uploadName        string
	uploadContentType string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-path> [local-path...]",
	Short: "Upload files to the server",
	Long: `Upload one or more files. Each file is stored under its base name
unless --name is given, and the server assigns it a new id.

Examples:
  filekeep-cli upload ./report.pdf
  filekeep-cli upload --name q3.pdf ./report.pdf
  filekeep-cli upload -q ./a.txt ./b.txt | xargs filekeep-cli status`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "stored name (single file only)")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "override content-type")
}

func runUpload(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	results, err := client.Upload(cmd.Context(), clientcli.UploadOptions{
		Paths:       args,
		Name:        uploadName,
		ContentType: uploadContentType,
	})
	if err != nil {
		return err
	}

	if err := getFormatter().FormatUpload(stdout(cmd), results); err != nil {
		return err
	}

	for i := range results {
		if results[i].Err != nil {
			return &exitError{code: 1}
		}
	}
	return nil
}
