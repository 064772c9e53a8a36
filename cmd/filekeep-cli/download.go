package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/clientcli"
)

var (
	downloadOutput string
	downloadStdout bool
	downloadRange  string
	downloadURL    bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <id> [local-path]",
	Short: "Download a file from the server",
	Long: `Download a finalized file. Without a local path the file is written
under the name stored on the server.

Examples:
  filekeep-cli download 0b8e...
  filekeep-cli download 0b8e... ./copy.pdf
  filekeep-cli download --stdout 0b8e... | jq .
  filekeep-cli download --range bytes=0-1023 --stdout 0b8e...
  filekeep-cli download --url 0b8e...`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file path")
	downloadCmd.Flags().BoolVar(&downloadStdout, "stdout", false, "write to stdout")
	downloadCmd.Flags().StringVar(&downloadRange, "range", "", `byte range, e.g. "bytes=0-99"`)
	downloadCmd.Flags().BoolVar(&downloadURL, "url", false, "print a presigned URL instead of downloading")
}

func runDownload(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid file id %q: %w", args[0], err)
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	if downloadURL {
		u, presignErr := client.PresignURL(cmd.Context(), id)
		if presignErr != nil {
			return presignErr
		}
		_, _ = fmt.Fprintln(stdout(cmd), u)
		return nil
	}

	localPath := ""
	if len(args) > 1 {
		localPath = args[1]
	}
	if downloadOutput != "" {
		localPath = downloadOutput
	}
	if downloadStdout {
		localPath = "-"
	}

	result, reader, err := client.Download(cmd.Context(), clientcli.DownloadOptions{
		ID:        id,
		LocalPath: localPath,
		Range:     downloadRange,
	})
	if err != nil {
		return err
	}

	if reader != nil {
		defer func() { _ = reader.Close() }()
		if _, err := io.Copy(stdout(cmd), reader); err != nil {
			return err
		}
		// Metadata goes to stderr so stdout stays the file content.
		if jsonOutput {
			return getFormatter().FormatDownload(os.Stderr, result)
		}
		return nil
	}

	return getFormatter().FormatDownload(stdout(cmd), result)
}
