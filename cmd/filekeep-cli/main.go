package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/clientcli"
)

var (
	version = "dev"

	cfgFile     string
	profileName string
	endpoint    string
	bearer      string
	jsonOutput  bool
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:           "filekeep-cli",
	Version:       version,
	Short:         "Client for the filekeep file service",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `filekeep-cli talks to a filekeep server over HTTP.

Uploads print the id the server assigned; every other command takes ids.
Connection settings come from, in increasing precedence:
  1. the selected profile in ~/.filekeep/config.yaml
  2. FILEKEEP_ENDPOINT and FILEKEEP_TOKEN
  3. --endpoint and --token`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.filekeep/config.yaml, env: FILEKEEP_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile name (env: FILEKEEP_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "server URL (default: http://localhost:5708, env: FILEKEEP_ENDPOINT)")
	rootCmd.PersistentFlags().StringVarP(&bearer, "token", "t", "", "bearer token (env: FILEKEEP_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if !errors.As(err, &exit) {
			_ = getFormatter().FormatError(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// exitError signals a non-zero exit whose details were already printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := clientcli.ConfigPathFromEnv(); p != "" {
		return p
	}
	return clientcli.DefaultConfigPath()
}

// buildConfig merges the selected profile, env vars and flags (flags take precedence).
func buildConfig() (*clientcli.Config, error) {
	var configs []*clientcli.Config

	name := profileName
	if name == "" {
		name = clientcli.ProfileFromEnv()
	}

	file, err := clientcli.LoadConfigFile(getConfigPath())
	switch {
	case err == nil:
		p, profileErr := file.GetProfile(name)
		if profileErr != nil && (name != "" || !errors.Is(profileErr, clientcli.ErrNoProfiles)) {
			return nil, profileErr
		}
		fromProfile, resolveErr := clientcli.ConfigFromProfile(p)
		if resolveErr != nil {
			return nil, resolveErr
		}
		configs = append(configs, fromProfile)
	case name != "" || cfgFile != "":
		// An explicitly requested profile or file must exist.
		return nil, err
	}

	configs = append(configs,
		clientcli.ConfigFromEnv(),
		&clientcli.Config{Endpoint: endpoint, Token: bearer},
	)

	return clientcli.MergeConfig(configs...), nil
}

func getFormatter() clientcli.Formatter {
	return clientcli.NewFormatter(jsonOutput, quiet)
}

func getClient() (*clientcli.Client, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWithAuth(); err != nil {
		if errors.Is(err, clientcli.ErrTokenRequired) {
			return nil, fmt.Errorf("%w: set a profile, FILEKEEP_TOKEN or --token", err)
		}
		return nil, err
	}
	return clientcli.New(cfg)
}

func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
