package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/clientcli"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Manage server profiles",
	Long: `Manage server profiles in the configuration file.

A profile records the endpoint of a filekeep server and how to authenticate
to it: either an inline bearer token or a token_file that is read on every
invocation. Select one with --profile or FILEKEEP_PROFILE.

Configuration is stored in ~/.filekeep/config.yaml unless --config or
FILEKEEP_CONFIG points elsewhere.`,
}

var configureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles, marking the default with *",
	Args:  cobra.NoArgs,
	RunE:  runConfigureList,
}

var configureAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or update a profile interactively",
	Long: `Prompt for the endpoint and credentials of a profile and save it.

Leave the token empty to reference a token file instead. The server's
health endpoint is checked before saving.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigureAdd,
}

var configureRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a profile",
	Args:    cobra.ExactArgs(1),
	RunE:    runConfigureRemove,
}

var configureSetDefaultCmd = &cobra.Command{
	Use:   "set-default <name>",
	Short: "Set the default profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigureSetDefault,
}

var configureShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show one profile, the default when no name is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigureShow,
}

var showSecrets bool

func init() {
	configureCmd.AddCommand(configureListCmd, configureAddCmd, configureRemoveCmd,
		configureSetDefaultCmd, configureShowCmd)

	for _, c := range []*cobra.Command{configureListCmd, configureShowCmd} {
		c.Flags().BoolVar(&showSecrets, "show-secrets", false, "print tokens unmasked")
	}
}

// loadProfiles reads the profile file. With allowMissing an absent file
// yields an empty one.
func loadProfiles(allowMissing bool) (*clientcli.ConfigFile, string, error) {
	path := getConfigPath()
	file, err := clientcli.LoadConfigFile(path)
	switch {
	case err == nil:
		return file, path, nil
	case allowMissing && errors.Is(err, os.ErrNotExist):
		return &clientcli.ConfigFile{}, path, nil
	default:
		return nil, path, fmt.Errorf("load config: %w", err)
	}
}

func saveProfiles(file *clientcli.ConfigFile, path string) error {
	if err := file.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func runConfigureList(cmd *cobra.Command, _ []string) error {
	file, _, err := loadProfiles(true)
	if err != nil {
		return err
	}

	def, err := file.GetDefaultProfile()
	if errors.Is(err, clientcli.ErrNoProfiles) {
		_, _ = fmt.Fprintln(stdout(cmd), "No profiles configured. Run 'filekeep-cli configure add <name>' to create one.")
		return nil
	}

	return getFormatter().FormatProfileList(stdout(cmd), file.Profiles, def.Name, showSecrets)
}

func runConfigureAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	out := stdout(cmd)

	file, path, err := loadProfiles(true)
	if err != nil {
		return err
	}

	_, lookupErr := file.GetProfile(name)
	exists := lookupErr == nil
	if exists && !confirm(fmt.Sprintf("Profile %q already exists. Update it", name)) {
		_, _ = fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	p := clientcli.Profile{Name: name}

	if p.Endpoint, err = ask(promptui.Prompt{
		Label:    "Endpoint URL",
		Default:  clientcli.DefaultEndpoint,
		Validate: clientcli.ValidateEndpoint,
	}); err != nil {
		return handlePromptError(out, err)
	}
	p.Endpoint = strings.TrimSuffix(p.Endpoint, "/")

	if p.Token, err = ask(promptui.Prompt{Label: "Bearer token (empty to use a token file)", Mask: '*'}); err != nil {
		return handlePromptError(out, err)
	}
	if p.Token == "" {
		if p.TokenFile, err = ask(promptui.Prompt{
			Label: "Token file",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("a token or a token file is required")
				}
				return nil
			},
		}); err != nil {
			return handlePromptError(out, err)
		}
	}

	p.Default = len(file.Profiles) == 0 || confirm("Set as default profile")

	token, err := p.ResolveToken()
	if err == nil {
		_, _ = fmt.Fprint(out, "Testing connection... ")
		if err = pingServer(p.Endpoint, token); err == nil {
			_, _ = fmt.Fprintln(out, "OK")
		}
	}
	if err != nil {
		_, _ = fmt.Fprintf(out, "Warning: %v\n", err)
		if !confirm("Save profile anyway") {
			_, _ = fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if exists {
		err = file.UpdateProfile(p)
	} else {
		err = file.AddProfile(p)
	}
	if err != nil {
		return err
	}
	if p.Default {
		_ = file.SetDefault(name)
	}
	if err := saveProfiles(file, path); err != nil {
		return err
	}

	verb := "added"
	if exists {
		verb = "updated"
	}
	_, _ = fmt.Fprintf(out, "Profile %q %s.\n", name, verb)
	return nil
}

func runConfigureRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	file, path, err := loadProfiles(false)
	if err != nil {
		return err
	}
	if _, err := file.GetProfile(name); err != nil {
		return err
	}

	if !confirm(fmt.Sprintf("Remove profile %q", name)) {
		_, _ = fmt.Fprintln(stdout(cmd), "Cancelled.")
		return nil
	}

	if err := file.RemoveProfile(name); err != nil {
		return err
	}
	if err := saveProfiles(file, path); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout(cmd), "Profile %q removed.\n", name)
	return nil
}

func runConfigureSetDefault(cmd *cobra.Command, args []string) error {
	file, path, err := loadProfiles(false)
	if err != nil {
		return err
	}
	if err := file.SetDefault(args[0]); err != nil {
		return err
	}
	if err := saveProfiles(file, path); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout(cmd), "Default profile set to %q.\n", args[0])
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	file, _, err := loadProfiles(false)
	if err != nil {
		return err
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	p, err := file.GetProfile(name)
	if err != nil {
		return err
	}

	def, _ := file.GetDefaultProfile()
	return getFormatter().FormatProfileShow(stdout(cmd), *p, def != nil && def.Name == p.Name, showSecrets)
}

func ask(p promptui.Prompt) (string, error) {
	return p.Run()
}

// confirm reports whether the user answered yes. Any prompt error counts as no.
func confirm(label string) bool {
	_, err := (&promptui.Prompt{Label: label, IsConfirm: true}).Run()
	return err == nil
}

func pingServer(endpointURL, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := clientcli.New(&clientcli.Config{Endpoint: endpointURL, Token: token},
		clientcli.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("server check failed: %w", err)
	}
	return nil
}

// handlePromptError turns Ctrl-C and Ctrl-D into a clean cancellation.
func handlePromptError(out io.Writer, err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrEOF) {
		_, _ = fmt.Fprintln(out, "Cancelled.")
		return nil
	}
	return err
}
