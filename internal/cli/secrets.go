package cli

import (
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/secrets"
	"github.com/spf13/cobra"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage sealed credentials",
	Long: "Store API keys and tokens encrypted at rest instead of in the config\n" +
		"file. Sealed values fill any credential the config leaves empty.\n\n" +
		"Names the daemon reads: " + strings.Join(secrets.KnownNames(), ", "),
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Seal a credential into the store",
	Args:  cobra.ExactArgs(2),
	RunE:  runSecretsSet,
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sealed credential names",
	RunE:  runSecretsList,
}

var secretsUnsetCmd = &cobra.Command{
	Use:   "unset <name>",
	Short: "Remove a sealed credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsUnset,
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsListCmd, secretsUnsetCmd)
}

func secretsStore() (*secrets.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return secrets.NewStore(cfg.Paths.DataDir), nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	store, err := secretsStore()
	if err != nil {
		return err
	}
	name := args[0]
	if err := store.Set(name, args[1]); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sealed %s (%s)\n", name, store.Path())
	if !knownSecretName(name) {
		fmt.Fprintf(out, "note: %q is not a name faultline reads; known names: %s\n",
			name, strings.Join(secrets.KnownNames(), ", "))
	}
	return nil
}

func runSecretsList(cmd *cobra.Command, args []string) error {
	store, err := secretsStore()
	if err != nil {
		return err
	}
	names, err := store.Names()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, "No sealed credentials.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runSecretsUnset(cmd *cobra.Command, args []string) error {
	store, err := secretsStore()
	if err != nil {
		return err
	}
	if err := store.Unset(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

func knownSecretName(name string) bool {
	for _, known := range secrets.KnownNames() {
		if name == known {
			return true
		}
	}
	return false
}
