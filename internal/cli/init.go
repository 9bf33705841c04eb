package cli

import (
	"fmt"
	"os"

	"github.com/faultline/faultline/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	printHeader("📝 Faultline Init")

	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n\n", path)
	fmt.Println("Next steps:")
	fmt.Println("  1. Set an API key: faultline secrets set anthropic_api_key sk-...")
	fmt.Println("     (or export FAULTLINE_ANTHROPIC_API_KEY)")
	fmt.Println("  2. Point datasources at your stack (loki, prometheus, jaeger)")
	fmt.Println("  3. Run 'faultline doctor' to verify the setup")
	return nil
}
