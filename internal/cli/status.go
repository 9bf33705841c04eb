package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/session"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ Faultline Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 Faultline Status")
		fmt.Printf("Version: %s\n", version)

		// Check config
		path, _ := config.ConfigPath()
		if _, err := os.Stat(path); err == nil {
			fmt.Println("Config:  ✓ Found (" + path + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (run 'faultline init' first)")
		}

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("Config:  ? Unable to load: %v\n", err)
			return
		}

		// Check API key presence
		if providerKeySet(cfg) {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found")
		}

		if reg, err := session.NewRegistry(cfg.Paths.SessionDir); err == nil {
			fmt.Printf("Sessions: %d\n", len(reg.List()))
		}

		// Is the daemon up?
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		if st, err := controlClient().Status(ctx); err == nil {
			fmt.Printf("Daemon:  ✓ Up (version %v, %v sessions)\n", st["version"], st["sessions"])
		} else {
			fmt.Println("Daemon:  ✗ Not running (start with 'faultline serve')")
		}
	},
}

func providerKeySet(cfg *config.Config) bool {
	return cfg.Providers.Anthropic.APIKey != "" ||
		cfg.Providers.OpenAI.APIKey != "" ||
		cfg.Providers.OpenRouter.APIKey != ""
}
