package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/faultline/faultline/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _____                _  _    _  _\n" +
		" |  ___|  __ _  _   _ | || |_ | |(_) _ __    ___\n" +
		" | |_    / _` || | | || || __|| || || '_ \\  / _ \\\n" +
		" |  _|  | (_| || |_| || || |_ | || || | | ||  __/\n" +
		" |_|     \\__,_| \\__,_||_| \\__||_||_||_| |_| \\___|\n"
)

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "Faultline - incident diagnosis orchestrator",
	Long:  color.CyanString(logo) + "\nAn investigation daemon that diagnoses production incidents and proposes fixes.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(secretsCmd)
}
