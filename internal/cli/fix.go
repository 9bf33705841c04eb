package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var fixCmd = &cobra.Command{
	Use:   "fix <session-id>",
	Short: "Generate and publish a fix for a diagnosed session",
	Long: "Starts the remediation pipeline on the running daemon and waits for it\n" +
		"to finish. The proposal goes to the configured channel for review;\n" +
		"approve or reject it there (or with 'faultline reply').",
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().StringVar(&ctlAddr, "addr", "", "Daemon control API address")
	fixCmd.Flags().StringVar(&ctlToken, "token", "", "Control API token")
}

func runFix(cmd *cobra.Command, args []string) error {
	printHeader("🔧 Faultline Fix")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := controlClient()
	// Review keeps the request open for minutes; no client timeout.
	client.HTTPClient = &http.Client{}

	fmt.Printf("Session %s: generating, waiting for review...\n\n", color.CyanString(args[0]))
	st, err := client.Fix(ctx, args[0])
	if err != nil {
		return err
	}
	renderFix(cmd.OutOrStdout(), st)
	return nil
}
