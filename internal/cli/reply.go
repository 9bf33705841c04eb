package cli

import (
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/api"
	"github.com/spf13/cobra"
)

var (
	ctlAddr   string
	ctlToken  string
	replyKind string
)

var replyCmd = &cobra.Command{
	Use:   "reply <session-id> <text>...",
	Short: "Answer a pending gate on the running daemon",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runReply,
}

func init() {
	replyCmd.Flags().StringVar(&ctlAddr, "addr", "", "Daemon control API address")
	replyCmd.Flags().StringVar(&ctlToken, "token", "", "Control API token")
	replyCmd.Flags().StringVar(&replyKind, "kind", "", "Gate kind, when several are pending")
}

// controlClient builds a client for the daemon control API. Flags win over
// the configured listen address.
func controlClient() *api.Client {
	addr, token := ctlAddr, ctlToken
	if addr == "" || token == "" {
		if cfg, err := loadConfig(); err == nil {
			if addr == "" {
				addr = cfg.API.ListenAddr
			}
			if token == "" {
				token = cfg.API.Token
			}
		}
	}
	if addr == "" {
		addr = "127.0.0.1:8790"
	}
	return api.NewClient(addr, token)
}

func runReply(cmd *cobra.Command, args []string) error {
	client := controlClient()
	if err := client.Reply(cmd.Context(), args[0], replyKind, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Println("Reply delivered.")
	return nil
}
