package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/session"
	"github.com/faultline/faultline/internal/timeline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect investigation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's diagnosis and timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output machine-readable JSON")
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output machine-readable JSON")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)
}

// openStores reads session and timeline data straight from disk, so the
// commands work whether or not the daemon is running.
func openStores() (*session.Registry, *timeline.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	reg, err := session.NewRegistry(cfg.Paths.SessionDir)
	if err != nil {
		return nil, nil, err
	}
	tl, err := timeline.NewService(cfg.Paths.TimelineDB)
	if err != nil {
		return nil, nil, err
	}
	return reg, tl, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	reg, tl, err := openStores()
	if err != nil {
		return err
	}
	defer tl.Close()

	sums := reg.List()
	counts := map[string]int{}
	if snaps, err := tl.Sessions(cmd.Context(), 0); err == nil {
		for _, sn := range snaps {
			counts[sn.SessionID] = sn.EventCount
		}
	}

	if sessionsJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(sums)
	}
	if len(sums) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSERVICE\tSEVERITY\tPHASE\tEVENTS\tUPDATED")
	fmt.Fprintln(w, "-------\t-------\t--------\t-----\t------\t-------")
	for _, s := range sums {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Service, s.Severity, s.Phase, counts[s.ID],
			s.UpdatedAt.Local().Format("Jan 02 15:04"))
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	reg, tl, err := openStores()
	if err != nil {
		return err
	}
	defer tl.Close()

	st, err := reg.Get(args[0])
	if err != nil {
		return err
	}
	events, _ := tl.Events(cmd.Context(), timeline.Filter{SessionID: st.ID})

	if sessionsJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
			State  *session.InvestigationState `json:"state"`
			Events []timeline.Event            `json:"events,omitempty"`
		}{st, events})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:    %s\n", color.CyanString(st.ID))
	fmt.Fprintf(out, "Opened:     %s\n", st.CreatedAt.Local().Format("Jan 02 15:04:05"))
	renderDiagnosis(out, st)

	if len(events) > 0 {
		fmt.Fprintf(out, "\n%s\n", color.New(color.Bold).Sprint("Timeline"))
		for _, ev := range events {
			fmt.Fprintf(out, "  %s  %-20s %s\n",
				ev.CreatedAt.Local().Format("15:04:05"), ev.Kind, ev.Detail)
		}
	}
	return nil
}
