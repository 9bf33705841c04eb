package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/faultline/faultline/internal/archive"
	"github.com/faultline/faultline/internal/bus"
	"github.com/faultline/faultline/internal/channels"
	"github.com/faultline/faultline/internal/gate"
	"github.com/faultline/faultline/internal/notify"
	"github.com/faultline/faultline/internal/provider"
	"github.com/faultline/faultline/internal/session"
	"github.com/faultline/faultline/internal/supervisor"
	"github.com/faultline/faultline/internal/timeline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	investigateService     string
	investigateDescription string
	investigateSeverity    string
	investigateNamespace   string
	investigateTraceID     string
	investigateRepo        string
	investigateFix         bool
)

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Investigate an incident from the terminal",
	Long: "Opens a session for the given incident, runs the diagnostic tasks and\n" +
		"prints the diagnosis. Gate prompts appear inline; answer them on stdin.",
	RunE: runInvestigate,
}

func init() {
	investigateCmd.Flags().StringVarP(&investigateService, "service", "s", "", "Affected service (required)")
	investigateCmd.Flags().StringVarP(&investigateDescription, "description", "d", "", "What is happening (required)")
	investigateCmd.Flags().StringVar(&investigateSeverity, "severity", "warning", "Severity label")
	investigateCmd.Flags().StringVar(&investigateNamespace, "namespace", "", "Kubernetes namespace")
	investigateCmd.Flags().StringVar(&investigateTraceID, "trace-id", "", "Trace to follow")
	investigateCmd.Flags().StringVar(&investigateRepo, "repo", "", "Repository URL for code analysis")
	investigateCmd.Flags().BoolVar(&investigateFix, "fix", false, "Offer a fix once the diagnosis completes")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	if investigateService == "" || investigateDescription == "" {
		return fmt.Errorf("--service and --description are required")
	}

	printHeader("🔍 Faultline Investigate")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := session.NewRegistry(cfg.Paths.SessionDir)
	if err != nil {
		return fmt.Errorf("open session registry: %w", err)
	}
	tl, err := timeline.NewService(cfg.Paths.TimelineDB)
	if err != nil {
		return fmt.Errorf("open timeline: %w", err)
	}
	defer tl.Close()
	arch, err := archive.NewStore(cfg.Paths.ArchiveDB)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arch.Close()

	prov, err := provider.Resolve(cfg)
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}

	msgBus := bus.NewMessageBus()
	gates := gate.NewManager()
	gates.QuickTimeout = cfg.Gates.QuickTimeout
	gates.FixTimeout = cfg.Gates.FixTimeout

	cliChan := channels.NewCLIChannel(msgBus)
	bridge := channels.NewGateBridge(msgBus, gates, &gate.Parser{Provider: prov, Model: cfg.Model.Name}, "cli")
	gates.Notify = bridge.NotifyFunc()

	src := buildSources(cfg, prov)
	src.Progress = func(stage, detail string) {
		fmt.Printf("  %s %s\n", color.HiBlackString("·"), color.HiBlackString(stage+" "+detail))
	}

	sup := supervisor.New(reg, src, gates)
	sup.Critic = &supervisor.LLMCritic{Provider: prov, Model: cfg.Model.Name}
	sup.Timeline = tl
	sup.Archive = arch
	sup.Notify = notify.NewSink(msgBus, "cli")
	sup.MaxConcurrent = cfg.Supervisor.MaxConcurrent
	sup.MaxRounds = cfg.Supervisor.MaxRounds
	if cfg.Fix.Enabled || investigateFix {
		sup.AttachFixPipeline(buildFixPipeline(cfg, prov, gates))
	}

	if err := cliChan.Start(ctx); err != nil {
		return err
	}
	defer cliChan.Stop()
	go func() { _ = msgBus.DispatchOutbound(ctx) }()
	go bridge.Route(ctx)

	inc := session.Incident{
		Service:     investigateService,
		Severity:    investigateSeverity,
		Description: investigateDescription,
		Source:      "cli",
		TraceID:     investigateTraceID,
		RepoURL:     investigateRepo,
		Namespace:   investigateNamespace,
	}
	id, err := sup.Open(ctx, inc)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s\n\n", color.CyanString(id))

	if err := sup.Run(ctx, id); err != nil {
		return err
	}

	st, err := reg.Get(id)
	if err != nil {
		return err
	}
	fmt.Println()
	renderDiagnosis(cmd.OutOrStdout(), st)

	if investigateFix && st.Phase == session.PhaseDiagnosisComplete {
		fmt.Println()
		fs, err := sup.StartFix(ctx, id)
		if fs != nil {
			renderFix(cmd.OutOrStdout(), fs)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
