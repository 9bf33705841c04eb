package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/faultline/faultline/internal/agent"
	"github.com/faultline/faultline/internal/api"
	"github.com/faultline/faultline/internal/archive"
	"github.com/faultline/faultline/internal/bus"
	"github.com/faultline/faultline/internal/channels"
	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/fix"
	"github.com/faultline/faultline/internal/gate"
	"github.com/faultline/faultline/internal/ingest"
	"github.com/faultline/faultline/internal/notify"
	"github.com/faultline/faultline/internal/policy"
	"github.com/faultline/faultline/internal/provider"
	"github.com/faultline/faultline/internal/session"
	"github.com/faultline/faultline/internal/supervisor"
	"github.com/faultline/faultline/internal/tasks"
	"github.com/faultline/faultline/internal/timeline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the investigation daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Control API listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("🛰️ Faultline Daemon")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveListenAddr != "" {
		cfg.API.ListenAddr = serveListenAddr
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

	// Gate prompts and notices go to Slack when it is configured,
	// otherwise to the daemon's own terminal.
	target := "cli"
	var chans []channels.Channel
	if cfg.Channels.Slack.Enabled {
		target = "slack"
		chans = append(chans, channels.NewSlackChannel(cfg.Channels.Slack, msgBus))
	} else {
		chans = append(chans, channels.NewCLIChannel(msgBus))
	}

	parser := &gate.Parser{Provider: prov, Model: cfg.Model.Name}
	bridge := channels.NewGateBridge(msgBus, gates, parser, target)
	gates.Notify = bridge.NotifyFunc()

	sup := supervisor.New(reg, buildSources(cfg, prov), gates)
	sup.Critic = &supervisor.LLMCritic{Provider: prov, Model: cfg.Model.Name}
	sup.Timeline = tl
	sup.Archive = arch
	sup.Notify = notify.NewSink(msgBus, target)
	sup.MaxConcurrent = cfg.Supervisor.MaxConcurrent
	sup.MaxRounds = cfg.Supervisor.MaxRounds
	if cfg.Fix.Enabled {
		sup.AttachFixPipeline(buildFixPipeline(cfg, prov, gates))
	}

	srv := api.NewServer(cfg.API, msgBus, gates, reg, tl, version)
	if cfg.Fix.Enabled {
		srv.StartFix = sup.StartFix
	}

	for _, ch := range chans {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start %s channel: %w", ch.Name(), err)
		}
	}
	defer func() {
		for _, ch := range chans {
			if err := ch.Stop(); err != nil {
				slog.Warn("channel stop failed", "channel", ch.Name(), "error", err)
			}
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return msgBus.DispatchOutbound(ctx) })
	g.Go(func() error {
		bridge.Route(ctx)
		return nil
	})

	if cfg.Kafka.Enabled {
		events := ingest.NewEventWriter(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
		defer events.Close()
		sup.Events = events

		consumer := ingest.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.IncidentTopic)
		router := ingest.NewRouter(consumer, func(ctx context.Context, inc session.Incident) {
			id, err := sup.Open(ctx, inc)
			if err != nil {
				slog.Error("open investigation failed", "service", inc.Service, "error", err)
				return
			}
			if err := sup.Run(ctx, id); err != nil {
				slog.Error("investigation failed", "session_id", id, "error", err)
			}
		})
		g.Go(func() error { return router.Run(ctx) })
	}

	slog.Info("daemon up",
		"listen", cfg.API.ListenAddr,
		"channel", target,
		"kafka", cfg.Kafka.Enabled,
		"fix", cfg.Fix.Enabled)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("daemon stopped")
	return nil
}

func buildSources(cfg *config.Config, prov provider.LLMProvider) tasks.Sources {
	rules, err := policy.LoadRules(cfg.Policy.RulesPath)
	if err != nil {
		slog.Warn("policy rules not loaded, using defaults", "path", cfg.Policy.RulesPath, "error", err)
	}
	// The stricter bound wins between the rules file and the config.
	if cfg.Policy.MaxAutoTier < rules.MaxAutoTier {
		rules.MaxAutoTier = cfg.Policy.MaxAutoTier
	}

	return tasks.Sources{
		Provider:    prov,
		Model:       cfg.Model.Name,
		LokiURL:     cfg.Datasources.LokiURL,
		PromURL:     cfg.Datasources.PrometheusURL,
		JaegerURL:   cfg.Datasources.JaegerURL,
		KubectlPath: cfg.Datasources.KubectlPath,
		RepoDir:     cfg.Datasources.RepoDir,
		Policy:      policy.NewEngineFromRules(rules),
		NewBudget: func() *agent.Budget {
			return agent.NewBudget(cfg.Budgets.MaxLLMCalls, cfg.Budgets.MaxToolCalls, cfg.Budgets.MaxTokens)
		},
	}
}

func buildFixPipeline(cfg *config.Config, prov provider.LLMProvider, gates *gate.Manager) *fix.Pipeline {
	p := fix.NewPipeline(
		&fix.LLMGenerator{Provider: prov, Model: cfg.Model.Name},
		&fix.StaticVerifier{},
		&fix.LLMCrossChecker{Provider: prov, Model: cfg.Model.Name},
		&fix.GitStager{BranchPrefix: cfg.Fix.BranchPrefix},
		&fix.GitPublisher{
			APIBase:    cfg.Fix.APIBase,
			Token:      cfg.Fix.Token,
			BaseBranch: cfg.Fix.BaseBranch,
		},
		gates,
	)
	if cfg.Fix.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Fix.MaxAttempts
	}
	return p
}
