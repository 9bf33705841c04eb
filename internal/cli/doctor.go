package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/gate"
	"github.com/faultline/faultline/internal/ingest"
	"github.com/faultline/faultline/internal/policy"
	"github.com/faultline/faultline/internal/provider"
	"github.com/faultline/faultline/internal/secrets"
	"github.com/spf13/cobra"
)

const (
	doctorPass = "PASS"
	doctorWarn = "WARN"
	doctorFail = "FAIL"
)

type doctorCheck struct {
	Name    string
	Status  string
	Message string
}

var doctorProbe bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config and setup diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Plain Load here: a broken sealed store must surface as a
		// failing check, not abort the diagnosis.
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		checks := runDoctorChecks(cfg)
		if doctorProbe {
			checks = append(checks, probeDatasources(cfg)...)
		}

		failures := 0
		for _, check := range checks {
			if check.Status == doctorFail {
				failures++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", check.Status, check.Name, check.Message)
		}
		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorProbe, "probe", false, "Probe datasource and broker reachability")
}

func runDoctorChecks(cfg *config.Config) []doctorCheck {
	var checks []doctorCheck

	store := secrets.NewStore(cfg.Paths.DataDir)
	if store.Exists() {
		if kv, err := store.Load(); err != nil {
			checks = append(checks, doctorCheck{"secrets", doctorFail, "sealed store unreadable: " + err.Error()})
		} else {
			applySecrets(cfg, kv)
			checks = append(checks, doctorCheck{"secrets", doctorPass, fmt.Sprintf("%d sealed credential(s)", len(kv))})
		}
	}

	if _, err := provider.Resolve(cfg); err != nil {
		checks = append(checks, doctorCheck{"provider", doctorFail, err.Error()})
	} else if providerKeyFor(cfg) == "" {
		checks = append(checks, doctorCheck{"provider", doctorFail, "no API key configured for " + cfg.Model.Name})
	} else {
		checks = append(checks, doctorCheck{"provider", doctorPass, "model " + cfg.Model.Name})
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o700); err != nil {
		checks = append(checks, doctorCheck{"data dir", doctorFail, err.Error()})
	} else if f, err := os.CreateTemp(cfg.Paths.DataDir, ".doctor-*"); err != nil {
		checks = append(checks, doctorCheck{"data dir", doctorFail, "not writable: " + err.Error()})
	} else {
		f.Close()
		os.Remove(f.Name())
		checks = append(checks, doctorCheck{"data dir", doctorPass, cfg.Paths.DataDir})
	}

	if cfg.Policy.RulesPath == "" {
		checks = append(checks, doctorCheck{"policy", doctorPass, "built-in defaults"})
	} else if _, err := policy.LoadRules(cfg.Policy.RulesPath); err != nil {
		checks = append(checks, doctorCheck{"policy", doctorFail, err.Error()})
	} else {
		checks = append(checks, doctorCheck{"policy", doctorPass, cfg.Policy.RulesPath})
	}

	configured := 0
	for _, url := range []string{cfg.Datasources.LokiURL, cfg.Datasources.PrometheusURL, cfg.Datasources.JaegerURL} {
		if url != "" {
			configured++
		}
	}
	if configured == 0 {
		checks = append(checks, doctorCheck{"datasources", doctorWarn, "none configured, diagnosis will rely on kubectl and the repo"})
	} else {
		checks = append(checks, doctorCheck{"datasources", doctorPass, fmt.Sprintf("%d configured", configured)})
	}

	if cfg.Datasources.KubectlPath != "" {
		if _, err := exec.LookPath(cfg.Datasources.KubectlPath); err != nil {
			checks = append(checks, doctorCheck{"kubectl", doctorWarn, err.Error()})
		} else {
			checks = append(checks, doctorCheck{"kubectl", doctorPass, cfg.Datasources.KubectlPath})
		}
	}

	if cfg.Datasources.RepoDir != "" {
		if _, err := os.Stat(cfg.Datasources.RepoDir); err != nil {
			checks = append(checks, doctorCheck{"repo dir", doctorWarn, err.Error()})
		} else {
			checks = append(checks, doctorCheck{"repo dir", doctorPass, cfg.Datasources.RepoDir})
		}
	}

	if cfg.Channels.Slack.Enabled {
		if cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "" {
			checks = append(checks, doctorCheck{"slack", doctorFail, "enabled but botToken or appToken missing"})
		} else if cfg.Channels.Slack.ChannelID == "" {
			checks = append(checks, doctorCheck{"slack", doctorFail, "enabled but channelId missing"})
		} else {
			checks = append(checks, doctorCheck{"slack", doctorPass, "channel " + cfg.Channels.Slack.ChannelID})
		}
	}

	if cfg.Kafka.Enabled && strings.TrimSpace(cfg.Kafka.Brokers) == "" {
		checks = append(checks, doctorCheck{"kafka", doctorFail, "enabled but no brokers configured"})
	}

	if cfg.Fix.Enabled && cfg.Fix.Token == "" {
		checks = append(checks, doctorCheck{"fix", doctorWarn, "no API token, publishing a PR will fail"})
	}

	if cfg.Gates.FixTimeout > gate.MaxFixTimeout {
		checks = append(checks, doctorCheck{"gates", doctorWarn,
			fmt.Sprintf("fixTimeout %s exceeds the %s cap and will be clamped", cfg.Gates.FixTimeout, gate.MaxFixTimeout)})
	}

	return checks
}

// providerKeyFor returns the API key the configured model resolves to.
func providerKeyFor(cfg *config.Config) string {
	id, _ := provider.ParseModelString(cfg.Model.Name)
	switch id {
	case "anthropic", "claude":
		return cfg.Providers.Anthropic.APIKey
	case "openai":
		return cfg.Providers.OpenAI.APIKey
	case "openrouter":
		return cfg.Providers.OpenRouter.APIKey
	default:
		if cfg.Providers.Anthropic.APIKey != "" {
			return cfg.Providers.Anthropic.APIKey
		}
		return cfg.Providers.OpenAI.APIKey
	}
}

func probeDatasources(cfg *config.Config) []doctorCheck {
	var checks []doctorCheck
	client := &http.Client{Timeout: 3 * time.Second}

	probe := func(name, url string) {
		if url == "" {
			return
		}
		resp, err := client.Get(url)
		if err != nil {
			checks = append(checks, doctorCheck{name, doctorWarn, "unreachable: " + err.Error()})
			return
		}
		resp.Body.Close()
		checks = append(checks, doctorCheck{name, doctorPass, fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode)})
	}
	probe("loki", cfg.Datasources.LokiURL)
	probe("prometheus", cfg.Datasources.PrometheusURL)
	probe("jaeger", cfg.Datasources.JaegerURL)

	if cfg.Kafka.Enabled && strings.TrimSpace(cfg.Kafka.Brokers) != "" {
		topics := []string{cfg.Kafka.IncidentTopic, cfg.Kafka.EventTopic}
		for _, pc := range ingest.ProbeBrokers(context.Background(), cfg.Kafka.Brokers, topics, 3*time.Second) {
			status := doctorWarn
			switch pc.Status {
			case ingest.ProbeOK:
				status = doctorPass
			case ingest.ProbeFail:
				status = doctorFail
			}
			checks = append(checks, doctorCheck{"kafka " + pc.Name, status, pc.Target + ": " + pc.Detail})
		}
	}
	return checks
}
