// Package config provides configuration types and loading for faultline.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Providers, Datasources, Budgets, Gates,
// Fix, Kafka, Channels, API, Policy, Supervisor.
type Config struct {
	Paths       PathsConfig       `json:"paths"`
	Model       ModelConfig       `json:"model"`
	Providers   ProvidersConfig   `json:"providers"`
	Datasources DatasourcesConfig `json:"datasources"`
	Budgets     BudgetsConfig     `json:"budgets"`
	Gates       GatesConfig       `json:"gates"`
	Fix         FixConfig         `json:"fix"`
	Kafka       KafkaConfig       `json:"kafka"`
	Channels    ChannelsConfig    `json:"channels"`
	API         APIConfig         `json:"api"`
	Policy      PolicyConfig      `json:"policy"`
	Supervisor  SupervisorConfig  `json:"supervisor"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir    string `json:"dataDir" envconfig:"DATA_DIR"`
	SessionDir string `json:"sessionDir" envconfig:"SESSION_DIR"`
	TimelineDB string `json:"timelineDb" envconfig:"TIMELINE_DB"`
	ArchiveDB  string `json:"archiveDb" envconfig:"ARCHIVE_DB"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name              string  `json:"name" envconfig:"MODEL"`
	MaxTokens         int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature       float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations int     `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Datasources – observability backends the diagnostic tasks query
// ---------------------------------------------------------------------------

// DatasourcesConfig points the diagnostic tasks at their backends. An
// empty URL disables the corresponding task (it completes as skipped).
type DatasourcesConfig struct {
	LokiURL       string `json:"lokiUrl" envconfig:"LOKI_URL"`
	PrometheusURL string `json:"prometheusUrl" envconfig:"PROMETHEUS_URL"`
	JaegerURL     string `json:"jaegerUrl" envconfig:"JAEGER_URL"`
	KubectlPath   string `json:"kubectlPath" envconfig:"KUBECTL_PATH"`
	Namespace     string `json:"namespace" envconfig:"NAMESPACE"`
	RepoDir       string `json:"repoDir" envconfig:"REPO_DIR"`
}

// ---------------------------------------------------------------------------
// Budgets – per-task resource ceilings
// ---------------------------------------------------------------------------

// BudgetsConfig caps what a single diagnostic task may consume.
type BudgetsConfig struct {
	MaxLLMCalls  int `json:"maxLlmCalls" envconfig:"MAX_LLM_CALLS"`
	MaxToolCalls int `json:"maxToolCalls" envconfig:"MAX_TOOL_CALLS"`
	MaxTokens    int `json:"maxTokens" envconfig:"MAX_TOKENS"`
}

// ---------------------------------------------------------------------------
// Gates – human-in-the-loop timeouts
// ---------------------------------------------------------------------------

// GatesConfig holds gate suspension timeouts.
type GatesConfig struct {
	QuickTimeout time.Duration `json:"quickTimeout" envconfig:"QUICK_TIMEOUT"`
	FixTimeout   time.Duration `json:"fixTimeout" envconfig:"FIX_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Fix – remediation pipeline
// ---------------------------------------------------------------------------

// FixConfig configures fix generation and publication.
type FixConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"ENABLED"`
	APIBase      string `json:"apiBase" envconfig:"API_BASE"`
	Token        string `json:"token" envconfig:"TOKEN"`
	BaseBranch   string `json:"baseBranch" envconfig:"BASE_BRANCH"`
	BranchPrefix string `json:"branchPrefix" envconfig:"BRANCH_PREFIX"`
	MaxAttempts  int    `json:"maxAttempts" envconfig:"MAX_ATTEMPTS"`
}

// ---------------------------------------------------------------------------
// Kafka – incident intake and lifecycle events
// ---------------------------------------------------------------------------

// KafkaConfig configures the alert consumer and the event writer.
type KafkaConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers       string `json:"brokers" envconfig:"BROKERS"`
	ConsumerGroup string `json:"consumerGroup" envconfig:"CONSUMER_GROUP"`
	IncidentTopic string `json:"incidentTopic" envconfig:"INCIDENT_TOPIC"`
	EventTopic    string `json:"eventTopic" envconfig:"EVENT_TOPIC"`
}

// ---------------------------------------------------------------------------
// Channels – where gate prompts and notices go
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Slack SlackConfig `json:"slack"`
}

// SlackConfig configures the Slack channel (socket-mode bridge).
type SlackConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"SLACK_ENABLED"`
	BotToken  string   `json:"botToken" envconfig:"SLACK_BOT_TOKEN"`
	AppToken  string   `json:"appToken" envconfig:"SLACK_APP_TOKEN"`
	ChannelID string   `json:"channelId" envconfig:"SLACK_CHANNEL_ID"`
	AllowFrom []string `json:"allowFrom"`
}

// ---------------------------------------------------------------------------
// API – local control endpoint of the daemon
// ---------------------------------------------------------------------------

// APIConfig configures the daemon's HTTP control API. The reply and
// sessions commands talk to it.
type APIConfig struct {
	ListenAddr string `json:"listenAddr" envconfig:"API_LISTEN_ADDR"`
	Token      string `json:"token" envconfig:"API_TOKEN"`
}

// ---------------------------------------------------------------------------
// Policy – tool authorization
// ---------------------------------------------------------------------------

// PolicyConfig points at the tool authorization rules.
type PolicyConfig struct {
	RulesPath   string `json:"rulesPath" envconfig:"RULES_PATH"`
	MaxAutoTier int    `json:"maxAutoTier" envconfig:"MAX_AUTO_TIER"`
}

// ---------------------------------------------------------------------------
// Supervisor – dispatch behaviour
// ---------------------------------------------------------------------------

// SupervisorConfig bounds the investigation round loop.
type SupervisorConfig struct {
	MaxConcurrent int `json:"maxConcurrent" envconfig:"MAX_CONCURRENT"`
	MaxRounds     int `json:"maxRounds" envconfig:"MAX_ROUNDS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.faultline",
		},
		Model: ModelConfig{
			Name:              "anthropic/claude-sonnet-4-5",
			MaxTokens:         4096,
			Temperature:       0,
			MaxToolIterations: 10,
		},
		Datasources: DatasourcesConfig{
			Namespace: "default",
		},
		Budgets: BudgetsConfig{
			MaxLLMCalls:  10,
			MaxToolCalls: 20,
			MaxTokens:    60000,
		},
		Gates: GatesConfig{
			QuickTimeout: 180 * time.Second,
			FixTimeout:   300 * time.Second,
		},
		Fix: FixConfig{
			Enabled:      false,
			BaseBranch:   "main",
			BranchPrefix: "faultline/fix",
			MaxAttempts:  3,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       "localhost:9092",
			ConsumerGroup: "faultline",
			IncidentTopic: "incidents",
			EventTopic:    "faultline.events",
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8790",
		},
		Policy: PolicyConfig{
			MaxAutoTier: 1,
		},
		Supervisor: SupervisorConfig{
			MaxConcurrent: 3,
			MaxRounds:     8,
		},
	}
}
