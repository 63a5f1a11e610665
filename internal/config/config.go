package config

import (
	"errors"
	"io/fs"
	"math"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI       OpenAIConfig       `yaml:"openai" mapstructure:"openai"`
	Jina         JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Notion       NotionConfig       `yaml:"notion" mapstructure:"notion"`
	Scoring      ScoringConfig      `yaml:"scoring" mapstructure:"scoring"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Quality      QualityConfig      `yaml:"quality" mapstructure:"quality"`
	Workflow     WorkflowConfig     `yaml:"workflow" mapstructure:"workflow"`
	Reliability  ReliabilityConfig  `yaml:"reliability" mapstructure:"reliability"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Email        EmailConfig        `yaml:"email" mapstructure:"email"`
	Payments     PaymentsConfig     `yaml:"payments" mapstructure:"payments"`
	Billing      BillingConfig      `yaml:"billing" mapstructure:"billing"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Auth         AuthConfig         `yaml:"auth" mapstructure:"auth"`
	Schedule     ScheduleConfig     `yaml:"schedule" mapstructure:"schedule"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	DraftModel string `yaml:"draft_model" mapstructure:"draft_model"`
	BiasModel  string `yaml:"bias_model" mapstructure:"bias_model"`
	MaxTokens  int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings for the secondary drafter.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Search settings used for source discovery.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// NotionConfig holds the editorial board integration.
type NotionConfig struct {
	Token   string  `yaml:"token" mapstructure:"token"`
	BoardDB string  `yaml:"board_db" mapstructure:"board_db"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// ScoringConfig holds the newsworthiness weights and approval threshold.
type ScoringConfig struct {
	ImpactWeight        float64 `yaml:"impact_weight" mapstructure:"impact_weight"`
	TimelinessWeight    float64 `yaml:"timeliness_weight" mapstructure:"timeliness_weight"`
	VerifiabilityWeight float64 `yaml:"verifiability_weight" mapstructure:"verifiability_weight"`
	RegionalWeight      float64 `yaml:"regional_weight" mapstructure:"regional_weight"`
	ConflictWeight      float64 `yaml:"conflict_weight" mapstructure:"conflict_weight"`
	NoveltyWeight       float64 `yaml:"novelty_weight" mapstructure:"novelty_weight"`
	Threshold           float64 `yaml:"threshold" mapstructure:"threshold"`
}

// VerificationConfig configures source verification.
type VerificationConfig struct {
	CredibleThreshold  float64 `yaml:"credible_threshold" mapstructure:"credible_threshold"`
	MinCredible        int     `yaml:"min_credible" mapstructure:"min_credible"`
	MinAcademic        int     `yaml:"min_academic" mapstructure:"min_academic"`
	UnknownCredibility float64 `yaml:"unknown_credibility" mapstructure:"unknown_credibility"`
	MaxResults         int     `yaml:"max_results" mapstructure:"max_results"`
	MaxPlanSources     int     `yaml:"max_plan_sources" mapstructure:"max_plan_sources"`
}

// QualityConfig configures the pre-publication checks and regeneration loop.
type QualityConfig struct {
	MinWords         int     `yaml:"min_words" mapstructure:"min_words"`
	MaxWords         int     `yaml:"max_words" mapstructure:"max_words"`
	MaxLedeWords     int     `yaml:"max_lede_words" mapstructure:"max_lede_words"`
	MinReadingLevel  float64 `yaml:"min_reading_level" mapstructure:"min_reading_level"`
	MaxReadingLevel  float64 `yaml:"max_reading_level" mapstructure:"max_reading_level"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	ExhaustionPolicy string  `yaml:"exhaustion_policy" mapstructure:"exhaustion_policy"`
}

// WorkflowConfig configures editorial assignment.
type WorkflowConfig struct {
	Editors             []string `yaml:"editors" mapstructure:"editors"`
	SeniorEditors       []string `yaml:"senior_editors" mapstructure:"senior_editors"`
	ReviewDeadlineHours int      `yaml:"review_deadline_hours" mapstructure:"review_deadline_hours"`
}

// ReliabilityConfig configures the correction feedback loop.
type ReliabilityConfig struct {
	MinorDelta    float64 `yaml:"minor_delta" mapstructure:"minor_delta"`
	ModerateDelta float64 `yaml:"moderate_delta" mapstructure:"moderate_delta"`
	MajorDelta    float64 `yaml:"major_delta" mapstructure:"major_delta"`
	CriticalDelta float64 `yaml:"critical_delta" mapstructure:"critical_delta"`
	MinScore      float64 `yaml:"min_score" mapstructure:"min_score"`
	MaxScore      float64 `yaml:"max_score" mapstructure:"max_score"`
}

// RetryConfig configures retries and circuit breaking for external collaborators.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// EmailConfig configures the notification sender.
type EmailConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	From       string `yaml:"from" mapstructure:"from"`
	DailyQuota int    `yaml:"daily_quota" mapstructure:"daily_quota"`
}

// PaymentsConfig configures payment webhook verification.
type PaymentsConfig struct {
	WebhookSecret   string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	ToleranceSecs   int    `yaml:"tolerance_secs" mapstructure:"tolerance_secs"`
	MaxPayloadBytes int64  `yaml:"max_payload_bytes" mapstructure:"max_payload_bytes"`
}

// BillingConfig points at the subscription tier catalogue.
type BillingConfig struct {
	TiersPath string `yaml:"tiers_path" mapstructure:"tiers_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// AuthConfig configures editor bearer tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
}

// ScheduleConfig configures the in-process daily batch run used by serve.
type ScheduleConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	IntervalHours int  `yaml:"interval_hours" mapstructure:"interval_hours"`
	BatchLimit    int  `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// MonitoringConfig configures alert thresholds and delivery.
type MonitoringConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	ManualBacklogMax  int     `yaml:"manual_backlog_max" mapstructure:"manual_backlog_max"`
	OverdueReviewsMax int     `yaml:"overdue_reviews_max" mapstructure:"overdue_reviews_max"`
	QuotaWarnFraction float64 `yaml:"quota_warn_fraction" mapstructure:"quota_warn_fraction"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NEWSROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "newsroom.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("anthropic.draft_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.bias_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("notion.rps", 3)

	v.SetDefault("scoring.impact_weight", 0.30)
	v.SetDefault("scoring.timeliness_weight", 0.20)
	v.SetDefault("scoring.verifiability_weight", 0.20)
	v.SetDefault("scoring.regional_weight", 0.15)
	v.SetDefault("scoring.conflict_weight", 0.10)
	v.SetDefault("scoring.novelty_weight", 0.05)
	v.SetDefault("scoring.threshold", 65)

	v.SetDefault("verification.credible_threshold", 75)
	v.SetDefault("verification.min_credible", 3)
	v.SetDefault("verification.min_academic", 2)
	v.SetDefault("verification.unknown_credibility", 40)
	v.SetDefault("verification.max_results", 10)
	v.SetDefault("verification.max_plan_sources", 6)

	v.SetDefault("quality.min_words", 400)
	v.SetDefault("quality.max_words", 800)
	v.SetDefault("quality.max_lede_words", 60)
	v.SetDefault("quality.min_reading_level", 7.5)
	v.SetDefault("quality.max_reading_level", 8.5)
	v.SetDefault("quality.max_attempts", 3)
	v.SetDefault("quality.exhaustion_policy", "manual_review")

	v.SetDefault("workflow.review_deadline_hours", 24)

	v.SetDefault("reliability.minor_delta", -0.1)
	v.SetDefault("reliability.moderate_delta", -0.2)
	v.SetDefault("reliability.major_delta", -0.35)
	v.SetDefault("reliability.critical_delta", -0.5)
	v.SetDefault("reliability.min_score", 0)
	v.SetDefault("reliability.max_score", 100)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("retry.failure_threshold", 5)
	v.SetDefault("retry.reset_timeout_secs", 60)

	v.SetDefault("email.base_url", "https://api.sendgrid.com")
	v.SetDefault("email.from", "newsroom@dailyworker.example")
	v.SetDefault("email.daily_quota", 100)

	v.SetDefault("payments.tolerance_secs", 300)
	v.SetDefault("payments.max_payload_bytes", 65536)
	v.SetDefault("billing.tiers_path", "")

	v.SetDefault("auth.issuer", "newsroom")

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval_hours", 24)
	v.SetDefault("schedule.batch_limit", 100)

	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.manual_backlog_max", 10)
	v.SetDefault("monitoring.overdue_reviews_max", 5)
	v.SetDefault("monitoring.quota_warn_fraction", 0.8)
}

// Validate checks the settings required by a particular command mode.
// Modes: "cli" (store only), "verify", "draft", "run" (verify + draft) and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "cli":
	case "verify":
		errs = append(errs, c.verifyErrs()...)
	case "draft":
		errs = append(errs, c.draftErrs()...)
	case "run":
		errs = append(errs, c.verifyErrs()...)
		errs = append(errs, c.draftErrs()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Payments.WebhookSecret == "" {
			errs = append(errs, "payments.webhook_secret is required")
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	w := c.Scoring
	weights := []float64{w.ImpactWeight, w.TimelinessWeight, w.VerifiabilityWeight, w.RegionalWeight, w.ConflictWeight, w.NoveltyWeight}
	var sum float64
	for _, wt := range weights {
		if wt < 0 {
			errs = append(errs, "scoring weights must be >= 0")
			break
		}
		sum += wt
	}
	if math.Abs(sum-1) > 0.001 {
		errs = append(errs, "scoring weights must sum to 1")
	}
	if w.Threshold < 0 || w.Threshold > 100 {
		errs = append(errs, "scoring.threshold must be between 0 and 100")
	}

	q := c.Quality
	switch q.ExhaustionPolicy {
	case "manual_review", "reject":
	default:
		errs = append(errs, "quality.exhaustion_policy must be manual_review or reject")
	}
	if q.MinReadingLevel > q.MaxReadingLevel {
		errs = append(errs, "quality.min_reading_level must be <= max_reading_level")
	}
	if q.MinWords > q.MaxWords {
		errs = append(errs, "quality.min_words must be <= max_words")
	}
	if q.MaxAttempts < 1 {
		errs = append(errs, "quality.max_attempts must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) verifyErrs() []string {
	if c.Jina.Key == "" {
		return []string{"jina.key is required"}
	}
	return nil
}

func (c *Config) draftErrs() []string {
	if c.Anthropic.Key == "" && c.OpenAI.Key == "" {
		return []string{"anthropic.key or openai.key is required"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
