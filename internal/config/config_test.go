package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml or .env is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.30, cfg.Scoring.ImpactWeight, 0.001)
	assert.InDelta(t, 0.20, cfg.Scoring.TimelinessWeight, 0.001)
	assert.InDelta(t, 0.20, cfg.Scoring.VerifiabilityWeight, 0.001)
	assert.InDelta(t, 0.15, cfg.Scoring.RegionalWeight, 0.001)
	assert.InDelta(t, 0.10, cfg.Scoring.ConflictWeight, 0.001)
	assert.InDelta(t, 0.05, cfg.Scoring.NoveltyWeight, 0.001)
	assert.InDelta(t, 65.0, cfg.Scoring.Threshold, 0.001)
	assert.InDelta(t, 75.0, cfg.Verification.CredibleThreshold, 0.001)
	assert.Equal(t, 3, cfg.Verification.MinCredible)
	assert.Equal(t, 2, cfg.Verification.MinAcademic)
	assert.Equal(t, 400, cfg.Quality.MinWords)
	assert.Equal(t, 800, cfg.Quality.MaxWords)
	assert.InDelta(t, 7.5, cfg.Quality.MinReadingLevel, 0.001)
	assert.InDelta(t, 8.5, cfg.Quality.MaxReadingLevel, 0.001)
	assert.Equal(t, 3, cfg.Quality.MaxAttempts)
	assert.Equal(t, "manual_review", cfg.Quality.ExhaustionPolicy)
	assert.InDelta(t, -0.5, cfg.Reliability.CriticalDelta, 0.001)
	assert.Equal(t, 100, cfg.Email.DailyQuota)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.BiasModel)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/newsroom
log:
  level: debug
  format: console
workflow:
  editors: [ana, ben]
  senior_editors: [chief]
quality:
  max_attempts: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []string{"ana", "ben"}, cfg.Workflow.Editors)
	assert.Equal(t, []string{"chief"}, cfg.Workflow.SeniorEditors)
	assert.Equal(t, 5, cfg.Quality.MaxAttempts)
	// Defaults still apply for unset values
	assert.Equal(t, 800, cfg.Quality.MaxWords)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("NEWSROOM_STORE_DRIVER", "postgres")
	t.Setenv("NEWSROOM_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NEWSROOM_SERVER_PORT=3000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("NEWSROOM_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults validation depends on.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "newsroom.db"
	cfg.Server.Port = 8080
	cfg.Scoring = ScoringConfig{
		ImpactWeight: 0.30, TimelinessWeight: 0.20, VerifiabilityWeight: 0.20,
		RegionalWeight: 0.15, ConflictWeight: 0.10, NoveltyWeight: 0.05, Threshold: 65,
	}
	cfg.Quality = QualityConfig{
		MinWords: 400, MaxWords: 800, MinReadingLevel: 7.5, MaxReadingLevel: 8.5,
		MaxAttempts: 3, ExhaustionPolicy: "manual_review",
	}
	return cfg
}

func TestValidateCLI(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("cli"))
}

func TestValidateRun_MissingKeys(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jina.key is required")
	assert.Contains(t, err.Error(), "anthropic.key or openai.key is required")

	cfg.Jina.Key = "jina"
	cfg.OpenAI.Key = "sk-openai"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "payments.webhook_secret is required")
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")

	cfg.Server.Port = 9090
	cfg.Payments.WebhookSecret = "whsec"
	cfg.Auth.JWTSecret = "jwt"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateScoringWeights(t *testing.T) {
	cfg := validDefaults()

	cfg.Scoring.NoveltyWeight = 0.5
	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring weights must sum to 1")

	cfg.Scoring.NoveltyWeight = -0.05
	cfg.Scoring.ImpactWeight = 0.40
	err = cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring weights must be >= 0")
}

func TestValidateQuality(t *testing.T) {
	cfg := validDefaults()

	cfg.Quality.ExhaustionPolicy = "discard"
	cfg.Quality.MinReadingLevel = 9
	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhaustion_policy")
	assert.Contains(t, err.Error(), "min_reading_level")

	cfg.Quality.ExhaustionPolicy = "reject"
	cfg.Quality.MinReadingLevel = 7.5
	cfg.Quality.MaxAttempts = 0
	err = cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}
