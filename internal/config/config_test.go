package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, env map[string]string) *viper.Viper {
	t.Helper()
	for k, val := range env {
		t.Setenv(k, val)
	}
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg := FromViper(newViper(t, nil))

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.ReminderInterval)
	assert.Equal(t, "@hourly", cfg.AuditSchedule)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLMModel)
	assert.False(t, cfg.TwilioEnabled())
}

func TestFromViperReadsEnvironment(t *testing.T) {
	cfg := FromViper(newViper(t, map[string]string{
		"PORT":              "9090",
		"REMINDER_INTERVAL": "30s",
		"GROQ_API_KEY":      "gsk-test",
		"FRONTEND_URL":      " https://ashx.example ",
	}))

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReminderInterval)
	assert.Equal(t, "gsk-test", cfg.LLMAPIKey)
	assert.Equal(t, "https://ashx.example", cfg.FrontendURL)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	cfg := FromViper(newViper(t, map[string]string{
		"DB_CONNECT_TIMEOUT": "soon",
		"REMINDER_INTERVAL":  "-5s",
	}))

	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.ReminderInterval)
	require.Len(t, cfg.Warnings, 2)
	assert.ErrorContains(t, cfg.Warnings[0], `db_connect_timeout="soon"`)
	assert.ErrorContains(t, cfg.Warnings[1], `reminder_interval="-5s": must be positive`)
}

func TestValidDurationsHaveNoWarnings(t *testing.T) {
	cfg := FromViper(newViper(t, map[string]string{"REMINDER_INTERVAL": "15s"}))

	assert.Equal(t, 15*time.Second, cfg.ReminderInterval)
	assert.Empty(t, cfg.Warnings)
}

func TestAnthropicProviderUsesAnthropicModel(t *testing.T) {
	cfg := FromViper(newViper(t, map[string]string{"LLM_PROVIDER": "Anthropic"}))

	assert.Equal(t, ProviderAnthropic, cfg.LLMProvider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.LLMModel)
}

func TestConnectionStringFallsBackToDBURL(t *testing.T) {
	v := newViper(t, map[string]string{"DB_URL": "postgres://db.internal/app"})
	assert.Equal(t, "postgres://db.internal/app", ConnectionStringFrom(v))

	t.Setenv("DATABASE_URL", "postgres://primary/app")
	assert.Equal(t, "postgres://primary/app", ConnectionStringFrom(v))
}

func TestTwilioEnabledNeedsEveryField(t *testing.T) {
	cfg := &Config{
		TwilioAccountSID:     "AC123",
		TwilioAuthToken:      "token",
		TwilioWhatsAppNumber: "+15550001111",
	}
	assert.False(t, cfg.TwilioEnabled())

	cfg.ReminderWhatsAppTo = "+15552223333"
	assert.True(t, cfg.TwilioEnabled())
}

func TestExplicitModelWinsForEveryProvider(t *testing.T) {
	cfg := FromViper(newViper(t, map[string]string{
		"LLM_PROVIDER": "anthropic",
		"LLM_MODEL":    "claude-sonnet-4-5",
	}))

	assert.Equal(t, "claude-sonnet-4-5", cfg.LLMModel)
}
