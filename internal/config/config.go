package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config stores runtime configuration loaded from flags, the environment and .env.
type Config struct {
	Port        string
	FrontendURL string

	ConnectTimeout   time.Duration
	ReminderInterval time.Duration
	AuditSchedule    string

	LLMProvider     string
	LLMAPIKey       string
	LLMBaseURL      string
	LLMModel        string
	AnthropicAPIKey string

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string
	ReminderWhatsAppTo   string

	LogLevel  string
	LogFormat string

	// Warnings lists values that were rejected in favour of their defaults.
	Warnings []error
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel = "llama-3.1-8b-instant"
)

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults registers default values on v. Keys use underscores so that
// AutomaticEnv maps PORT -> "port", DATABASE_URL -> "database_url" and so on.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8000")
	v.SetDefault("db_connect_timeout", "10s")
	v.SetDefault("reminder_interval", "60s")
	v.SetDefault("audit_schedule", "@hourly")
	v.SetDefault("llm_provider", ProviderOpenAI)
	v.SetDefault("llm_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.AutomaticEnv()
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()
	return FromViper(viper.GetViper())
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	provider := strings.ToLower(strings.TrimSpace(v.GetString("llm_provider")))
	model := strings.TrimSpace(v.GetString("llm_model"))
	if model == "" {
		model = defaultOpenAIModel
		if provider == ProviderAnthropic {
			model = v.GetString("anthropic_model")
		}
	}

	var warnings []error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := durationValue(v, key, def)
		if err != nil {
			warnings = append(warnings, err)
		}
		return d
	}

	return &Config{
		Port:        v.GetString("port"),
		FrontendURL: strings.TrimSpace(v.GetString("frontend_url")),

		ConnectTimeout:   duration("db_connect_timeout", 10*time.Second),
		ReminderInterval: duration("reminder_interval", time.Minute),
		AuditSchedule:    v.GetString("audit_schedule"),

		LLMProvider:     provider,
		LLMAPIKey:       firstNonEmpty(v.GetString("llm_api_key"), v.GetString("groq_api_key"), v.GetString("openai_api_key")),
		LLMBaseURL:      v.GetString("llm_base_url"),
		LLMModel:        model,
		AnthropicAPIKey: v.GetString("anthropic_api_key"),

		TwilioAccountSID:     v.GetString("twilio_account_sid"),
		TwilioAuthToken:      v.GetString("twilio_auth_token"),
		TwilioWhatsAppNumber: v.GetString("twilio_whatsapp_number"),
		ReminderWhatsAppTo:   v.GetString("reminder_whatsapp_to"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		Warnings: warnings,
	}
}

// ConnectionString returns the database connection string. It is read on
// every call so that each connection attempt sees the current environment.
func ConnectionString() string {
	return ConnectionStringFrom(viper.GetViper())
}

// ConnectionStringFrom is ConnectionString for an explicit viper instance.
func ConnectionStringFrom(v *viper.Viper) string {
	return strings.TrimSpace(firstNonEmpty(v.GetString("database_url"), v.GetString("db_url")))
}

// TwilioEnabled reports whether reminders should also be sent over WhatsApp.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" &&
		c.TwilioWhatsAppNumber != "" && c.ReminderWhatsAppTo != ""
}

// durationValue returns def alongside an error when key holds something
// other than a positive duration.
func durationValue(v *viper.Viper, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s=%q: %w, using %s", key, raw, err, def)
	}
	if parsed <= 0 {
		return def, fmt.Errorf("%s=%q: must be positive, using %s", key, raw, def)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
