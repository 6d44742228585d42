// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings.
type Config struct {
	HTTPPort        string
	DBDriver        string
	DatabaseURL     string
	DBPath          string
	AMQPURL         string
	PublicBaseURL   string
	TokenSecret     string
	WebhookSecret   string
	OperatorKeyHash string

	VoiceAPIURL        string
	VoiceAPIKey        string
	VoicePhoneNumberID string
	VoiceName          string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	PolicyFile string
	Policy     Policy
}

// Load reads configuration from environment, an optional .env file, and the
// optional escalation policy file.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg := Config{
		HTTPPort:        getenv("PORT", "8080"),
		DBDriver:        getenv("DB_DRIVER", "sqlite"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		DBPath:          getenv("DB_PATH", "./survey.db"),
		AMQPURL:         getenv("AMQP_URL", ""),
		PublicBaseURL:   getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		TokenSecret:     getenv("TOKEN_SECRET", "survey-dev-token-secret"),
		WebhookSecret:   getenv("WEBHOOK_SECRET", ""),
		OperatorKeyHash: getenv("OPERATOR_KEY_HASH", ""),

		VoiceAPIURL:        getenv("VOICE_API_URL", "https://api.vapi.ai"),
		VoiceAPIKey:        getenv("VOICE_API_KEY", ""),
		VoicePhoneNumberID: getenv("VOICE_PHONE_NUMBER_ID", ""),
		VoiceName:          getenv("VOICE_ASSISTANT_VOICE", "jennifer"),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		SMTPUser:     getenv("SMTP_USER", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "surveys@localhost"),

		PolicyFile: getenv("ESCALATION_POLICY_FILE", ""),
	}

	cfg.Policy = Policy{
		TickInterval:           getenvDuration("TICK_INTERVAL", defaultTickInterval),
		DefaultEscalationDelay: getenvDuration("ESCALATION_DELAY", defaultEscalationDelay),
		StaleClaimAfter:        getenvDuration("STALE_CLAIM_AFTER", defaultStaleClaimAfter),
		ProviderTimeout:        getenvDuration("PROVIDER_TIMEOUT", defaultProviderTimeout),
		BatchConcurrency:       getenvInt("BATCH_CONCURRENCY", defaultBatchConcurrency),
		ReminderSendHour:       getenvInt("REMINDER_SEND_HOUR", defaultReminderSendHour),
		TokenTTL:               getenvDuration("TOKEN_TTL", defaultTokenTTL),
	}

	if cfg.PolicyFile != "" {
		p, err := LoadPolicyFile(cfg.PolicyFile, cfg.Policy)
		if err != nil {
			log.Printf("⚠️ policy file %s ignored: %v", cfg.PolicyFile, err)
		} else {
			cfg.Policy = p
		}
	}
	cfg.Policy = cfg.Policy.Normalize()

	if cfg.WebhookSecret == "" {
		log.Println("⚠️ WEBHOOK_SECRET is empty, every webhook will be rejected")
	}

	log.Printf("config: port=%s db=%s tick=%s delay=%s", cfg.HTTPPort, cfg.DBDriver, cfg.Policy.TickInterval, cfg.Policy.DefaultEscalationDelay)
	return cfg
}

// DSN returns the connection string matching DBDriver.
func (c Config) DSN() string {
	switch c.DBDriver {
	case "postgres", "postgresql":
		return c.DatabaseURL
	case "memory":
		return ""
	default:
		return c.DBPath
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
