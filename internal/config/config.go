// Package config loads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Extraction providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds every setting the binaries read.
type Config struct {
	Port        string `validate:"required,numeric"`
	DatabaseURL string `validate:"required"`

	JWTSecret    string        `validate:"required,min=16"`
	JWTExpiresIn time.Duration `validate:"gt=0"`

	GoogleClientID       string
	GoogleClientSecret   string
	GmailAuthRedirectURI string `validate:"omitempty,url"`
	GmailPubSubTopic     string
	FrontendURL          string `validate:"omitempty,url"`
	MobileRedirectURL    string
	CronSecret           string

	BancoChileUserEmail string `validate:"omitempty,email"`

	ExtractionProvider string `validate:"oneof=gemini openai"`
	GeminiModel        string
	OpenAIAPIKey       string `validate:"required_if=ExtractionProvider openai"`
	OpenAIModel        string

	ArchiveBucket  string
	AllowedOrigins []string

	LogLevel    string `validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	LogFormat   string `validate:"omitempty,oneof=json console"`
	QueueBuffer int    `validate:"gt=0"`
}

// GmailEnabled reports whether the OAuth and push ingestion path is configured.
func (c *Config) GmailEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GmailAuthRedirectURI != ""
}

// Load reads .env when present, then the environment, and validates the result.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the signature of os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}

	cfg := &Config{
		Port:        e.str("PORT", "8080"),
		DatabaseURL: e.str("DATABASE_URL", ""),

		JWTSecret:    e.str("JWT_SECRET", ""),
		JWTExpiresIn: e.duration("JWT_EXPIRES_IN", 7*24*time.Hour),

		GoogleClientID:       e.str("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   e.str("GOOGLE_CLIENT_SECRET", ""),
		GmailAuthRedirectURI: e.str("GMAIL_AUTH_REDIRECT_URI", ""),
		GmailPubSubTopic:     e.str("GMAIL_PUBSUB_TOPIC", ""),
		FrontendURL:          e.str("FRONTEND_URL", ""),
		MobileRedirectURL:    e.str("MOBILE_REDIRECT_URL", ""),
		CronSecret:           e.str("CRON_SECRET", ""),

		BancoChileUserEmail: e.str("BANCOCHILE_USER_EMAIL", ""),

		ExtractionProvider: strings.ToLower(e.str("EXTRACTION_PROVIDER", ProviderGemini)),
		GeminiModel:        e.str("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:       e.str("OPENAI_API_KEY", ""),
		OpenAIModel:        e.str("OPENAI_MODEL", "gpt-4o-mini"),

		ArchiveBucket:  e.str("ARCHIVE_BUCKET", ""),
		AllowedOrigins: e.list("ALLOWED_ORIGINS"),

		LogLevel:    strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(e.str("LOG_FORMAT", "console")),
		QueueBuffer: e.integer("QUEUE_BUFFER", 100),
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

// duration accepts Go durations ("12h") and day counts ("7d").
func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return time.Duration(n) * 24 * time.Hour
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
