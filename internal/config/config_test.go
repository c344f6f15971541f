package config

import (
	"strings"
	"testing"
	"time"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost/finko",
		"JWT_SECRET":   "0123456789abcdef0123",
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(baseEnv()))
	if err != nil {
		t.Fatalf("FromEnv() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.JWTExpiresIn != 7*24*time.Hour {
		t.Errorf("JWTExpiresIn = %v, want 168h", cfg.JWTExpiresIn)
	}
	if cfg.ExtractionProvider != ProviderGemini {
		t.Errorf("ExtractionProvider = %q, want gemini", cfg.ExtractionProvider)
	}
	if cfg.QueueBuffer != 100 {
		t.Errorf("QueueBuffer = %d, want 100", cfg.QueueBuffer)
	}
	if cfg.GmailEnabled() {
		t.Error("Gmail should be disabled without OAuth settings")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "3000"
	env["JWT_EXPIRES_IN"] = "2d"
	env["EXTRACTION_PROVIDER"] = "OpenAI"
	env["OPENAI_API_KEY"] = "sk-test"
	env["ALLOWED_ORIGINS"] = "https://a.example, ,https://b.example"
	env["GOOGLE_CLIENT_ID"] = "id"
	env["GOOGLE_CLIENT_SECRET"] = "secret"
	env["GMAIL_AUTH_REDIRECT_URI"] = "https://api.example/auth/gmail/callback"
	env["LOG_FORMAT"] = "JSON"

	cfg, err := FromEnv(lookupFrom(env))
	if err != nil {
		t.Fatalf("FromEnv() error: %v", err)
	}
	if cfg.Port != "3000" || cfg.JWTExpiresIn != 48*time.Hour {
		t.Errorf("unexpected port or expiry: %q %v", cfg.Port, cfg.JWTExpiresIn)
	}
	if cfg.ExtractionProvider != ProviderOpenAI || cfg.LogFormat != "json" {
		t.Errorf("values should be lower-cased: %q %q", cfg.ExtractionProvider, cfg.LogFormat)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if !cfg.GmailEnabled() {
		t.Error("Gmail should be enabled")
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{name: "missing database", mutate: func(m map[string]string) { delete(m, "DATABASE_URL") }, wantErr: "DatabaseURL"},
		{name: "short secret", mutate: func(m map[string]string) { m["JWT_SECRET"] = "short" }, wantErr: "JWTSecret"},
		{name: "unknown provider", mutate: func(m map[string]string) { m["EXTRACTION_PROVIDER"] = "claude" }, wantErr: "ExtractionProvider"},
		{name: "openai without key", mutate: func(m map[string]string) { m["EXTRACTION_PROVIDER"] = "openai" }, wantErr: "OpenAIAPIKey"},
		{name: "bad duration", mutate: func(m map[string]string) { m["JWT_EXPIRES_IN"] = "soon" }, wantErr: "JWT_EXPIRES_IN"},
		{name: "bad queue buffer", mutate: func(m map[string]string) { m["QUEUE_BUFFER"] = "lots" }, wantErr: "QUEUE_BUFFER"},
		{name: "non numeric port", mutate: func(m map[string]string) { m["PORT"] = "http" }, wantErr: "Port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			tt.mutate(env)

			_, err := FromEnv(lookupFrom(env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}
