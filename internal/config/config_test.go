package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "bizwallet"},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Stripe: StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec"},
		Wallet: WalletConfig{TopUpMin: "10", TopUpMax: "10000"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Fatalf("expected joined errors to mention JWT_SECRET, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.Stripe.SuccessURL = "https://x/ok"
	c.Stripe.CancelURL = "https://x/cancel"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected default access ttl, got %s", c.Auth.AccessTokenTTL)
	}
	if c.App.LogLevel != "debug" {
		t.Fatalf("expected debug log level locally, got %q", c.App.LogLevel)
	}
	if c.RedisAddr() != "" {
		t.Fatalf("expected empty redis addr when host unset")
	}
}

func TestValidate_TopUpRange(t *testing.T) {
	c := validConfig()
	c.Wallet.TopUpMin = "100"
	c.Wallet.TopUpMax = "10"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for inverted top-up range")
	}
}
