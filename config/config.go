package config

import (
	"os"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	OAuth      OAuthConfig
	Stripe     StripeConfig
	Plaid      PlaidConfig
	Cloudinary CloudinaryConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// StripeConfig carries the platform API key plus the signing secrets for the
// two webhook endpoints (platform events and Connect account events).
type StripeConfig struct {
	SecretKey            string
	WebhookSecret        string
	ConnectWebhookSecret string
	SuccessURL           string
	CancelURL            string
}

type PlaidConfig struct {
	BaseURL  string
	ClientID string
	Secret   string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         env("PORT", "8088"),
			Env:          env("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             env("DATABASE_DSN", "dealdesk:dealdesk@tcp(localhost:3306)/dealdesk?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  env("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: env("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "dealdesk",
		},
		OAuth: OAuthConfig{
			GoogleClientID:     env("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  env("GOOGLE_REDIRECT_URL", ""),
		},
		Stripe: StripeConfig{
			SecretKey:            env("STRIPE_SECRET_KEY", ""),
			WebhookSecret:        env("STRIPE_WEBHOOK_SECRET", ""),
			ConnectWebhookSecret: env("STRIPE_CONNECT_WEBHOOK_SECRET", ""),
			SuccessURL:           env("STRIPE_SUCCESS_URL", "https://app.dealdesk.example/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:            env("STRIPE_CANCEL_URL", "https://app.dealdesk.example/cancel"),
		},
		Plaid: PlaidConfig{
			BaseURL:  env("PLAID_BASE_URL", "https://sandbox.plaid.com"),
			ClientID: env("PLAID_CLIENT_ID", ""),
			Secret:   env("PLAID_SECRET", ""),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: env("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    env("CLOUDINARY_API_KEY", ""),
			APISecret: env("CLOUDINARY_API_SECRET", ""),
		},
	}
}
