package payment

import (
	"os"
	"strings"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	PublicBaseURL string
}

// ConfigFromEnv reads STRIPE_* and PUBLIC_BASE_URL.
func ConfigFromEnv() Config {
	return Config{
		SecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		WebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		PriceID:       strings.TrimSpace(os.Getenv("STRIPE_PRICE_ID")),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/"),
	}
}
