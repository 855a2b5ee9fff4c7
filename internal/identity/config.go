package identity

import (
	"os"
	"strings"
)

const DefaultCookieName = "sb-access-token"

type Config struct {
	Secret     string
	Issuer     string
	Audience   string
	CookieName string
}

// ConfigFromEnv reads AUTH_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Secret:     os.Getenv("AUTH_JWT_SECRET"),
		Issuer:     strings.TrimSpace(os.Getenv("AUTH_ISSUER")),
		Audience:   strings.TrimSpace(os.Getenv("AUTH_AUDIENCE")),
		CookieName: strings.TrimSpace(os.Getenv("AUTH_COOKIE_NAME")),
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return cfg
}
