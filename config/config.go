package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/raine/listing-draft-bot/internal/listing"
)

const (
	AppName     = "listing-draft-bot"
	EnvFileName = "config.env"

	DefaultDBPath        = "drafts.db"
	DefaultMarketplaceID = "EBAY_US"
)

// Config is the environment-derived configuration.
type Config struct {
	BotToken        string
	AdminTelegramID int64
	DBPath          string
	// SecretKey is the passphrase credentials are sealed with.
	SecretKey string

	// Credentials are defaults for users who have not set their own.
	Credentials   listing.CredentialSet
	MarketplaceID string
	EbayBaseURL   string

	// adminIDInvalid is set when ADMIN_TELEGRAM_ID is present but not a number.
	adminIDInvalid bool
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory, then from a local .env. Errors are ignored since the
// files may not exist. Variables already set in the environment win.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load()
}

// FromEnv reads the configuration from the environment.
func FromEnv() Config {
	cfg := Config{
		BotToken:  os.Getenv("BOT_TOKEN"),
		DBPath:    envOr("DB_PATH", DefaultDBPath),
		SecretKey: os.Getenv("SECRET_KEY"),
		Credentials: listing.CredentialSet{
			DraftingAPIKey:         os.Getenv("GEMINI_API_KEY"),
			MarketplaceAppID:       os.Getenv("EBAY_APP_ID"),
			MarketplaceSecret:      os.Getenv("EBAY_CERT_ID"),
			MarketplaceBearerToken: os.Getenv("EBAY_BEARER_TOKEN"),
		},
		MarketplaceID: envOr("EBAY_MARKETPLACE_ID", DefaultMarketplaceID),
		EbayBaseURL:   os.Getenv("EBAY_BASE_URL"),
	}
	if s := os.Getenv("ADMIN_TELEGRAM_ID"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			cfg.adminIDInvalid = true
		} else {
			cfg.AdminTelegramID = id
		}
	}
	return cfg
}

// Missing lists the required variables the bot binary cannot start without.
func (c Config) Missing() []string {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.AdminTelegramID == 0 || c.adminIDInvalid {
		missing = append(missing, "ADMIN_TELEGRAM_ID")
	}
	if c.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}
	return missing
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
