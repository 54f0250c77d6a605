package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken string
	DatabaseURL   string
	// AdminID is the trusted Telegram id seeded as the initial admin
	// and used as the supervisor notification channel.
	AdminID       int64
	SummaryTime   string
	RetentionDays int
	CatalogPath   string
}

// Load reads configuration from the environment (and an optional .env
// file) with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SummaryTime:   strings.TrimSpace(os.Getenv("SUMMARY_TIME")),
		RetentionDays: parsePositive(strings.TrimSpace(os.Getenv("RETENTION_DAYS"))),
		CatalogPath:   strings.TrimSpace(os.Getenv("CATALOG_PATH")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "shopfloor.db"
	}
	if cfg.SummaryTime == "" {
		cfg.SummaryTime = "20:00"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 180
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	adminRaw := strings.TrimSpace(os.Getenv("ADMIN_ID"))
	adminID, err := strconv.ParseInt(adminRaw, 10, 64)
	if err != nil || adminID == 0 {
		return cfg, fmt.Errorf("ADMIN_ID must be a Telegram user id, got %q", adminRaw)
	}
	cfg.AdminID = adminID

	return cfg, nil
}

func parsePositive(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
