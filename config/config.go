// Package config loads runtime settings from the environment, following the
// project's .env + os.Getenv convention rather than a flags/file format.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds every environment-tunable the supervision core and its demo
// binary read at startup.
type Config struct {
	NDigits int32

	GatewayEngine string // "live" or "backtest"

	DefaultComposoryCloseExpire time.Duration
	DefaultComposoryExpire      time.Duration
	PaperSlippageBps            decimal.Decimal
	PaperRateLimitPerSec        float64

	TelegramBotToken string
	TelegramChatID   string

	LedgerDSN     string
	LedgerDriver  string // "sqlite" or "postgres"
	LedgerEnabled bool
}

// Load reads .env (if present, ignored if not) then the environment,
// applying documented defaults for anything unset.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("config: no .env file found, relying on process environment")
	}

	return Config{
		NDigits:                     int32(envInt("NDIGITS", 4)),
		GatewayEngine:               envString("GATEWAY_ENGINE", "backtest"),
		DefaultComposoryCloseExpire: envDuration("COMPOSORY_CLOSE_EXPIRE_SEC", 30*time.Second),
		DefaultComposoryExpire:      envDuration("COMPOSORY_EXPIRE_SEC", 30*time.Second),
		PaperSlippageBps:            envDecimal("PAPER_SLIPPAGE_BPS", decimal.NewFromInt(5)),
		PaperRateLimitPerSec:        envFloat("PAPER_RATE_LIMIT_PER_SEC", 10),
		TelegramBotToken:            os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:              os.Getenv("TELEGRAM_CHAT_ID"),
		LedgerDSN:                   envString("LEDGER_DSN", "ledger.db"),
		LedgerDriver:                envString("LEDGER_DRIVER", "sqlite"),
		LedgerEnabled:               os.Getenv("LEDGER_ENABLED") == "true",
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
