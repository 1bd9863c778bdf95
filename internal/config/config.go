// Package config はアプリケーション設定の読み込みと検証を提供する。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// minPollInterval はポーリング間隔の下限。
// 監視先サイトへの過剰アクセスを避けるため、これより短い間隔は強制的に引き上げる。
const minPollInterval = 5 * time.Minute

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Sellers
	SellersFile string

	// Poll
	PollInterval  time.Duration
	MaxConcurrent int

	// Fetch
	FetchTimeout     time.Duration
	FetchRetryCount  int
	FetchBackoffBase time.Duration
	FetchRateRPS     float64
	MarketBaseURL    string

	// Telegram
	TelegramBotToken string
	TelegramChatID   string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// ポーリング間隔が下限を下回る場合は下限まで引き上げる。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SellersFile = os.Getenv("SELLERS_FILE")
	if cfg.SellersFile == "" {
		missing = append(missing, "SELLERS_FILE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 10*time.Minute)
	if cfg.PollInterval < minPollInterval {
		cfg.PollInterval = minPollInterval
	}
	cfg.MaxConcurrent = getEnvInt("MAX_CONCURRENT", 5)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchRetryCount = getEnvInt("FETCH_RETRY_COUNT", 3)
	cfg.FetchBackoffBase = getEnvDuration("FETCH_BACKOFF_BASE", 2*time.Second)
	cfg.FetchRateRPS = getEnvFloat("FETCH_RATE_RPS", 1.0)
	cfg.MarketBaseURL = getEnvString("MARKET_BASE_URL", "https://api.eldorado.gg")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		warnInvalidEnv(key, v, strconv.Itoa(defaultVal))
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnInvalidEnv(key, v, strconv.FormatFloat(defaultVal, 'g', -1, 64))
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnInvalidEnv(key, v, defaultVal.String())
		return defaultVal
	}
	return d
}

// warnInvalidEnv は解釈できない環境変数の値を起動時に警告する。
// 任意項目のタイポを黙って無視すると意図しない間隔で動き続けるため、
// デフォルト値へのフォールバックはログに残す。
func warnInvalidEnv(key, value, defaultVal string) {
	slog.Warn("環境変数の値を解釈できないためデフォルト値を使用します",
		slog.String("key", key),
		slog.String("value", value),
		slog.String("default", defaultVal),
	)
}
