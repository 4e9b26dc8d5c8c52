// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	LogLevel        slog.Level
	DataFile        string
	BlockedFile     string
	Cooldown        time.Duration
	SessionTTL      time.Duration
	UserQueueSize   int
	AdminIDs        []string
	BroadcastChatID string
	Telegram        TelegramConfig
	WebChat         WebChatConfig
	Delivery        DeliveryConfig
}

// TelegramConfig controls the Bot API transport.
type TelegramConfig struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
	SendRate    float64
}

// Enabled reports whether a bot token is configured.
func (t TelegramConfig) Enabled() bool { return t.Token != "" }

// WebChatConfig controls the browser chat transport.
type WebChatConfig struct {
	Enabled    bool
	OutboxSize int
}

// DeliveryConfig controls report fan-out.
type DeliveryConfig struct {
	MaxRetries  int
	Concurrency int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("HTTP_PORT", getEnv("PORT", "8080")),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		LogLevel:        getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		DataFile:        getEnv("DATA_FILE", "./data/data.json"),
		BlockedFile:     getEnv("BLOCKED_FILE", "./data/blocked.json"),
		Cooldown:        getEnvDuration("COOLDOWN", time.Hour),
		SessionTTL:      getEnvDuration("SESSION_TTL", 24*time.Hour),
		UserQueueSize:   getEnvInt("USER_QUEUE_SIZE", 64),
		AdminIDs:        getEnvList("ADMIN_IDS"),
		BroadcastChatID: strings.TrimSpace(getEnv("BROADCAST_CHAT_ID", "")),
		Telegram: TelegramConfig{
			Token:       strings.TrimSpace(getEnv("TELEGRAM_TOKEN", "")),
			APIURL:      getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			PollTimeout: getEnvDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
			SendRate:    getEnvFloat("TELEGRAM_SEND_RATE", 25),
		},
		WebChat: WebChatConfig{
			Enabled:    getEnvBool("WEBCHAT_ENABLED", false),
			OutboxSize: getEnvInt("WEBCHAT_OUTBOX_SIZE", 50),
		},
		Delivery: DeliveryConfig{
			MaxRetries:  getEnvInt("DELIVERY_MAX_RETRIES", 3),
			Concurrency: getEnvInt("DELIVERY_CONCURRENCY", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}
	if c.DataFile == "" {
		return errors.New("DATA_FILE cannot be empty")
	}
	if c.BlockedFile == "" {
		return errors.New("BLOCKED_FILE cannot be empty")
	}
	if len(c.AdminIDs) == 0 {
		return errors.New("ADMIN_IDS must list at least one admin")
	}
	if !c.Telegram.Enabled() && !c.WebChat.Enabled {
		return errors.New("no inbound transport: set TELEGRAM_TOKEN or WEBCHAT_ENABLED")
	}
	if c.UserQueueSize <= 0 {
		return errors.New("USER_QUEUE_SIZE must be > 0")
	}
	if c.Cooldown < 0 {
		return errors.New("COOLDOWN cannot be negative")
	}
	if c.SessionTTL < 0 {
		return errors.New("SESSION_TTL cannot be negative")
	}
	if c.Telegram.PollTimeout <= 0 || c.Telegram.PollTimeout > 50*time.Second {
		return errors.New("TELEGRAM_POLL_TIMEOUT must be between 1s and 50s")
	}
	if c.Delivery.MaxRetries < 0 {
		return errors.New("DELIVERY_MAX_RETRIES cannot be negative")
	}
	return nil
}

// Recipients returns who receives completed reports.
func (c *Config) Recipients() []string {
	out := append([]string(nil), c.AdminIDs...)
	if c.BroadcastChatID != "" {
		out = append(out, c.BroadcastChatID)
	}
	return out
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins the web chat accepts.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90m") or plain seconds ("3600").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
