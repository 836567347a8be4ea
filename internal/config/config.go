package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	DB        DatabaseConfig
	Location  LocationConfig
	Countdown CountdownConfig
	Notify    NotifyConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Path string
}

type LocationConfig struct {
	Timeout     time.Duration
	GeocoderURL string
}

type CountdownConfig struct {
	Seconds int
}

type NotifyConfig struct {
	ResendAPIKey  string
	ResendURL     string
	FromAddress   string
	Timeout       time.Duration
	MaxConcurrent int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/safeher.db"),
		},
		Location: LocationConfig{
			Timeout:     getEnvDuration("LOCATION_TIMEOUT", 10*time.Second),
			GeocoderURL: getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		},
		Countdown: CountdownConfig{
			Seconds: getEnvInt("COUNTDOWN_SECONDS", 5),
		},
		Notify: NotifyConfig{
			ResendAPIKey:  getEnv("RESEND_API_KEY", ""),
			ResendURL:     getEnv("RESEND_URL", "https://api.resend.com/emails"),
			FromAddress:   getEnv("EMAIL_FROM", "SafeHer <onboarding@resend.dev>"),
			Timeout:       getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
			MaxConcurrent: getEnvInt("NOTIFY_MAX_CONCURRENT", 8),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Countdown.Seconds < 1 {
		return fmt.Errorf("countdown must be at least 1 second, got %d", c.Countdown.Seconds)
	}
	if c.Location.Timeout < time.Second {
		return fmt.Errorf("location timeout must be at least 1 second")
	}
	if c.Notify.Timeout < time.Second {
		return fmt.Errorf("notify timeout must be at least 1 second")
	}
	if c.Notify.MaxConcurrent < 1 {
		return fmt.Errorf("notify max concurrent must be at least 1, got %d", c.Notify.MaxConcurrent)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
