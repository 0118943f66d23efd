package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Olafs-World/agent-chatroom/internal/fanout"
)

// TunnelCloudflared is the only supported tunnel mode.
const TunnelCloudflared = "cloudflared"

// Config holds all configuration for the relay.
type Config struct {
	Port     int
	Env      string
	Password string // Room secret
	Tunnel   string // "" or "cloudflared"
	LogLevel string

	// Streaming
	KeepaliveInterval time.Duration
	SubscriberBuffer  int
	OverflowPolicy    string

	// Rate limiting (RPS 0 disables)
	RateLimitRPS       float64
	RateLimitBurst     int
	RateLimitWhitelist []string // IPs or CIDRs
	RedisURL           string

	// Tunnel
	TunnelDeadline time.Duration
}

// Load reads configuration from environment variables.
// It loads from a .env file first if one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnvInt("PORT", 8765),
		Env:                getEnv("ENV", "development"),
		Password:           os.Getenv("ROOM_PASSWORD"),
		Tunnel:             os.Getenv("TUNNEL"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		KeepaliveInterval:  getEnvDuration("KEEPALIVE_INTERVAL", 15*time.Second),
		SubscriberBuffer:   getEnvInt("SUBSCRIBER_BUFFER", fanout.DefaultBuffer),
		OverflowPolicy:     getEnv("OVERFLOW_POLICY", "disconnect"),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
		RateLimitWhitelist: getEnvList("RATE_LIMIT_WHITELIST"),
		RedisURL:           os.Getenv("REDIS_URL"),
		TunnelDeadline:     getEnvDuration("TUNNEL_DEADLINE", 30*time.Second),
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Password == "" {
		return errors.New("room password is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Tunnel != "" && c.Tunnel != TunnelCloudflared {
		return fmt.Errorf("unsupported tunnel %q", c.Tunnel)
	}
	if c.KeepaliveInterval <= 0 {
		return errors.New("keepalive interval must be positive")
	}
	if _, err := fanout.ParsePolicy(c.OverflowPolicy); err != nil {
		return err
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address for all interfaces.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
