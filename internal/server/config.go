package server

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"roomchat/internal/transport"
)

const (
	defaultAddr         = ":8080"
	defaultSendBuffer   = 256              // buffered outbound queue capacity
	defaultIdleTimeout  = 5 * time.Minute  // idle connection timeout
	defaultWriteTimeout = 10 * time.Second // per-line write deadline
	defaultMessageRate  = 5                // chat lines per second
	defaultMessageBurst = 10
)

// Config holds the server settings.  The zero value of any field selects its
// default.
type Config struct {
	Addr   string // TCP listen address
	WSAddr string // WebSocket listen address; empty disables the WebSocket listener

	// AllowedOrigins restricts browser WebSocket clients ("*" allows any).
	AllowedOrigins []string

	SendBuffer    int
	MaxLineLength int
	WriteTimeout  time.Duration

	// IdleTimeout disconnects a connection that has neither sent nor been
	// sent a line for this long.
	IdleTimeout time.Duration

	// MessageRate paces chat lines per second per connection.  Lines beyond
	// the burst are delayed, never dropped.  A negative value disables pacing.
	MessageRate  float64
	MessageBurst int

	Logger *log.Logger
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() Config {
	return Config{
		Addr:          defaultAddr,
		SendBuffer:    defaultSendBuffer,
		MaxLineLength: transport.DefaultMaxLine,
		IdleTimeout:   defaultIdleTimeout,
		WriteTimeout:  defaultWriteTimeout,
		MessageRate:   defaultMessageRate,
		MessageBurst:  defaultMessageBurst,
	}
}

// ConfigFromEnv overlays CHAT_* environment variables on the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Addr = getEnv("CHAT_ADDR", cfg.Addr)
	cfg.WSAddr = getEnv("CHAT_WS_ADDR", cfg.WSAddr)
	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}
	cfg.SendBuffer = getEnvInt("CHAT_SEND_BUFFER", cfg.SendBuffer)
	cfg.MaxLineLength = getEnvInt("CHAT_MAX_LINE", cfg.MaxLineLength)
	cfg.IdleTimeout = getEnvDuration("CHAT_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.WriteTimeout = getEnvDuration("CHAT_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.MessageRate = getEnvFloat("CHAT_RATE", cfg.MessageRate)
	cfg.MessageBurst = getEnvInt("CHAT_BURST", cfg.MessageBurst)
	return cfg
}

func (cfg Config) sanitize() Config {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = transport.DefaultMaxLine
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MessageRate == 0 {
		cfg.MessageRate = defaultMessageRate
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = defaultMessageBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, def)
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("[config] invalid number for %s: %q, using %g", key, v, def)
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, def)
	}
	return def
}
