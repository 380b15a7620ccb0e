package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/yamesh/internal/core/domain"
)

// Default configuration values
const (
	DefaultHubURL         = "ws://localhost:8080/ws"
	DefaultRelay          = "ws"
	DefaultCodec          = "json"
	DefaultRedisAddr      = "localhost:6379"
	DefaultMaxPeers       = 10
	DefaultPublishTimeout = 5 * time.Second
	DefaultPort           = "8080"
	DefaultTokenTTL       = 24 * time.Hour
)

var (
	relays = []string{"ws", "redis", "memory"}
	codecs = []string{"json", "msgpack"}
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	JWTSecret      string
	AllowedOrigins []string
	StaticDir      string
}

// Config holds application configuration
type Config struct {
	// Relay selects the relay channel backend: ws, redis or memory.
	Relay  string
	HubURL string
	Token  string
	Redis  RedisConfig

	Codec string

	ICEServers []domain.ICEServer
	ForceRelay bool

	// MaxPeers caps concurrent sessions; 0 means no cap.
	MaxPeers          int
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration

	LogLevel string

	Server ServerConfig
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	Relay             string
	HubURL            string
	Token             string
	RedisAddr         string
	Codec             string
	STUNURLs          string
	TURNURLs          string
	TURNUser          string
	TURNPass          string
	ForceRelay        bool
	MaxPeers          int
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	LogLevel          string
	Port              string
	JWTSecret         string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables
// 3. Defaults
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Relay:    pick(opts.Relay, "YAMESH_RELAY", DefaultRelay),
		HubURL:   pick(opts.HubURL, "YAMESH_HUB_URL", DefaultHubURL),
		Token:    pick(opts.Token, "YAMESH_TOKEN", ""),
		Codec:    pick(opts.Codec, "YAMESH_CODEC", DefaultCodec),
		LogLevel: pick(opts.LogLevel, "LOG_LEVEL", "info"),
		Redis: RedisConfig{
			Addr:     pick(opts.RedisAddr, "YAMESH_REDIS_ADDR", DefaultRedisAddr),
			Password: getEnv("YAMESH_REDIS_PASSWORD", ""),
		},
		Server: ServerConfig{
			Port:           pick(opts.Port, "YAMESH_PORT", DefaultPort),
			JWTSecret:      pick(opts.JWTSecret, "YAMESH_JWT_SECRET", ""),
			AllowedOrigins: splitCommaSeparated(getEnv("YAMESH_ALLOWED_ORIGINS", "")),
			StaticDir:      getEnv("YAMESH_STATIC_DIR", ""),
		},
	}

	if !oneOf(cfg.Relay, relays) {
		return nil, fmt.Errorf("unknown relay %q (want one of %s)", cfg.Relay, strings.Join(relays, ", "))
	}
	if !oneOf(cfg.Codec, codecs) {
		return nil, fmt.Errorf("unknown codec %q (want one of %s)", cfg.Codec, strings.Join(codecs, ", "))
	}

	var err error
	if cfg.Redis.DB, err = envInt("YAMESH_REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.ForceRelay = opts.ForceRelay
	if !cfg.ForceRelay {
		if cfg.ForceRelay, err = envBool("YAMESH_FORCE_RELAY", false); err != nil {
			return nil, err
		}
	}

	cfg.MaxPeers = opts.MaxPeers
	if cfg.MaxPeers == 0 {
		if cfg.MaxPeers, err = envInt("YAMESH_MAX_PEERS", DefaultMaxPeers); err != nil {
			return nil, err
		}
	}
	if cfg.MaxPeers < 0 {
		cfg.MaxPeers = 0
	}

	cfg.PublishTimeout = opts.PublishTimeout
	if cfg.PublishTimeout == 0 {
		if cfg.PublishTimeout, err = envDuration("YAMESH_PUBLISH_TIMEOUT", DefaultPublishTimeout); err != nil {
			return nil, err
		}
	}

	cfg.DisconnectTimeout = opts.DisconnectTimeout
	if cfg.DisconnectTimeout == 0 {
		if cfg.DisconnectTimeout, err = envDuration("YAMESH_DISCONNECT_TIMEOUT", 0); err != nil {
			return nil, err
		}
	}

	cfg.ICEServers, err = parseICEServers(
		os.Getenv(envICEServersJSON),
		pick(opts.STUNURLs, envStunURLs, ""),
		pick(opts.TURNURLs, envTurnURLs, ""),
		pick(opts.TURNUser, envTurnUsername, ""),
		pick(opts.TURNPass, envTurnCredential, ""),
	)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// pick returns the flag value, else the environment value, else def.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	return getEnv(env, def)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
