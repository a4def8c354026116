// Package config loads the engine's runtime settings by layering
// defaults, an optional properties file, and environment variable
// overrides, following the same three-tier precedence as the donor
// gamification service's config loader.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every runtime setting named in spec.md §6.
type Config struct {
	// Kafka / event log.
	Brokers         []string
	ClientID        string
	GroupID         string
	ScoreTopic      string
	RankChangeTopic string

	// Redis / store gateway.
	StoreHost     string
	StorePort     int
	StorePassword string
	StoreDB       int

	// Cache purge.
	PurgeURL      string
	PurgeKey      string
	PurgeProvider string // "cloudflare" or "fastly"
	PurgeTimeout  time.Duration

	// Batch dispatcher / recovery detector tunables.
	EmptyBatchThreshold int
	IdleTimeout         time.Duration

	// Ambient.
	ListenAddress   string
	LogLevel        string
	LogPretty       bool
	ShutdownTimeout time.Duration
	PropertiesPath  string
}

const (
	defaultClientID            = "leaderboard-engine"
	defaultGroupID             = "leaderboard-updater"
	defaultScoreTopic          = "score-submitted"
	defaultRankChangeTopic     = "leaderboard-updated"
	defaultStoreHost           = "localhost"
	defaultStorePort           = 6379
	defaultPurgeProvider       = "cloudflare"
	defaultPurgeTimeout        = 5 * time.Second
	defaultEmptyBatchThreshold = 3
	defaultIdleTimeout         = 5 * time.Second
	defaultListenAddress       = ":9090"
	defaultLogLevel            = "info"
	defaultShutdownTimeout     = 10 * time.Second
	defaultPropertiesPath      = "leaderboard-engine.properties"
)

// Load resolves configuration by layering defaults, an optional
// properties file, and finally environment variables. The properties
// file location can be overridden with LEADERBOARD_PROPERTIES_PATH.
func Load() (Config, error) {
	cfg := Config{
		ClientID:            defaultClientID,
		GroupID:             defaultGroupID,
		ScoreTopic:          defaultScoreTopic,
		RankChangeTopic:     defaultRankChangeTopic,
		StoreHost:           defaultStoreHost,
		StorePort:           defaultStorePort,
		PurgeProvider:       defaultPurgeProvider,
		PurgeTimeout:        defaultPurgeTimeout,
		EmptyBatchThreshold: defaultEmptyBatchThreshold,
		IdleTimeout:         defaultIdleTimeout,
		ListenAddress:       defaultListenAddress,
		LogLevel:            defaultLogLevel,
		ShutdownTimeout:     defaultShutdownTimeout,
	}

	propsPath := strings.TrimSpace(os.Getenv("LEADERBOARD_PROPERTIES_PATH"))
	if propsPath == "" {
		propsPath = defaultPropertiesPath
	}
	cfg.PropertiesPath = propsPath

	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if len(cfg.Brokers) == 0 {
		return Config{}, errors.New("at least one Kafka broker must be configured")
	}

	return cfg, nil
}

func applyProperties(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		if err := setProperty(cfg, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])); err != nil {
			return fmt.Errorf("property %s: %w", parts[0], err)
		}
	}
	return scanner.Err()
}

func setProperty(cfg *Config, key, value string) error {
	switch key {
	case "brokers":
		cfg.Brokers = splitAndTrim(value)
	case "client_id":
		cfg.ClientID = value
	case "group_id":
		cfg.GroupID = value
	case "score_topic":
		cfg.ScoreTopic = value
	case "rank_change_topic":
		cfg.RankChangeTopic = value
	case "store_host":
		cfg.StoreHost = value
	case "store_port":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.StorePort = v
	case "store_password":
		cfg.StorePassword = value
	case "store_db":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.StoreDB = v
	case "purge_url":
		cfg.PurgeURL = value
	case "purge_key":
		cfg.PurgeKey = value
	case "purge_provider":
		cfg.PurgeProvider = value
	case "purge_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.PurgeTimeout = d
	case "empty_batch_threshold":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.EmptyBatchThreshold = v
	case "idle_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.IdleTimeout = d
	case "listen_address":
		cfg.ListenAddress = value
	case "log_level":
		cfg.LogLevel = value
	case "log_pretty":
		cfg.LogPretty = value == "true"
	case "shutdown_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = d
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return nil
}

func applyEnv(cfg *Config) error {
	type envBinding struct {
		key   string
		apply func(string) error
	}
	bindings := []envBinding{
		{"LEADERBOARD_BROKERS", func(v string) error { cfg.Brokers = splitAndTrim(v); return nil }},
		{"LEADERBOARD_CLIENT_ID", func(v string) error { cfg.ClientID = v; return nil }},
		{"LEADERBOARD_GROUP_ID", func(v string) error { cfg.GroupID = v; return nil }},
		{"LEADERBOARD_SCORE_TOPIC", func(v string) error { cfg.ScoreTopic = v; return nil }},
		{"LEADERBOARD_RANK_CHANGE_TOPIC", func(v string) error { cfg.RankChangeTopic = v; return nil }},
		{"LEADERBOARD_STORE_HOST", func(v string) error { cfg.StoreHost = v; return nil }},
		{"LEADERBOARD_STORE_PORT", func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			cfg.StorePort = n
			return nil
		}},
		{"LEADERBOARD_STORE_PASSWORD", func(v string) error { cfg.StorePassword = v; return nil }},
		{"LEADERBOARD_PURGE_URL", func(v string) error { cfg.PurgeURL = v; return nil }},
		{"LEADERBOARD_PURGE_KEY", func(v string) error { cfg.PurgeKey = v; return nil }},
		{"LEADERBOARD_PURGE_PROVIDER", func(v string) error { cfg.PurgeProvider = v; return nil }},
		{"LEADERBOARD_EMPTY_BATCH_THRESHOLD", func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			cfg.EmptyBatchThreshold = n
			return nil
		}},
		{"LEADERBOARD_IDLE_TIMEOUT_MS", func(v string) error {
			d, err := parsePositiveMillis(v)
			if err != nil {
				return err
			}
			cfg.IdleTimeout = d
			return nil
		}},
		{"LEADERBOARD_LISTEN_ADDRESS", func(v string) error { cfg.ListenAddress = v; return nil }},
		{"LEADERBOARD_LOG_LEVEL", func(v string) error { cfg.LogLevel = v; return nil }},
	}
	for _, b := range bindings {
		if v, ok := lookupEnvTrimmed(b.key); ok {
			if err := b.apply(v); err != nil {
				return fmt.Errorf("%s: %w", b.key, err)
			}
		}
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePositiveMillis(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// StoreAddr formats the configured Redis host/port as a dial address.
func (c Config) StoreAddr() string {
	return fmt.Sprintf("%s:%d", c.StoreHost, c.StorePort)
}
