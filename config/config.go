// Package config loads the service configuration from the environment.
// An optional .env file is honored for local development.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	// StorageURL and StorageToken are the two required endpoint values.
	// When either is missing remote operations are disabled, the process
	// does not crash.
	StorageURL   string
	StorageToken string

	TicketsTable string
	VotesTable   string

	RedisConn    string
	VotesChannel string
	CacheTTL     time.Duration

	ListenAddr string
	Debug      bool
}

// Load reads the environment. Endpoint values are stripped of stray quote
// characters defensively, some deployment tooling leaves them in.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StorageURL:   env("STORAGE_ACCOUNT_URL"),
		StorageToken: env("STORAGE_SAS_TOKEN"),
		TicketsTable: envDefault("TICKETS_TABLE", "tickets"),
		VotesTable:   envDefault("VOTES_TABLE", "votes"),
		RedisConn:    env("REDIS_CONNECTION_STRING"),
		VotesChannel: envDefault("VOTES_CHANNEL", "vote-updates"),
		CacheTTL:     30 * time.Second,
		ListenAddr:   ":8080",
	}
	if v := env("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid CACHE_TTL: %q", v)
		}
		cfg.CacheTTL = d
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		cfg.ListenAddr = ":" + strings.TrimSpace(v)
	}
	if dbg, err := strconv.ParseBool(env("DEBUG")); err == nil && dbg {
		cfg.Debug = true
	}
	return cfg, nil
}

// StorageConfigured reports whether both required endpoint values were
// supplied.
func (c Config) StorageConfigured() bool {
	return c.StorageURL != "" && c.StorageToken != ""
}

// RedisOptions parses the redis connection string. URLs are handled by the
// client library; the comma-separated "host:port,password=...,ssl=true"
// form some providers emit is parsed by hand.
func (c Config) RedisOptions() *redis.Options {
	if c.RedisConn == "" {
		return nil
	}
	opts, err := redis.ParseURL(c.RedisConn)
	if err == nil {
		return opts
	}
	parts := strings.Split(c.RedisConn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func env(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), `"'`)
}

func envDefault(key, def string) string {
	if v := env(key); v != "" {
		return v
	}
	return def
}
