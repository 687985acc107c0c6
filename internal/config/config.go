package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store kinds
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	AdminListen     string        // ex: ":8080", admin API
	SiteListen      string        // ex: ":8081", site traffic
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string `validate:"oneof=debug info warn error"`
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Mapping store
	Store           string `validate:"oneof=memory redis sqlite postgres"`
	SQLitePath      string `validate:"required_if=Store sqlite"`
	PostgresDSN     string `validate:"required_if=Store postgres"`
	SQLMaxOpenConns int    `validate:"gte=0"`

	// Redis
	RedisURL            string        // optional redis:// URL, overrides the fields below
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           `validate:"gte=0"`
	RedisKeyPrefix      string        // ex: "onionroute:"
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int           // connection pool size
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries, doubled each time
	RedisWarnThreshold  int           // warn after this many attempts

	// Snapshot and early boot
	SnapshotPath    string `validate:"required"`
	SnapshotWatch   bool   // cache the snapshot and reload on fsnotify events
	AliasSuffix     string `validate:"required,startswith=."`
	BootstrapConfig string // site bootstrap TOML holding early_boot, empty = hook unmanaged
	AutoInstallHook bool   // patch BootstrapConfig at startup if needed

	// Tenants
	TenantsFile           string        // optional tenants.yaml
	TenantsReloadInterval time.Duration `validate:"gte=0"` // 0 disables periodic reload, manual reload still works
	ReconcileInterval     time.Duration `validate:"gte=0"` // 0 disables the snapshot reconciler

	// Site
	UpstreamURL string `validate:"required,url"`

	// Admin access restrictions
	AllowedHosts   []string // optional, restrict admin access to specific Host headers
	AllowedCIDRS   []string // optional, restrict admin access to specific IPs or CIDRs
	TrustProxy     bool     // true => trust X-Forwarded-For headers
	RateLimitRPS   float64  `validate:"gte=0"`
	RateLimitBurst int      `validate:"gte=0"`
	CORSOrigins    []string // optional, browser origins allowed to call the admin API
}

// Load reads the configuration from the environment, after loading an
// optional .env file (ONIONROUTE_ENV_FILE, default ".env").
// Invalid configuration panics.
func Load() *Config {
	loadDotEnv(getenv("ONIONROUTE_ENV_FILE", ".env"))

	cfg := &Config{
		// Server settings
		AdminListen:     getenv("ONIONROUTE_ADMIN_LISTEN", ":8080"),
		SiteListen:      getenv("ONIONROUTE_SITE_LISTEN", ":8081"),
		ShutdownTimeout: mustDuration("ONIONROUTE_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("ONIONROUTE_LOG_LEVEL", "info"),
		PrettyLog: mustBool("ONIONROUTE_PRETTY_LOG", false),

		// Mapping store
		Store:           strings.ToLower(getenv("ONIONROUTE_STORE", StoreSQLite)),
		SQLitePath:      getenv("ONIONROUTE_SQLITE_PATH", "/var/lib/onionroute/onionroute.db"),
		PostgresDSN:     getenv("ONIONROUTE_POSTGRES_DSN", ""),
		SQLMaxOpenConns: getenvInt("ONIONROUTE_SQL_MAX_OPEN_CONNS", 10),

		// Redis settings
		RedisURL:            getenv("ONIONROUTE_REDIS_URL", ""),
		RedisAddr:           getenv("ONIONROUTE_REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("ONIONROUTE_REDIS_USERNAME", ""),
		RedisPassword:       getenv("ONIONROUTE_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("ONIONROUTE_REDIS_DB", 0),
		RedisKeyPrefix:      getenv("ONIONROUTE_REDIS_KEY_PREFIX", "onionroute:"),
		RedisDT:             mustDuration("ONIONROUTE_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("ONIONROUTE_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("ONIONROUTE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("ONIONROUTE_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("ONIONROUTE_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("ONIONROUTE_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("ONIONROUTE_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("ONIONROUTE_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("ONIONROUTE_REDIS_WARN_THRESHOLD", 3),

		// Snapshot and early boot
		SnapshotPath:    getenv("ONIONROUTE_SNAPSHOT_PATH", "/var/lib/onionroute/snapshot.json"),
		SnapshotWatch:   mustBool("ONIONROUTE_SNAPSHOT_WATCH", false),
		AliasSuffix:     strings.ToLower(getenv("ONIONROUTE_ALIAS_SUFFIX", ".onion")),
		BootstrapConfig: getenv("ONIONROUTE_BOOTSTRAP_CONFIG", ""),
		AutoInstallHook: mustBool("ONIONROUTE_AUTO_INSTALL_HOOK", false),

		// Tenants
		TenantsFile:           getenv("ONIONROUTE_TENANTS_FILE", ""),
		TenantsReloadInterval: mustDuration("ONIONROUTE_TENANTS_RELOAD_INTERVAL", 5*time.Minute),
		ReconcileInterval:     mustDuration("ONIONROUTE_RECONCILE_INTERVAL", 0),

		// Site
		UpstreamURL: requireEnv("ONIONROUTE_UPSTREAM_URL"),

		// Access restrictions
		AllowedHosts:   splitAndTrim(getenv("ONIONROUTE_ALLOWED_HOSTS", "")),
		AllowedCIDRS:   splitAndTrim(getenv("ONIONROUTE_ALLOWED_CIDRS", "")),
		TrustProxy:     mustBool("ONIONROUTE_TRUST_PROXY", false),
		RateLimitRPS:   getenvFloat("ONIONROUTE_RATE_LIMIT_RPS", 5),
		RateLimitBurst: getenvInt("ONIONROUTE_RATE_LIMIT_BURST", 20),
		CORSOrigins:    splitAndTrim(getenv("ONIONROUTE_CORS_ORIGINS", "")),
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid configuration: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisURL != "" {
		cp.RedisURL = "***REDACTED***"
	}
	if cp.PostgresDSN != "" {
		cp.PostgresDSN = "***REDACTED***"
	}
	return cp
}

// loadDotEnv loads path if it exists. Variables already set win.
func loadDotEnv(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Sprintf("❌ FATAL: failed to load env file %s: %v", path, err))
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
