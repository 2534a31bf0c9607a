package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Operator is a dashboard user allowed to sign in.
type Operator struct {
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
}

// Config holds flowwatch runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Port     int    `yaml:"port"`

	DatabaseURL          string `yaml:"database_url"`
	SQLitePragmasEnabled bool   `yaml:"sqlite_pragmas_enabled"`
	SQLiteBusyTimeoutMS  int    `yaml:"sqlite_busy_timeout_ms"`
	SQLiteJournalMode    string `yaml:"sqlite_journal_mode"`
	SQLiteSynchronous    string `yaml:"sqlite_synchronous"`
	SQLiteMaxOpenConns   int    `yaml:"sqlite_max_open_conns"`
	SQLiteMaxIdleConns   int    `yaml:"sqlite_max_idle_conns"`
	SQLiteConnMaxIdleSec int    `yaml:"sqlite_conn_max_idle_seconds"`
	SQLiteConnMaxLifeSec int    `yaml:"sqlite_conn_max_lifetime_seconds"`

	// Listing cache and ingestion
	CacheTTLMS        int  `yaml:"cache_ttl_ms"`
	IngestConcurrency int  `yaml:"ingest_concurrency"`
	MaxBodyBytes      int  `yaml:"max_body_bytes"`
	DebugEndpoints    bool `yaml:"debug_endpoints"`

	// Client addresses allowed to call the webhook (CIDR or IP); deny wins.
	WebhookAllowCIDRs []string `yaml:"webhook_allow_cidrs"`
	WebhookDenyCIDRs  []string `yaml:"webhook_deny_cidrs"`

	// Upstream APIs
	N8NBaseURL             string `yaml:"n8n_base_url"`
	N8NAPIKey              string `yaml:"n8n_api_key"`
	CloseBaseURL           string `yaml:"close_base_url"`
	CloseAPIKey            string `yaml:"close_api_key"`
	OutboundProxyURL       string `yaml:"outbound_proxy_url"`
	UpstreamTimeoutSeconds int    `yaml:"upstream_timeout_seconds"`

	// Dashboard sign-in
	Operators         []Operator `yaml:"operators"`
	SessionMaxAgeSecs int        `yaml:"session_max_age_seconds"`
	SessionSecret     string     `yaml:"session_secret"` // random per process when empty

	CLIServer string `yaml:"cli_server"`
}

// Default returns the built-in defaults with environment overrides applied.
func Default() *Config {
	cfg := &Config{
		LogLevel:               "INFO",
		LogFile:                "./flowwatch.log",
		Port:                   3000,
		DatabaseURL:            "flowwatch.db",
		SQLitePragmasEnabled:   true,
		SQLiteBusyTimeoutMS:    5000,
		SQLiteJournalMode:      "WAL",
		SQLiteSynchronous:      "NORMAL",
		SQLiteMaxOpenConns:     1,
		SQLiteMaxIdleConns:     1,
		SQLiteConnMaxIdleSec:   300,
		CacheTTLMS:             5000,
		IngestConcurrency:      8,
		MaxBodyBytes:           4 << 20,
		DebugEndpoints:         true,
		CloseBaseURL:           "https://api.close.com/api/v1",
		UpstreamTimeoutSeconds: 30,
		SessionMaxAgeSecs:      86400,
		CLIServer:              "http://localhost:3000",
	}
	applyEnv(cfg)
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
// The file path comes from the argument or FLOWWATCH_CONFIG. Values in the
// environment win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FLOWWATCH_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	fileCfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config file: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fileCfg, nil
}

// applyEnv overrides cfg with any environment variable that is set.
func applyEnv(cfg *Config) {
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePragmasEnabled = getEnvBool("SQLITE_PRAGMAS_ENABLED", cfg.SQLitePragmasEnabled)
	cfg.SQLiteBusyTimeoutMS = getEnvInt("SQLITE_BUSY_TIMEOUT_MS", cfg.SQLiteBusyTimeoutMS)
	cfg.SQLiteJournalMode = getEnv("SQLITE_JOURNAL_MODE", cfg.SQLiteJournalMode)
	cfg.SQLiteSynchronous = getEnv("SQLITE_SYNCHRONOUS", cfg.SQLiteSynchronous)
	cfg.SQLiteMaxOpenConns = getEnvInt("SQLITE_MAX_OPEN_CONNS", cfg.SQLiteMaxOpenConns)
	cfg.SQLiteMaxIdleConns = getEnvInt("SQLITE_MAX_IDLE_CONNS", cfg.SQLiteMaxIdleConns)
	cfg.SQLiteConnMaxIdleSec = getEnvInt("SQLITE_CONN_MAX_IDLE_SECONDS", cfg.SQLiteConnMaxIdleSec)
	cfg.SQLiteConnMaxLifeSec = getEnvInt("SQLITE_CONN_MAX_LIFETIME_SECONDS", cfg.SQLiteConnMaxLifeSec)
	cfg.CacheTTLMS = getEnvInt("CACHE_TTL_MS", cfg.CacheTTLMS)
	cfg.IngestConcurrency = getEnvInt("INGEST_CONCURRENCY", cfg.IngestConcurrency)
	cfg.MaxBodyBytes = getEnvInt("MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.DebugEndpoints = getEnvBool("DEBUG_ENDPOINTS", cfg.DebugEndpoints)
	cfg.N8NBaseURL = strings.TrimRight(getEnv("N8N_BASE_URL", cfg.N8NBaseURL), "/")
	cfg.N8NAPIKey = getEnv("N8N_API_KEY", cfg.N8NAPIKey)
	cfg.CloseBaseURL = strings.TrimRight(getEnv("CLOSE_BASE_URL", cfg.CloseBaseURL), "/")
	cfg.CloseAPIKey = getEnv("CLOSE_API_KEY", cfg.CloseAPIKey)
	cfg.OutboundProxyURL = getEnv("OUTBOUND_PROXY_URL", cfg.OutboundProxyURL)
	cfg.UpstreamTimeoutSeconds = getEnvInt("UPSTREAM_TIMEOUT_SECONDS", cfg.UpstreamTimeoutSeconds)
	cfg.SessionMaxAgeSecs = getEnvInt("SESSION_MAX_AGE_SECONDS", cfg.SessionMaxAgeSecs)
	cfg.SessionSecret = getEnv("SESSION_SECRET", cfg.SessionSecret)
	cfg.CLIServer = getEnv("FLOWWATCH_SERVER", cfg.CLIServer)

	if raw := os.Getenv("WEBHOOK_ALLOW_CIDRS"); raw != "" {
		cfg.WebhookAllowCIDRs = splitList(raw)
	}
	if raw := os.Getenv("WEBHOOK_DENY_CIDRS"); raw != "" {
		cfg.WebhookDenyCIDRs = splitList(raw)
	}
	if raw := os.Getenv("FLOWWATCH_OPERATORS"); raw != "" {
		cfg.Operators = ParseOperators(raw)
	}
}

// ParseOperators parses "email:bcrypt-hash" pairs separated by commas.
// Entries without a hash are skipped.
func ParseOperators(raw string) []Operator {
	var ops []Operator
	for _, entry := range strings.Split(raw, ",") {
		email, hash, ok := strings.Cut(strings.TrimSpace(entry), ":")
		email = strings.TrimSpace(email)
		hash = strings.TrimSpace(hash)
		if !ok || email == "" || hash == "" {
			continue
		}
		ops = append(ops, Operator{Email: email, PasswordHash: hash})
	}
	return ops
}

// BindFlags registers command-line overrides for the most common settings.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port (overrides PORT)")
	fs.StringVar(&c.DatabaseURL, "db", c.DatabaseURL, "SQLite database path (overrides DATABASE_URL)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Log file path (overrides LOG_FILE)")
	fs.IntVar(&c.CacheTTLMS, "cache-ttl-ms", c.CacheTTLMS, "Listing cache TTL in milliseconds (overrides CACHE_TTL_MS)")
	fs.IntVar(&c.IngestConcurrency, "ingest-concurrency", c.IngestConcurrency, "Concurrent record writes per webhook call (overrides INGEST_CONCURRENCY)")
	fs.BoolVar(&c.DebugEndpoints, "debug-endpoints", c.DebugEndpoints, "Expose webhook dump/clear endpoints (overrides DEBUG_ENDPOINTS)")
	fs.StringVar(&c.N8NBaseURL, "n8n-url", c.N8NBaseURL, "n8n base URL (overrides N8N_BASE_URL)")
	fs.StringVar(&c.OutboundProxyURL, "proxy", c.OutboundProxyURL, "Proxy for upstream API calls (overrides OUTBOUND_PROXY_URL)")
	fs.StringVar(&c.CLIServer, "server", c.CLIServer, "Server URL for CLI mode (overrides FLOWWATCH_SERVER)")
}

// AuthEnabled reports whether dashboard sign-in is enforced.
func (c *Config) AuthEnabled() bool {
	return len(c.Operators) > 0
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
