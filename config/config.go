// Package config loads fathom-etl settings from YAML files and FATHOM_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// YearPolicyName selects how "<Month> <day>" export dates get a year.
type YearPolicyName string

const (
	YearPolicyTransition     YearPolicyName = "transition"
	YearPolicyMonthThreshold YearPolicyName = "month_threshold"
)

// Default configuration values.
const (
	DefaultConfigDir    = ".fathom-etl"
	DefaultConfigFile   = "config.yaml"
	DefaultOutputDir    = "out"
	DefaultTimeout      = 10 * time.Minute
	DefaultConcurrency  = 4
	DefaultListenAddr   = ":8080"
	DefaultMaxBodyBytes = 10 << 20
	DefaultRedisChannel = "fathom-etl:events"
	DefaultPostgresPort = 5432
)

// PostgresConfig holds the message store connection settings. The password
// comes from the credentials store, never from this file.
type PostgresConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`

	// SSLMode is one of disable, require, verify-ca, verify-full (default: require).
	SSLMode string `yaml:"sslmode,omitempty"`

	// MaxConns caps the pool. Zero sizes it to the batch concurrency.
	MaxConns int `yaml:"max_conns,omitempty"`
}

// IsConfigured returns true if the required connection fields are set.
func (c *PostgresConfig) IsConfigured() bool {
	return c != nil && c.Host != "" && c.Database != "" && c.User != ""
}

// ConnectionString returns a pgx keyword/value connection string, or "" when
// the store is not configured.
func (c *PostgresConfig) ConnectionString(password string) string {
	if !c.IsConfigured() {
		return ""
	}
	port := c.Port
	if port == 0 {
		port = DefaultPostgresPort
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}
	conn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s", c.Host, port, c.Database, c.User, sslmode)
	if password != "" {
		conn += " password=" + quoteConnValue(password)
	}
	return conn
}

func quoteConnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// RedisConfig holds event publication settings.
type RedisConfig struct {
	Addr    string `yaml:"addr,omitempty"`
	DB      int    `yaml:"db,omitempty"`
	Channel string `yaml:"channel,omitempty"`
}

// IsConfigured returns true if an address is set.
func (c *RedisConfig) IsConfigured() bool {
	return c != nil && c.Addr != ""
}

// CassandraConfig holds the optional wide-row message sink settings.
type CassandraConfig struct {
	Hosts    []string `yaml:"hosts,omitempty"`
	Keyspace string   `yaml:"keyspace,omitempty"`
}

// IsConfigured returns true if hosts and keyspace are set.
func (c *CassandraConfig) IsConfigured() bool {
	return c != nil && len(c.Hosts) > 0 && c.Keyspace != ""
}

// HTTPConfig holds webhook intake server settings.
type HTTPConfig struct {
	ListenAddr   string `yaml:"listen_addr,omitempty"`
	MaxBodyBytes int64  `yaml:"max_body_bytes,omitempty"`
}

// Config holds the fathom-etl settings.
type Config struct {
	// RosterPath is the YAML or JSON speaker roster.
	RosterPath string `yaml:"roster_path,omitempty"`

	// OutputDir receives one JSONL file per transcript.
	OutputDir string `yaml:"output_dir"`

	// Compress writes .jsonl.gz instead of .jsonl.
	Compress bool `yaml:"compress,omitempty"`

	// Concurrency bounds the number of documents parsed at once.
	Concurrency int `yaml:"concurrency"`

	YearPolicy YearPolicyName `yaml:"year_policy"`

	// Timeout bounds a whole command run.
	Timeout time.Duration `yaml:"timeout"`

	OutputFormat OutputFormat `yaml:"output_format"`
	LogLevel     string       `yaml:"log_level,omitempty"`
	LogJSON      bool         `yaml:"log_json,omitempty"`
	Debug        bool         `yaml:"debug,omitempty"`

	Postgres  *PostgresConfig  `yaml:"postgres,omitempty"`
	Redis     *RedisConfig     `yaml:"redis,omitempty"`
	Cassandra *CassandraConfig `yaml:"cassandra,omitempty"`
	HTTP      HTTPConfig       `yaml:"http"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:    DefaultOutputDir,
		Concurrency:  DefaultConcurrency,
		YearPolicy:   YearPolicyTransition,
		Timeout:      DefaultTimeout,
		OutputFormat: OutputFormatText,
		HTTP: HTTPConfig{
			ListenAddr:   DefaultListenAddr,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
	}
}

// ConfigDir returns $FATHOM_CONFIG_DIR, or ~/.fathom-etl.
func ConfigDir() (string, error) {
	if dir := os.Getenv("FATHOM_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the default configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the default configuration file if it exists.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return load(path, false)
}

// LoadConfigFrom loads an explicitly named configuration file, which must exist.
func LoadConfigFrom(path string) (*Config, error) {
	return load(path, true)
}

// load applies, in order: defaults, the YAML file, FATHOM_* variables.
func load(path string, required bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !required:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func envBool(v string) bool {
	return v == "true" || v == "1"
}

// loadFromEnv overlays FATHOM_* environment variables onto cfg.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("FATHOM_ROSTER_PATH"); v != "" {
		cfg.RosterPath = v
	}
	if v := os.Getenv("FATHOM_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("FATHOM_COMPRESS"); v != "" {
		cfg.Compress = envBool(v)
	}
	if v := os.Getenv("FATHOM_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FATHOM_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}
	if v := os.Getenv("FATHOM_YEAR_POLICY"); v != "" {
		cfg.YearPolicy = YearPolicyName(v)
	}
	if v := os.Getenv("FATHOM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FATHOM_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("FATHOM_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if v := os.Getenv("FATHOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FATHOM_LOG_JSON"); v != "" {
		cfg.LogJSON = envBool(v)
	}
	if envBool(os.Getenv("FATHOM_DEBUG")) {
		cfg.Debug = true
	}
	if v := os.Getenv("FATHOM_HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}

	if err := loadPostgresFromEnv(cfg); err != nil {
		return err
	}
	if err := loadRedisFromEnv(cfg); err != nil {
		return err
	}
	loadCassandraFromEnv(cfg)
	return nil
}

func loadPostgresFromEnv(cfg *Config) error {
	host := os.Getenv("FATHOM_POSTGRES_HOST")
	database := os.Getenv("FATHOM_POSTGRES_DATABASE")
	user := os.Getenv("FATHOM_POSTGRES_USER")
	port := os.Getenv("FATHOM_POSTGRES_PORT")
	sslmode := os.Getenv("FATHOM_POSTGRES_SSLMODE")
	if host == "" && database == "" && user == "" && port == "" && sslmode == "" {
		return nil
	}

	if cfg.Postgres == nil {
		cfg.Postgres = &PostgresConfig{}
	}
	if host != "" {
		cfg.Postgres.Host = host
	}
	if database != "" {
		cfg.Postgres.Database = database
	}
	if user != "" {
		cfg.Postgres.User = user
	}
	if sslmode != "" {
		cfg.Postgres.SSLMode = sslmode
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("FATHOM_POSTGRES_PORT: %w", err)
		}
		cfg.Postgres.Port = p
	}
	return nil
}

func loadRedisFromEnv(cfg *Config) error {
	addr := os.Getenv("FATHOM_REDIS_ADDR")
	db := os.Getenv("FATHOM_REDIS_DB")
	channel := os.Getenv("FATHOM_REDIS_CHANNEL")
	if addr == "" && db == "" && channel == "" {
		return nil
	}

	if cfg.Redis == nil {
		cfg.Redis = &RedisConfig{}
	}
	if addr != "" {
		cfg.Redis.Addr = addr
	}
	if channel != "" {
		cfg.Redis.Channel = channel
	}
	if db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("FATHOM_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

func loadCassandraFromEnv(cfg *Config) {
	hosts := os.Getenv("FATHOM_CASSANDRA_HOSTS")
	keyspace := os.Getenv("FATHOM_CASSANDRA_KEYSPACE")
	if hosts == "" && keyspace == "" {
		return
	}

	if cfg.Cassandra == nil {
		cfg.Cassandra = &CassandraConfig{}
	}
	if hosts != "" {
		cfg.Cassandra.Hosts = nil
		for _, h := range strings.Split(hosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.Cassandra.Hosts = append(cfg.Cassandra.Hosts, h)
			}
		}
	}
	if keyspace != "" {
		cfg.Cassandra.Keyspace = keyspace
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text or json)", c.OutputFormat)
	}
	if _, err := c.HeaderPolicy(); err != nil {
		return err
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must not be negative")
	}
	return nil
}

// HeaderPolicy returns the year policy selected by YearPolicy.
func (c *Config) HeaderPolicy() (fathom.YearPolicy, error) {
	switch c.YearPolicy {
	case "", YearPolicyTransition:
		return fathom.DefaultYearPolicy, nil
	case YearPolicyMonthThreshold:
		return fathom.MonthThresholdPolicy{BaseYear: fathom.StartYear, FirstMonth: time.April}, nil
	default:
		return nil, fmt.Errorf("invalid year_policy: %q (must be transition or month_threshold)", c.YearPolicy)
	}
}

// RedisChannel returns the configured channel or the default.
func (c *Config) RedisChannel() string {
	if c.Redis != nil && c.Redis.Channel != "" {
		return c.Redis.Channel
	}
	return DefaultRedisChannel
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON:
		return true
	default:
		return false
	}
}

// SaveConfig writes cfg to the default configuration file.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
