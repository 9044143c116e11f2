package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/parliament/internal/ledger"
)

const (
	DefaultListenAddr       = ":8080"
	DefaultIdempotencyCache = 1024
	DefaultLogLevel         = "info"
)

type Config struct {
	ListenAddr  string            `yaml:"listen_addr"`
	BaseURL     string            `yaml:"public_base_url"`
	DB          DBConfig          `yaml:"db"`
	RulesPath   string            `yaml:"rules_path"`
	SigningKey  SigningKeyConfig  `yaml:"signing_key"`
	Engine      EngineConfig      `yaml:"engine"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Log         LogConfig         `yaml:"log"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SigningKeyConfig struct {
	KeyID string `yaml:"key_id"`
	// PrivateKeyPath may be empty in development; an ephemeral key is
	// generated at startup.
	PrivateKeyPath string `yaml:"private_key_path"`
}

type EngineConfig struct {
	Parallel bool `yaml:"parallel"`
}

type IdempotencyConfig struct {
	CacheSize int `yaml:"cache_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:  DefaultListenAddr,
		DB:          DBConfig{Driver: string(ledger.DBMemory)},
		SigningKey:  SigningKeyConfig{KeyID: "dev"},
		Idempotency: IdempotencyConfig{CacheSize: DefaultIdempotencyCache},
		Log:         LogConfig{Level: DefaultLogLevel},
	}
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from PARLIAMENT_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("PARLIAMENT_LISTEN_ADDR"); ok && v != "" {
		c.ListenAddr = v
	}
	if v, ok := lookup("PARLIAMENT_PUBLIC_BASE_URL"); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup("PARLIAMENT_DB_DRIVER"); ok && v != "" {
		c.DB.Driver = v
	}
	if v, ok := lookup("PARLIAMENT_DB_DSN"); ok && v != "" {
		c.DB.DSN = v
	}
	if v, ok := lookup("PARLIAMENT_RULES_PATH"); ok && v != "" {
		c.RulesPath = v
	}
	if v, ok := lookup("PARLIAMENT_SIGNING_KEY_ID"); ok && v != "" {
		c.SigningKey.KeyID = v
	}
	if v, ok := lookup("PARLIAMENT_SIGNING_KEY_PATH"); ok && v != "" {
		c.SigningKey.PrivateKeyPath = v
	}
	if v, ok := lookup("PARLIAMENT_ENGINE_PARALLEL"); ok && v != "" {
		parallel, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PARLIAMENT_ENGINE_PARALLEL: %w", err)
		}
		c.Engine.Parallel = parallel
	}
	if v, ok := lookup("PARLIAMENT_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	driver := ledger.DBDriver(c.DB.Driver)
	if c.DB.Driver == "" {
		driver = ledger.DBMemory
	}
	if !driver.Valid() {
		return fmt.Errorf("unsupported db.driver: %s", c.DB.Driver)
	}
	if driver != ledger.DBMemory && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver=%s", driver)
	}
	if c.SigningKey.KeyID == "" {
		return fmt.Errorf("signing_key.key_id is required")
	}
	if c.Idempotency.CacheSize < 0 {
		return fmt.Errorf("idempotency.cache_size must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log.level: %s", c.Log.Level)
	}
	return nil
}
