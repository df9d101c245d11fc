package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	StoreDriver       string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	SQLitePath        string        `mapstructure:"SQLITE_PATH"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	TableName         string        `mapstructure:"TABLE_NAME"`
	CacheTTL          time.Duration `mapstructure:"CACHE_TTL"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	LoginUser         string        `mapstructure:"LOGIN_USER"`
	LoginPassword     string        `mapstructure:"LOGIN_PASSWORD"`
	SessionKey        string        `mapstructure:"SESSION_KEY"`
	ExportS3Bucket    string        `mapstructure:"EXPORT_S3_BUCKET"`
	ExportS3Region    string        `mapstructure:"EXPORT_S3_REGION"`
	ExportS3Endpoint  string        `mapstructure:"EXPORT_S3_ENDPOINT"`
	ExportS3PathStyle bool          `mapstructure:"EXPORT_S3_PATH_STYLE"`
	ExportS3Prefix    string        `mapstructure:"EXPORT_S3_PREFIX"`
}

var envKeys = []string{
	"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "TABLE_NAME", "CACHE_TTL", "REQUEST_TIMEOUT",
	"BODY_LIMIT", "LOGIN_USER", "LOGIN_PASSWORD", "SESSION_KEY",
	"EXPORT_S3_BUCKET", "EXPORT_S3_REGION", "EXPORT_S3_ENDPOINT",
	"EXPORT_S3_PATH_STYLE", "EXPORT_S3_PREFIX",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "patients.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("TABLE_NAME", "patients")
	v.SetDefault("CACHE_TTL", "60s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("LOGIN_USER", "admin")
	v.SetDefault("LOGIN_PASSWORD", "password")
	v.SetDefault("EXPORT_S3_REGION", "us-east-1")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() && cfg.SessionKey == "" {
		log.Println("WARNING: SESSION_KEY not set; sessions are signed with a random key and will not survive a restart.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ExportToS3 reports whether CSV snapshots should be uploaded after saves.
func (c *Config) ExportToS3() bool {
	return c.ExportS3Bucket != ""
}

// Validate checks that the selected store driver has what it needs. In
// production a SESSION_KEY is required so that sessions survive restarts and
// cannot be forged with a guessed key.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}

	if c.TableName == "" {
		return fmt.Errorf("TABLE_NAME must not be empty")
	}

	if c.IsProduction() && c.SessionKey == "" {
		return fmt.Errorf("SESSION_KEY is required in production")
	}
	if c.SessionKey != "" && len(c.SessionKey) < 32 {
		return fmt.Errorf("SESSION_KEY must be at least 32 characters, got %d", len(c.SessionKey))
	}

	return nil
}
