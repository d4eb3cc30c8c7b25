package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

// Supported store backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

type Config struct {
	Store    Store    `yaml:"store"`
	Log      Log      `yaml:"log"`
	Defaults Defaults `yaml:"defaults"`
}

type Store struct {
	Backend  string   `yaml:"backend"`
	Supabase Supabase `yaml:"supabase"`
	Postgres string   `yaml:"postgres"`
	MySQL    string   `yaml:"mysql"`
	Mongo    Mongo    `yaml:"mongo"`
}

type Supabase struct {
	URL    string `yaml:"url"`
	Key    string `yaml:"key"`
	Schema string `yaml:"schema"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Defaults struct {
	ListLimit         int `yaml:"list_limit"`
	LowStockThreshold int `yaml:"low_stock_threshold"`
}

func defaults() *Config {
	return &Config{
		Store: Store{
			Backend:  BackendSupabase,
			Supabase: Supabase{Schema: "public"},
			Mongo:    Mongo{Database: "retail"},
		},
		Log: Log{
			Level:  "warn",
			Format: "console",
		},
		Defaults: Defaults{
			ListLimit:         100,
			LowStockThreshold: 5,
		},
	}
}

// LoadConfig reads the YAML file at path, then applies environment overrides.
// A .env file in the working directory is loaded first if present. A missing
// config file is not an error: defaults plus environment are used instead.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	config := defaults()

	if path == "" {
		path = getEnv("RETAIL_CONFIG", DefaultPath)
	}

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	config.applyEnv()
	config.Store.Backend = NormalizeBackend(config.Store.Backend)
	return config, nil
}

// NormalizeBackend folds a backend name from any source to its canonical form.
func NormalizeBackend(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (c *Config) applyEnv() {
	c.Store.Backend = getEnv("RETAIL_BACKEND", c.Store.Backend)
	c.Store.Supabase.URL = getEnv("SUPABASE_URL", c.Store.Supabase.URL)
	c.Store.Supabase.Key = getEnv("SUPABASE_KEY", c.Store.Supabase.Key)
	c.Store.Postgres = getEnv("POSTGRES_DSN", c.Store.Postgres)
	c.Store.MySQL = getEnv("MYSQL_DSN", c.Store.MySQL)
	c.Store.Mongo.URI = getEnv("MONGO_URI", c.Store.Mongo.URI)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate checks that the selected backend is known and has its connection settings.
func (c *Config) Validate() error {
	s := c.Store
	switch s.Backend {
	case BackendSupabase:
		if s.Supabase.URL == "" || s.Supabase.Key == "" {
			return errors.New("supabase backend requires store.supabase.url and store.supabase.key (SUPABASE_URL, SUPABASE_KEY)")
		}
	case BackendPostgres:
		if s.Postgres == "" {
			return errors.New("postgres backend requires store.postgres (POSTGRES_DSN)")
		}
	case BackendMySQL:
		if s.MySQL == "" {
			return errors.New("mysql backend requires store.mysql (MYSQL_DSN)")
		}
	case BackendMongo:
		if s.Mongo.URI == "" || s.Mongo.Database == "" {
			return errors.New("mongo backend requires store.mongo.uri and store.mongo.database")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported store backend: %q", s.Backend)
	}

	if c.Defaults.ListLimit <= 0 {
		return fmt.Errorf("defaults.list_limit must be positive, got %d", c.Defaults.ListLimit)
	}
	if c.Defaults.LowStockThreshold < 0 {
		return fmt.Errorf("defaults.low_stock_threshold must not be negative, got %d", c.Defaults.LowStockThreshold)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
