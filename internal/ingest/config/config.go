package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Config struct {
	DBDriver      string
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPassword string
	MySQLDB       string
	SQLitePath    string

	ResultsPath string
	DelaysPath  string

	WindowMs      float64
	SuppressZero  bool
	AllowShortNew bool
	Workers       int

	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// Load reads .env (optional) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional
	return fromEnv()
}

// LoadFile is Load with an explicit env file, which must exist.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return fromEnv()
}

// LoadEnv uses LoadFile when path is set and Load otherwise.
func LoadEnv(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	return LoadFile(path)
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
		MySQLHost:      getenv("MYSQL_HOST", "127.0.0.1"),
		MySQLPort:      getenvInt("MYSQL_PORT", 3306),
		MySQLUser:      getenv("MYSQL_USER", "root"),
		MySQLPassword:  getenv("MYSQL_PASSWORD", ""),
		MySQLDB:        getenv("MYSQL_DB", "logstats"),
		SQLitePath:     getenv("SQLITE_PATH", "./logstats.db"),
		ResultsPath:    getenv("RESULTS_PATH", "./parsed-logs.jsonl"),
		DelaysPath:     getenv("DELAYS_PATH", ""),
		WindowMs:       getenvFloat("WINDOW_MS", 1000),
		SuppressZero:   getenvBool("SUPPRESS_ZERO", false),
		AllowShortNew:  getenvBool("ALLOW_SHORT_NEW", true),
		Workers:        getenvInt("WORKERS", 4),
		ConnectTimeout: time.Duration(getenvInt("DB_CONNECT_TIMEOUT", 5)) * time.Second,
		QueryTimeout:   time.Duration(getenvInt("DB_QUERY_TIMEOUT", 30)) * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMySQL, DriverSQLite, c.DBDriver)
	}
	if !(c.WindowMs > 0) {
		return fmt.Errorf("WINDOW_MS must be > 0, got %v", c.WindowMs)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return nil
}

// SourceKey names the database a run writes into, used for the ingest lock.
func (c *Config) SourceKey() string {
	if c.DBDriver == DriverMySQL {
		return fmt.Sprintf("%s:%d/%s", c.MySQLHost, c.MySQLPort, c.MySQLDB)
	}
	return c.SQLitePath
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
