package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers understood by the importer.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverPebble   = "pebble"
)

type Config struct {
	Import   ImportConfig   `mapstructure:"import"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Bolt     BoltConfig     `mapstructure:"bolt"`
	Pebble   PebbleConfig   `mapstructure:"pebble"`
	Views    ViewsConfig    `mapstructure:"views"`
	URLs     URLsConfig     `mapstructure:"urls"`
	Log      LogConfig      `mapstructure:"log"`
}

type ImportConfig struct {
	Input        string `mapstructure:"input"`
	Timezone     string `mapstructure:"timezone"`
	SeedRegistry bool   `mapstructure:"seed_registry"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

type PebbleConfig struct {
	Path string `mapstructure:"path"`
}

type ViewsConfig struct {
	// File overrides the built-in index definitions.
	File string `mapstructure:"file"`
}

type URLsConfig struct {
	Base string `mapstructure:"base"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Location returns the zone message dates are read in. An empty timezone
// means the local zone.
func (c ImportConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid import.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	sslMode := "disable"
	if mode := u.Query().Get("sslmode"); mode != "" {
		sslMode = mode
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	}, nil
}

// ApplyDestination points the storage section at dest, given on the command
// line as a postgres:// URL, "bolt:<file>", a *.db file, "pebble:<dir>" or
// "memory".
func (c *Config) ApplyDestination(dest string) error {
	switch {
	case dest == "":
		return nil
	case dest == DriverMemory:
		c.Storage.Driver = DriverMemory
	case strings.HasPrefix(dest, "postgres://"), strings.HasPrefix(dest, "postgresql://"):
		db, err := parseDatabaseURL(dest)
		if err != nil {
			return fmt.Errorf("failed to parse destination URL: %w", err)
		}
		c.Storage.Driver = DriverPostgres
		c.Database = db
	case strings.HasPrefix(dest, "bolt:"):
		c.Storage.Driver = DriverBolt
		c.Bolt.Path = strings.TrimPrefix(dest, "bolt:")
	case strings.HasPrefix(dest, "pebble:"):
		c.Storage.Driver = DriverPebble
		c.Pebble.Path = strings.TrimPrefix(dest, "pebble:")
	case filepath.Ext(dest) == ".db":
		c.Storage.Driver = DriverBolt
		c.Bolt.Path = dest
	default:
		return fmt.Errorf("unrecognized destination %q", dest)
	}
	return nil
}

// Validate checks that the selected driver has what it needs.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DBName == "" {
			return errors.New("database.dbname is required for postgres storage")
		}
	case DriverBolt:
		if c.Bolt.Path == "" {
			return errors.New("bolt.path is required for bolt storage")
		}
	case DriverPebble:
		if c.Pebble.Path == "" {
			return errors.New("pebble.path is required for pebble storage")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	_, err := c.Import.Location()
	return err
}

// LoadConfig reads defaults, the optional config file at path and the
// environment. A missing file at path is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("import.input", "")
	v.SetDefault("import.timezone", "Local")
	v.SetDefault("import.seed_registry", false)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "cforum")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("bolt.path", "threads.db")
	v.SetDefault("pebble.path", "threads.pebble")
	v.SetDefault("views.file", "")
	v.SetDefault("urls.base", "http://localhost")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	// Enable environment variable support, e.g. STORAGE_DRIVER for storage.driver
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
		config.Storage.Driver = DriverPostgres
	}

	return &config, nil
}
