package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pos_ledger/internal/register"
)

// Storage drivers accepted by storage.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the application's configuration structure.
type Config struct {
	HTTPAddress string  `mapstructure:"http-address"`
	LogLevel    string  `mapstructure:"log-level"`
	Timezone    string  `mapstructure:"timezone"`
	VendorsFile string  `mapstructure:"vendors-file"`
	Storage     Storage `mapstructure:"storage"`
	Ledger      Ledger  `mapstructure:"ledger"`
}

type Storage struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Ledger struct {
	Aggregation string `mapstructure:"aggregation"`
}

// field: default value
var defaults = map[string]any{
	"http-address":       ":8081",
	"log-level":          "info",
	"timezone":           "Local",
	"vendors-file":       "",
	"storage.driver":     DriverSQLite,
	"storage.dsn":        "pos_ledger.db",
	"ledger.aggregation": "incremental",
}

// Load reads configuration from an optional .env file, an optional config
// file and POS_* environment variables. Environment variables take
// precedence over the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != DriverMemory && c.Storage.DSN == "" {
		return errors.New("missing required config field: storage.dsn")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type vendorsFile struct {
	Vendors []register.VendorSeed `yaml:"vendors"`
}

// LoadVendors reads the vendor seed file. An empty path yields no vendors.
func LoadVendors(path string) ([]register.VendorSeed, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read vendors file: %w", err)
	}
	var f vendorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("could not parse vendors file: %w", err)
	}
	return f.Vendors, nil
}
