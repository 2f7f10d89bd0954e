package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every configurable value for the tracker.
type Config struct {
	// Persistence
	DBPath string `mapstructure:"db_path"` // path to the SQLite file, e.g. "./data/prices.db"

	LogLevel string `mapstructure:"log_level"` // debug|info|warn|error

	// Collection
	Products       []string      `mapstructure:"products"`      // product page URLs
	ProductsFile   string        `mapstructure:"products_file"` // optional file with one URL per line
	Interval       time.Duration `mapstructure:"interval"`      // time between runs of the `run` command
	Workers        int           `mapstructure:"workers"`       // 0 means GOMAXPROCS
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Selectors      Selectors     `mapstructure:"selectors"`

	// Alerts
	NotifyTo string `mapstructure:"notify_to"` // recipient of new-minimum emails; empty disables alerts
	SMTP     SMTP   `mapstructure:"smtp"`

	MetricsAddr string `mapstructure:"metrics_addr"` // e.g. ":9102"; empty disables /metrics
}

// Selectors locate the product fields in the page markup.
type Selectors struct {
	Name           string `mapstructure:"name"`
	Price          string `mapstructure:"price"`
	CurrencySuffix string `mapstructure:"currency_suffix"`
}

// SMTP is the mail submission account used for alerts.
type SMTP struct {
	ServerAddress    string        `mapstructure:"server_address"`
	Port             int           `mapstructure:"port"`
	SenderAddress    string        `mapstructure:"sender_address"`
	SenderCredential string        `mapstructure:"sender_credential"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// Options controls where Load looks for configuration.
type Options struct {
	File    string // explicit config file; empty means ./configs/config.yaml if present
	EnvFile string // dotenv file; empty means ./.env if present
}

// Load reads configuration from (in decreasing priority):
//  1. environment variables (e.g. DB_PATH, SMTP_SENDER_CREDENTIAL), including
//     those set from a .env file
//  2. a yaml file (./configs/config.yaml or Options.File)
//  3. built-in defaults.
//
// It returns a fully populated *Config or an error.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // the default file is optional
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}

	if cfg.ProductsFile != "" {
		urls, err := ReadURLs(cfg.ProductsFile)
		if err != nil {
			return nil, err
		}
		cfg.Products = append(cfg.Products, urls...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "./data/prices.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("products", []string{})
	v.SetDefault("products_file", "")
	v.SetDefault("interval", time.Hour)
	v.SetDefault("workers", 0)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) "+
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/86.0.4240.111 Safari/537.36")
	v.SetDefault("selectors.name", "div.sc-1x6crnh-13.fXjZNH")
	v.SetDefault("selectors.price", "div.u7xnnm-4.iVazGO")
	v.SetDefault("selectors.currency_suffix", " zł")
	v.SetDefault("notify_to", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("smtp.server_address", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.sender_address", "")
	v.SetDefault("smtp.sender_credential", "")
	v.SetDefault("smtp.timeout", 30*time.Second)
}

// loadEnvFile exports the variables of a dotenv file into the process
// environment without overriding values that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load() // ./.env is optional
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// AlertsEnabled reports whether new-minimum emails should be sent.
func (c *Config) AlertsEnabled() bool {
	return c.NotifyTo != ""
}

// Validate checks the values that would otherwise fail late, mid-run.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers cannot be negative"))
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.Selectors.Name == "" || c.Selectors.Price == "" {
		errs = append(errs, errors.New("selectors.name and selectors.price must be set"))
	}
	if c.AlertsEnabled() {
		if c.SMTP.ServerAddress == "" || c.SMTP.SenderAddress == "" {
			errs = append(errs, errors.New("smtp.server_address and smtp.sender_address are required when notify_to is set"))
		}
	}
	return errors.Join(errs...)
}
