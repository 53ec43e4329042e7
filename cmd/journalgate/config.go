package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/journalgate/internal/model"
)

const (
	defaultBindHost      = "0.0.0.0"
	defaultAPIPort       = model.DefaultGatewayPort
	defaultStoreBackend  = backendDuckDB
	defaultQueryTimeout  = model.DefaultQueryTimeout
	defaultMaxBodyBytes  = model.DefaultMaxBodyBytes
	defaultMaxSearchSize = model.DefaultMaxSearchSize
	defaultElasticAddr   = "http://localhost:9200"

	backendDuckDB  = "duckdb"
	backendElastic = "elasticsearch"

	modeProduction  = "production"
	modeDevelopment = "development"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Mode             string        `mapstructure:"mode" yaml:"mode"`
	APIPort          int           `mapstructure:"api-port" yaml:"api-port"`
	APIAddr          string        `mapstructure:"api-addr" yaml:"api-addr"`
	Index            string        `mapstructure:"index" yaml:"index"`
	Store            string        `mapstructure:"store" yaml:"store"`
	DBPath           string        `mapstructure:"db-path" yaml:"db-path"`
	ElasticAddresses []string      `mapstructure:"elastic-addresses" yaml:"elastic-addresses"`
	ElasticUsername  string        `mapstructure:"elastic-username" yaml:"elastic-username"`
	ElasticPassword  string        `mapstructure:"elastic-password" yaml:"elastic-password"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout" yaml:"query-timeout"`
	MaxBodyBytes     int64         `mapstructure:"max-body-bytes" yaml:"max-body-bytes"`
	MaxSearchSize    int           `mapstructure:"max-search-size" yaml:"max-search-size"`
	LogFile          string        `mapstructure:"log-file" yaml:"log-file"`
	ConfigPath       string        `mapstructure:"-" yaml:"-"` // not from config file
}

// Development reports whether error details may be sent to clients.
func (c appConfig) Development() bool {
	return c.Mode == modeDevelopment
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("JOURNALGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("mode", modeProduction)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("index", model.IndexName)
	v.SetDefault("store", defaultStoreBackend)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "journalgate", "journalgate.duckdb"))
	v.SetDefault("elastic-addresses", []string{defaultElasticAddr})
	v.SetDefault("elastic-username", "")
	v.SetDefault("elastic-password", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-body-bytes", defaultMaxBodyBytes)
	v.SetDefault("max-search-size", defaultMaxSearchSize)
	v.SetDefault("log-file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "journalgate", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	// Expand ~ in paths
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.LogFile = expandHome(cfg.LogFile, home)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func (c *appConfig) validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode != modeProduction && c.Mode != modeDevelopment {
		return fmt.Errorf("invalid mode: %q (want %s or %s)", c.Mode, modeProduction, modeDevelopment)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	switch c.Store {
	case backendDuckDB:
	case backendElastic:
		if len(c.ElasticAddresses) == 0 {
			return errors.New("elastic-addresses must be set for the elasticsearch store")
		}
	default:
		return fmt.Errorf("invalid store: %q (want %s or %s)", c.Store, backendDuckDB, backendElastic)
	}
	if c.Index == "" {
		return errors.New("index must be set")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid max-body-bytes: %d", c.MaxBodyBytes)
	}
	if c.MaxSearchSize <= 0 {
		return fmt.Errorf("invalid max-search-size: %d", c.MaxSearchSize)
	}
	return nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
