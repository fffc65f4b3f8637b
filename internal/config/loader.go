// Package config loads tabimport settings from config.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/tabimport/internal/db"
)

// EnvPrefix prefixes every environment override, e.g. TABIMPORT_DATABASE_HOST.
const EnvPrefix = "TABIMPORT"

// ImportConfig holds the defaults applied to every import run.
type ImportConfig struct {
	BatchSize          int     `mapstructure:"batch_size"`
	MaxErrorPercentage float64 `mapstructure:"max_error_percentage"`
	MaxStoredErrors    int     `mapstructure:"max_stored_errors"`
	GenerateAccounting bool    `mapstructure:"generate_accounting"`
}

// DefaultImportConfig returns the built-in import defaults.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		BatchSize:          500,
		MaxErrorPercentage: 10,
		MaxStoredErrors:    1000,
		GenerateAccounting: true,
	}
}

// LogConfig selects the log level and an optional JSON log file.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Import   ImportConfig
	Log      LogConfig
	Server   ServerConfig
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Import:   DefaultImportConfig(),
		Log:      LogConfig{Level: "info"},
		Server:   ServerConfig{Addr: ":8080", AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

// Load reads config.yaml from path (a directory or a file), then ./ and
// ./config when path is empty. A missing file is not an error; defaults and
// environment variables apply.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if path != "" {
			v.AddConfigPath(path)
		}
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment")
	} else {
		slog.Debug("loaded config", "file", v.ConfigFileUsed())
	}

	cfg.Database.Host = v.GetString("database.host")
	cfg.Database.Port = v.GetInt("database.port")
	cfg.Database.User = v.GetString("database.user")
	cfg.Database.Password = v.GetString("database.password")
	cfg.Database.DBName = v.GetString("database.dbname")
	cfg.Database.SSLMode = v.GetString("database.sslmode")
	cfg.Database.MaxConns = v.GetInt32("database.max_conns")

	cfg.Import.BatchSize = v.GetInt("import.batch_size")
	cfg.Import.MaxErrorPercentage = v.GetFloat64("import.max_error_percentage")
	cfg.Import.MaxStoredErrors = v.GetInt("import.max_stored_errors")
	cfg.Import.GenerateAccounting = v.GetBool("import.generate_accounting")

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.File = v.GetString("log.file")

	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")

	if cfg.Import.BatchSize <= 0 {
		return cfg, fmt.Errorf("import.batch_size must be positive, got %d", cfg.Import.BatchSize)
	}
	if cfg.Import.MaxErrorPercentage < 0 || cfg.Import.MaxErrorPercentage > 100 {
		return cfg, fmt.Errorf("import.max_error_percentage must be within 0..100, got %v", cfg.Import.MaxErrorPercentage)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)

	v.SetDefault("import.batch_size", cfg.Import.BatchSize)
	v.SetDefault("import.max_error_percentage", cfg.Import.MaxErrorPercentage)
	v.SetDefault("import.max_stored_errors", cfg.Import.MaxStoredErrors)
	v.SetDefault("import.generate_accounting", cfg.Import.GenerateAccounting)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
}
