// =============================================================================
// NFS-e Tax Audit - Configuration Module
// =============================================================================
//
// This module loads the main application configuration. Rule tables are a
// separate, versioned document handled by the rules package.
//
// CONFIGURATION SOURCES (later wins):
//   1. Built-in defaults
//   2. Main config file (config.yaml), optional when left at its default path
//   3. Environment variables prefixed NFSE_, nested keys joined by "_"
//      Example: NFSE_LOG_LEVEL=debug, NFSE_SERVER_ADDR=:9090
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/ginjaninja78/nfse-tax-audit/internal/export"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NFSE"

// DefaultConfigFile is the config path used when --config is not given.
const DefaultConfigFile = "config.yaml"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned by `process` when no paths are given.
	// Default: "./input"
	InputDir string `mapstructure:"input_dir"`

	// OutputDir receives exports and summary logs.
	// Default: "./output"
	OutputDir string `mapstructure:"output_dir"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputName is the export file name pattern.
	// Placeholders: {timestamp}, {date}, {uuid}, {label}, {ext}
	// Default: "auditoria_{timestamp}.{ext}"
	OutputName string `mapstructure:"output_name"`

	// OutputFormat is one of xlsx, csv, xml, json.
	// Default: "xlsx"
	OutputFormat string `mapstructure:"output_format"`

	// CSVDelimiter is a single character, or "tab".
	// Default: ";"
	CSVDelimiter string `mapstructure:"csv_delimiter"`

	// =========================================================================
	// NORMALIZATION SETTINGS
	// =========================================================================

	// RulesFile is a YAML or XLSX rule table. Empty uses the built-in table.
	RulesFile string `mapstructure:"rules_file"`

	// DecimalComma also accepts money written as "1.234,56".
	// Default: false
	DecimalComma bool `mapstructure:"decimal_comma"`

	// MaxConcurrency is the number of documents normalized in parallel.
	// Default: 1
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// =========================================================================
	// ARCHIVE SETTINGS
	// =========================================================================

	// ZipCodePage decodes archive entry names not flagged as UTF-8.
	// Example: "IBM850", "windows-1252"
	ZipCodePage string `mapstructure:"zip_codepage"`

	// MaxArchiveDepth bounds archive nesting.
	// Default: 8
	MaxArchiveDepth int `mapstructure:"max_archive_depth"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is "console" for humans or "json" for collectors.
	// Default: "console"
	LogFormat string `mapstructure:"log_format"`

	// =========================================================================
	// SERVER SETTINGS
	// =========================================================================

	Server ServerConfig `mapstructure:"server"`
}

// ServerConfig holds the HTTP upload surface settings.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `mapstructure:"addr"`

	// MaxUploadMB caps the size of one multipart request.
	// Default: 64
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// =============================================================================
// CONFIGURATION LOADING
// =============================================================================

// LoadMainConfig loads the main configuration.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//   - required: When false, a missing file means "use defaults". Set it when
//     the user named the file explicitly.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed, or a value is invalid.
func LoadMainConfig(configPath string, required bool) (*MainConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
			if required || !missing {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg MainConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateMainConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key. Keys without a default are invisible to
// environment overrides, so each one is listed here.
func setDefaults(v *viper.Viper) {
	v.SetDefault("input_dir", "./input")
	v.SetDefault("output_dir", "./output")
	v.SetDefault("output_name", "auditoria_{timestamp}.{ext}")
	v.SetDefault("output_format", string(export.FormatXLSX))
	v.SetDefault("csv_delimiter", ";")
	v.SetDefault("rules_file", "")
	v.SetDefault("decimal_comma", false)
	v.SetDefault("max_concurrency", 1)
	v.SetDefault("zip_codepage", "")
	v.SetDefault("max_archive_depth", 8)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// validateMainConfig reports every invalid value at once.
func validateMainConfig(cfg *MainConfig) error {
	var errs error

	if _, err := export.ParseFormat(cfg.OutputFormat); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := export.ParseDelimiter(cfg.CSVDelimiter); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log_format must be console or json, got %q", cfg.LogFormat))
	}
	if cfg.MaxConcurrency < 1 {
		errs = multierr.Append(errs, fmt.Errorf("max_concurrency must be at least 1, got %d", cfg.MaxConcurrency))
	}
	if cfg.MaxArchiveDepth < 1 {
		errs = multierr.Append(errs, fmt.Errorf("max_archive_depth must be at least 1, got %d", cfg.MaxArchiveDepth))
	}
	if strings.TrimSpace(cfg.OutputName) == "" {
		errs = multierr.Append(errs, errors.New("output_name must not be empty"))
	}
	if cfg.Server.MaxUploadMB <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", cfg.Server.MaxUploadMB))
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("server.shutdown_timeout must be positive, got %s", cfg.Server.ShutdownTimeout))
	}
	return errs
}

// Format returns the parsed output format.
func (c *MainConfig) Format() export.Format {
	f, err := export.ParseFormat(c.OutputFormat)
	if err != nil {
		return export.FormatXLSX
	}
	return f
}

// ExportOptions builds export options from the configuration.
func (c *MainConfig) ExportOptions() export.Options {
	opts := export.DefaultOptions()
	if d, err := export.ParseDelimiter(c.CSVDelimiter); err == nil {
		opts.CSV.Delimiter = d
	}
	return opts
}
