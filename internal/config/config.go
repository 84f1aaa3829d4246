// Package config loads the harness's run configuration: CLI flags mirrored
// one-to-one by an optional JSON/YAML file, read through viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LogLevel is the `--log-level trace|debug|info|warn|error|off` flag value.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelOff   LogLevel = "off"
)

// Config mirrors the CLI flag surface one-to-one via `mapstructure` tags.
type Config struct {
	UserCount            uint64        `mapstructure:"user_count"`
	UsersPerSec          uint64        `mapstructure:"users_per_sec"`
	Runtime              time.Duration `mapstructure:"runtime"`
	UpdateIntervalInSecs uint64        `mapstructure:"update_interval_in_secs"`

	NoPrintToStdout bool     `mapstructure:"no_print_to_stdout"`
	NoLogToStdout   bool     `mapstructure:"no_log_to_stdout"`
	LogLevel        LogLevel `mapstructure:"log_level"`
	LogFile         string   `mapstructure:"log_file"`

	CurrentResultsFile             string `mapstructure:"current_results_file"`
	ResultsHistoryFile             string `mapstructure:"results_history_file"`
	SummaryFile                    string `mapstructure:"summary_file"`
	PrometheusCurrentMetricsFile   string `mapstructure:"prometheus_current_metrics_file"`
	PrometheusMetricsHistoryFolder string `mapstructure:"prometheus_metrics_history_folder"`

	ServerAddress string `mapstructure:"server_address"`

	AdditionalArgs []string `mapstructure:"additional_args"`
}

// UpdateInterval returns the update interval as a time.Duration, falling
// back to the default of 2 seconds when unset.
func (c *Config) UpdateInterval() time.Duration {
	if c.UpdateIntervalInSecs == 0 {
		return 2 * time.Second
	}
	return time.Duration(c.UpdateIntervalInSecs) * time.Second
}

// FormatError is the typed config-loading error naming which source format
// failed to load (a read failure such as a missing file, or a parse
// failure), rather than collapsing JSON/YAML/TOML failures into one opaque
// error kind. Carrying the path and format alongside the
// cause lets the CLI print a more actionable message than a bare wrapped
// error would.
type FormatError struct {
	Path   string
	Format string
	Cause  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("failed to parse %s config %q: %v", e.Format, e.Path, e.Cause)
}

func (e *FormatError) Unwrap() error { return e.Cause }

// detectFormat maps a file extension to the viper config type.
func detectFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	case ".toml":
		return "toml", nil
	default:
		return "", fmt.Errorf("unrecognized config file extension %q", ext)
	}
}

// Load reads defaults, then (if path is non-empty) overlays a config file
// detected by extension, then overlays environment variables and returns the
// merged Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOADGEN")
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		format, err := detectFormat(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
		v.SetConfigType(format)
		if err := v.ReadInConfig(); err != nil {
			return nil, &FormatError{Path: path, Format: format, Cause: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = LogLevel(v.GetString("log_level"))
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("update_interval_in_secs", 2)
	v.SetDefault("log_level", "info")
}
