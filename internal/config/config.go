package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/derive"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "derive.json"

	// DefaultScenarios is the default scenario directory.
	DefaultScenarios = "scenarios"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"

	// DefaultNamespace is the default metrics namespace.
	DefaultNamespace = "derive"

	// DefaultTracerName is the default OpenTelemetry tracer name.
	DefaultTracerName = "derive"
)

// Config represents the complete derive.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Engine contains settle pass bounds.
	Engine EngineConfig `json:"engine"`

	// Log contains logging configuration.
	Log LogConfig `json:"log"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics"`

	// Trace contains OpenTelemetry configuration.
	Trace TraceConfig `json:"trace"`

	// Paths contains directory configuration.
	Paths PathsConfig `json:"paths"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// EngineConfig contains settle pass bounds.
type EngineConfig struct {
	// MaxRecompute caps evaluations of one computed property per pass.
	MaxRecompute int `json:"maxRecompute,omitempty"`

	// MaxBatches caps batches drained by one data update.
	MaxBatches int `json:"maxBatches,omitempty"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	// Enabled records settle pass metrics and prints them after a run.
	Enabled bool `json:"enabled,omitempty"`

	// Namespace is the metrics namespace.
	Namespace string `json:"namespace,omitempty"`
}

// TraceConfig contains OpenTelemetry configuration.
type TraceConfig struct {
	// Enabled opens one span per settle pass.
	Enabled bool `json:"enabled,omitempty"`

	// TracerName is the tracer name.
	TracerName string `json:"tracerName,omitempty"`

	// IncludePaths adds path lists to spans.
	IncludePaths bool `json:"includePaths,omitempty"`
}

// PathsConfig contains directory configuration.
type PathsConfig struct {
	// Scenarios is the directory searched by 'derive run' without arguments.
	Scenarios string `json:"scenarios,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from the specified directory.
// It looks for derive.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigNotFound).
				WithDetail("No derive.json found in " + filepath.Dir(path))
		}
		return nil, errors.New(errors.CodeConfigSyntax).Wrap(err)
	}

	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		de := errors.New(errors.CodeConfigSyntax).
			Wrap(err).
			WithSuggestion("Check that derive.json is valid JSON and uses known keys")
		if line, col, ok := offsetPosition(data, err); ok {
			de.WithLocation(path, line, col)
		}
		return nil, de
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// offsetPosition converts the byte offset of a JSON decoding error into a
// 1-based line and column.
func offsetPosition(data []byte, err error) (line, col int, ok bool) {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case stderrors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return 0, 0, false
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	before := data[:offset]
	line = bytes.Count(before, []byte("\n")) + 1
	col = int(offset) - bytes.LastIndexByte(before, '\n')
	return line, max(col-1, 1), true
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file, or "." when the
// config was not loaded from a file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Engine.MaxRecompute == 0 {
		c.Engine.MaxRecompute = derive.DefaultMaxRecompute
	}
	if c.Engine.MaxBatches == 0 {
		c.Engine.MaxBatches = derive.DefaultMaxBatches
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Trace.TracerName == "" {
		c.Trace.TracerName = DefaultTracerName
	}
	if c.Paths.Scenarios == "" {
		c.Paths.Scenarios = DefaultScenarios
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(field, detail string) error {
		de := errors.New(errors.CodeConfigInvalid).WithSubject(field).WithDetail(detail)
		if c.configPath != "" {
			de.Location = &errors.Location{File: c.configPath}
		}
		return de
	}

	if c.Engine.MaxRecompute < 0 {
		return invalid("engine.maxRecompute", "maxRecompute must be positive")
	}
	if c.Engine.MaxBatches < 0 {
		return invalid("engine.maxBatches", "maxBatches must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", fmt.Sprintf("unknown log format %q (want text or json)", c.Log.Format))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.Log.Level)
	return level
}

// EngineOptions returns the component options for the engine bounds.
func (c *Config) EngineOptions() []derive.Option {
	return []derive.Option{
		derive.WithMaxRecompute(c.Engine.MaxRecompute),
		derive.WithMaxBatches(c.Engine.MaxBatches),
	}
}

// ScenariosPath returns the absolute path to the scenario directory.
func (c *Config) ScenariosPath() string {
	if filepath.IsAbs(c.Paths.Scenarios) {
		return c.Paths.Scenarios
	}
	return filepath.Join(c.Dir(), c.Paths.Scenarios)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing derive.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeConfigNotFound).
				WithDetail("No derive.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or the nearest parent holding derive.json.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}
	return Load(root)
}
