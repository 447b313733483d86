// Package config loads the application configuration from YAML, an optional
// .env file and PDFSIGN_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrUnexpectedField      = errors.New("unexpected field in configuration")
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PDFSIGN_"

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConfigurationError
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// SigningConfig contains signing defaults applied to every request.
type SigningConfig struct {
	// SignatureSize is the number of bytes reserved for the CMS object.
	SignatureSize int `yaml:"signature-size" json:"signature_size,omitempty"`

	// DigestAlgorithm is sha256, sha384 or sha512.
	DigestAlgorithm string `yaml:"digest-algorithm" json:"digest_algorithm,omitempty"`

	// Width and Height are the default widget size in points.
	Width  float64 `yaml:"width" json:"width,omitempty"`
	Height float64 `yaml:"height" json:"height,omitempty"`

	// Position is the default widget position.
	Position string `yaml:"position" json:"position,omitempty"`

	// FontSize is the appearance text size in points.
	FontSize float64 `yaml:"font-size" json:"font_size,omitempty"`

	// WorkDir holds per-operation workspaces. Empty means the system temp dir.
	WorkDir string `yaml:"work-dir" json:"work_dir,omitempty"`

	// Application is written to the signature build properties.
	Application string `yaml:"application" json:"application,omitempty"`
}

// SetDefaults sets default values for signing configuration.
func (c *SigningConfig) SetDefaults() {
	if c.SignatureSize == 0 {
		c.SignatureSize = 8192
	}
	if c.DigestAlgorithm == "" {
		c.DigestAlgorithm = "sha256"
	}
	if c.Width == 0 {
		c.Width = 200
	}
	if c.Height == 0 {
		c.Height = 100
	}
	if c.Position == "" {
		c.Position = "bottomleft"
	}
	if c.FontSize == 0 {
		c.FontSize = 10
	}
	if c.Application == "" {
		c.Application = "pdfsign"
	}
}

// Validate validates the signing configuration.
func (c *SigningConfig) Validate() error {
	if c.SignatureSize < 1024 || c.SignatureSize > 1<<20 {
		return NewConfigError("signing.signature-size", "must be between 1024 and 1048576 bytes")
	}
	switch strings.ToLower(strings.ReplaceAll(c.DigestAlgorithm, "-", "")) {
	case "sha256", "sha384", "sha512":
	default:
		return NewConfigError("signing.digest-algorithm", fmt.Sprintf("unsupported algorithm %q", c.DigestAlgorithm))
	}
	if c.Width < 0 || c.Height < 0 {
		return NewConfigError("signing.width", "widget size must not be negative")
	}
	return nil
}

// S3Config contains configuration for the S3 storage backend.
type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region,omitempty"`
	Endpoint        string `yaml:"endpoint" json:"endpoint,omitempty"`
	UsePathStyle    bool   `yaml:"use-path-style" json:"use_path_style,omitempty"`
	AccessKeyID     string `yaml:"access-key-id" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret-access-key" json:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session-token" json:"session_token,omitempty"`
}

// StorageConfig selects the content store.
type StorageConfig struct {
	// Backend is "fs" or "s3".
	Backend string `yaml:"backend" json:"backend,omitempty"`

	// Root is the directory served by the fs backend.
	Root string `yaml:"root" json:"root,omitempty"`

	S3 *S3Config `yaml:"s3" json:"s3,omitempty"`
}

// SetDefaults sets default values for storage configuration.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "fs"
	}
	if c.Backend == "fs" && c.Root == "" {
		c.Root = "."
	}
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "fs":
		if c.Root == "" {
			return NewConfigError("storage.root", "required field is missing")
		}
	case "s3":
		if c.S3 == nil || c.S3.Bucket == "" {
			return &ConfigError{Field: "storage.s3.bucket", Message: "required field is missing", Err: ErrMissingRequiredField}
		}
	default:
		return NewConfigError("storage.backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}
	return nil
}

// MetadataConfig configures the SQLite metadata sink.
type MetadataConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path,omitempty"`
}

// SetDefaults sets default values for metadata configuration.
func (c *MetadataConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "pdfsign.db"
	}
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Writer opens the configured output. The returned closer is a no-op for
// stdout and stderr.
func (c *LoggingConfig) Writer() (io.Writer, func() error, error) {
	switch c.Output {
	case "", "stderr":
		return os.Stderr, func() error { return nil }, nil
	case "stdout":
		return os.Stdout, func() error { return nil }, nil
	default:
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log output: %w", err)
		}
		return f, f.Close, nil
	}
}

// MetricsConfig configures Prometheus metrics export.
type MetricsConfig struct {
	// Textfile receives the metrics after each CLI run when set.
	Textfile string `yaml:"textfile" json:"textfile,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Exporter is "none" or "stdout".
	Exporter     string  `yaml:"exporter" json:"exporter,omitempty"`
	SamplingRate float64 `yaml:"sampling-rate" json:"sampling_rate,omitempty"`
}

// SetDefaults sets default values for tracing configuration.
func (c *TracingConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = "none"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1
	}
}

// ValidationConfig contains validation configuration.
type ValidationConfig struct {
	// TrustAnchors contains paths to trust anchor certificate files.
	TrustAnchors []string `yaml:"trust-anchors" json:"trust_anchors,omitempty"`

	// AllowExpired accepts signer certificates outside their validity.
	AllowExpired bool `yaml:"allow-expired" json:"allow_expired,omitempty"`
}

// AppConfig contains the complete application configuration.
type AppConfig struct {
	Signing    *SigningConfig    `yaml:"signing" json:"signing,omitempty"`
	Storage    *StorageConfig    `yaml:"storage" json:"storage,omitempty"`
	Metadata   *MetadataConfig   `yaml:"metadata" json:"metadata,omitempty"`
	Logging    *LoggingConfig    `yaml:"logging" json:"logging,omitempty"`
	Metrics    *MetricsConfig    `yaml:"metrics" json:"metrics,omitempty"`
	Tracing    *TracingConfig    `yaml:"tracing" json:"tracing,omitempty"`
	Validation *ValidationConfig `yaml:"validation" json:"validation,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	c := &AppConfig{}
	c.SetDefaults()
	return c
}

// SetDefaults fills nil sections and their defaults.
func (c *AppConfig) SetDefaults() {
	if c.Signing == nil {
		c.Signing = &SigningConfig{}
	}
	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if c.Metadata == nil {
		c.Metadata = &MetadataConfig{}
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	if c.Tracing == nil {
		c.Tracing = &TracingConfig{}
	}
	if c.Validation == nil {
		c.Validation = &ValidationConfig{}
	}
	c.Signing.SetDefaults()
	c.Storage.SetDefaults()
	c.Metadata.SetDefaults()
	c.Logging.SetDefaults()
	c.Tracing.SetDefaults()
}

// Validate validates every section.
func (c *AppConfig) Validate() error {
	if err := c.Signing.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	switch c.Tracing.Exporter {
	case "none", "stdout":
	default:
		return NewConfigError("tracing.exporter", fmt.Sprintf("unknown exporter %q", c.Tracing.Exporter))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return NewConfigError("tracing.sampling-rate", "must be between 0 and 1")
	}
	return nil
}

// ParseConfig parses configuration from YAML data. Unknown keys are rejected.
// Defaults are applied but environment overrides are not.
func ParseConfig(data []byte) (*AppConfig, error) {
	var config AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedField, err)
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.SetDefaults()
	return &config, nil
}

// LoadAppConfig loads the configuration. An empty filename yields the
// defaults. A .env file next to the working directory, when present, is
// loaded first; environment overrides are applied before validation.
func LoadAppConfig(filename string) (*AppConfig, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	config := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if config, err = ParseConfig(data); err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from PDFSIGN_* variables found through lookup.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	c.SetDefaults()

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &ConfigError{Field: EnvPrefix + name, Message: "not an integer", Err: err}
			}
			*dst = n
		}
		return nil
	}
	boolean := func(name string, dst *bool) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return &ConfigError{Field: EnvPrefix + name, Message: "not a boolean", Err: err}
			}
			*dst = b
		}
		return nil
	}

	if err := integer("SIGNATURE_SIZE", &c.Signing.SignatureSize); err != nil {
		return err
	}
	str("DIGEST_ALGORITHM", &c.Signing.DigestAlgorithm)
	str("WORK_DIR", &c.Signing.WorkDir)

	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("STORAGE_ROOT", &c.Storage.Root)
	if _, ok := lookup(EnvPrefix + "S3_BUCKET"); ok && c.Storage.S3 == nil {
		c.Storage.S3 = &S3Config{}
	}
	if c.Storage.S3 != nil {
		str("S3_BUCKET", &c.Storage.S3.Bucket)
		str("S3_REGION", &c.Storage.S3.Region)
		str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
		str("S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
		str("S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
		if err := boolean("S3_USE_PATH_STYLE", &c.Storage.S3.UsePathStyle); err != nil {
			return err
		}
	}

	if err := boolean("METADATA_ENABLED", &c.Metadata.Enabled); err != nil {
		return err
	}
	str("METADATA_PATH", &c.Metadata.Path)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_OUTPUT", &c.Logging.Output)

	str("METRICS_TEXTFILE", &c.Metrics.Textfile)
	str("TRACING_EXPORTER", &c.Tracing.Exporter)
	return nil
}
