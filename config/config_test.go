package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("field", "message")
	if err.Field != "field" {
		t.Errorf("Expected field 'field', got '%s'", err.Field)
	}
	if err.Message != "message" {
		t.Errorf("Expected message 'message', got '%s'", err.Message)
	}

	expected := "config error in 'field': message"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
	if !errors.Is(err, ErrConfigurationError) {
		t.Error("Expected ConfigError to match ErrConfigurationError")
	}
}

func TestConfigErrorWithoutField(t *testing.T) {
	err := NewConfigError("", "general error")
	expected := "config error: general error"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Signing.SignatureSize != 8192 {
		t.Errorf("SignatureSize = %d, want 8192", cfg.Signing.SignatureSize)
	}
	if cfg.Signing.Width != 200 || cfg.Signing.Height != 100 {
		t.Errorf("widget size = %vx%v, want 200x100", cfg.Signing.Width, cfg.Signing.Height)
	}
	if cfg.Signing.DigestAlgorithm != "sha256" {
		t.Errorf("DigestAlgorithm = %q", cfg.Signing.DigestAlgorithm)
	}
	if cfg.Storage.Backend != "fs" || cfg.Storage.Root != "." {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stderr" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Tracing.Exporter != "none" {
		t.Errorf("tracing exporter = %q", cfg.Tracing.Exporter)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	yamlData := `
signing:
  signature-size: 16384
  digest-algorithm: sha512
  position: topright
storage:
  backend: s3
  s3:
    bucket: documents
    region: eu-west-1
    use-path-style: true
metadata:
  enabled: true
  path: /var/lib/pdfsign/meta.db
logging:
  level: debug
  format: json
validation:
  trust-anchors:
    - /etc/pdfsign/root.pem
`
	cfg, err := ParseConfig([]byte(yamlData))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.Signing.SignatureSize != 16384 {
		t.Errorf("SignatureSize = %d", cfg.Signing.SignatureSize)
	}
	if cfg.Signing.Width != 200 {
		t.Errorf("Width default not applied: %v", cfg.Signing.Width)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3.Bucket != "documents" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("storage = %+v / %+v", cfg.Storage, cfg.Storage.S3)
	}
	if !cfg.Metadata.Enabled || cfg.Metadata.Path != "/var/lib/pdfsign/meta.db" {
		t.Errorf("metadata = %+v", cfg.Metadata)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if len(cfg.Validation.TrustAnchors) != 1 {
		t.Errorf("trust anchors = %v", cfg.Validation.TrustAnchors)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestParseConfigRejectsUnknownFields(t *testing.T) {
	_, err := ParseConfig([]byte("signing:\n  pfx-file: a.p12\n"))
	if !errors.Is(err, ErrUnexpectedField) {
		t.Errorf("err = %v, want ErrUnexpectedField", err)
	}
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Signing == nil || cfg.Storage == nil {
		t.Error("defaults were not applied")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"small signature", func(c *AppConfig) { c.Signing.SignatureSize = 10 }, "signing.signature-size"},
		{"bad digest", func(c *AppConfig) { c.Signing.DigestAlgorithm = "md5" }, "signing.digest-algorithm"},
		{"negative size", func(c *AppConfig) { c.Signing.Width = -1 }, "signing.width"},
		{"unknown backend", func(c *AppConfig) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"s3 without bucket", func(c *AppConfig) { c.Storage.Backend = "s3" }, "storage.s3.bucket"},
		{"unknown exporter", func(c *AppConfig) { c.Tracing.Exporter = "jaeger" }, "tracing.exporter"},
		{"sampling rate", func(c *AppConfig) { c.Tracing.SamplingRate = 2 }, "tracing.sampling-rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PDFSIGN_SIGNATURE_SIZE":    "12000",
		"PDFSIGN_STORAGE_BACKEND":   "s3",
		"PDFSIGN_S3_BUCKET":         "signed-docs",
		"PDFSIGN_S3_USE_PATH_STYLE": "true",
		"PDFSIGN_METADATA_ENABLED":  "1",
		"PDFSIGN_LOG_LEVEL":         "warn",
		"PDFSIGN_TRACING_EXPORTER":  "stdout",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Signing.SignatureSize != 12000 {
		t.Errorf("SignatureSize = %d", cfg.Signing.SignatureSize)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3 == nil || cfg.Storage.S3.Bucket != "signed-docs" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Metadata.Enabled {
		t.Error("metadata not enabled")
	}
	if cfg.Logging.Level != "warn" || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("logging %q tracing %q", cfg.Logging.Level, cfg.Tracing.Exporter)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "PDFSIGN_SIGNATURE_SIZE" {
			return "big", true
		}
		return "", false
	})
	var cerr *ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "PDFSIGN_SIGNATURE_SIZE" {
		t.Errorf("err = %v", err)
	}
}

func TestLoadAppConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pdfsign.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  root: "+dir+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PDFSIGN_DIGEST_ALGORITHM", "sha384")

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Storage.Root != dir {
		t.Errorf("Root = %q, want %q", cfg.Storage.Root, dir)
	}
	if cfg.Signing.DigestAlgorithm != "sha384" {
		t.Errorf("DigestAlgorithm = %q, want env override", cfg.Signing.DigestAlgorithm)
	}

	if _, err := LoadAppConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "PDFSIGN_TEST_DOTENV_A=from-file\nPDFSIGN_TEST_DOTENV_B=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PDFSIGN_TEST_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("PDFSIGN_TEST_DOTENV_A") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("PDFSIGN_TEST_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q", got)
	}
	if got := os.Getenv("PDFSIGN_TEST_DOTENV_B"); got != "from-env" {
		t.Errorf("B = %q, existing variable was overridden", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestLoggingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfsign.log")
	c := &LoggingConfig{Output: path}
	w, closeFn, err := c.Writer()
	if err != nil {
		t.Fatalf("Writer failed: %v", err)
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatal(err)
	}
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "line\n" {
		t.Errorf("log file = %q", data)
	}
}
