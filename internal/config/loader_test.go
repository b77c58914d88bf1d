package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nmodel_path: /m/clf.imgm\nclass_table_path: /m/names.json\nexpected_input_size: 128\ncors_origins: [a.com, b.com]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelPath != "/m/clf.imgm" || cfg.ClassTablePath != "/m/names.json" || cfg.ExpectedInputSize != 128 || len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","model_path":"/m","max_upload_bytes":42,"log_format":"console","cors_enabled":true}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ModelPath != "/m" || cfg.MaxUploadBytes != 42 || cfg.LogFormat != "console" || !cfg.CORSEnabled {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nmodel_path=\"/x\"\nexpected_input_size=64\nlog_level=\"debug\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelPath != "/x" || cfg.ExpectedInputSize != 64 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestResolveEnvOverridesFile(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :1111\nmodel_path: /file/model.imgm\nexpected_input_size: 32\n")
	cfg, err := Resolve(p, map[string]string{
		"IMGCLF_ADDR":             ":2222",
		"IMGCLF_CORS_ENABLED":     "true",
		"IMGCLF_MAX_IMAGE_PIXELS": "1000000",
		"IMGCLF_CORS_ORIGINS":     "https://a.example,https://b.example",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":2222" || cfg.MaxImagePixels != 1_000_000 {
		t.Fatalf("env should win over file: %+v", cfg)
	}
	if cfg.ModelPath != "/file/model.imgm" || cfg.ExpectedInputSize != 32 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if !cfg.CORSEnabled || len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors from env: %+v", cfg)
	}
}

func TestResolveRejectsBadEnv(t *testing.T) {
	if _, err := Resolve("", map[string]string{"IMGCLF_EXPECTED_INPUT_SIZE": "big"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFillDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.FillDefaults()
	if cfg.Addr != DefaultAddr || cfg.MaxUploadBytes != DefaultMaxUploadBytes || cfg.MaxImagePixels != DefaultMaxImagePixels || cfg.LogFormat != "json" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected log format error")
	}
	cfg.LogFormat = "json"
	cfg.MaxImagePixels = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected max_image_pixels error")
	}
}

func TestLoadEnvFile(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, ".env", "IMGCLF_TEST_ENVFILE_KEY=from-file\n")
	t.Setenv("IMGCLF_TEST_ENVFILE_KEY", "")
	os.Unsetenv("IMGCLF_TEST_ENVFILE_KEY")
	if err := LoadEnvFile(p); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("IMGCLF_TEST_ENVFILE_KEY"); got != "from-file" {
		t.Fatalf("got %q", got)
	}
	if err := LoadEnvFile(filepath.Join(d, "missing.env")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
