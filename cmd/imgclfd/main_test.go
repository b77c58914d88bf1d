package main

import (
	"context"
	"errors"
	"flag"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"imgclf/internal/artifact/artifacttest"
	"imgclf/internal/classifier"
	"imgclf/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"IMGCLF_CONFIG", "IMGCLF_ADDR", "IMGCLF_MODEL_PATH", "IMGCLF_CLASS_TABLE_PATH",
		"IMGCLF_EXPECTED_INPUT_SIZE", "IMGCLF_MAX_UPLOAD_BYTES", "IMGCLF_MAX_IMAGE_PIXELS", "IMGCLF_LOG_LEVEL", "IMGCLF_LOG_FORMAT",
		"IMGCLF_CORS_ENABLED", "IMGCLF_CORS_ORIGINS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "imgclfd.yaml")
	if err := os.WriteFile(cfgPath, []byte("addr: :1111\nmodel_path: /file/model.imgm\nclass_table_path: /file/names.json\nexpected_input_size: 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IMGCLF_MODEL_PATH", "/env/model.imgm")
	t.Setenv("IMGCLF_EXPECTED_INPUT_SIZE", "96")

	fs := flag.NewFlagSet("imgclfd", flag.ContinueOnError)
	cfg, err := resolveConfig(fs, []string{"--config", cfgPath, "--expected-input-size", "128", "--cors-origins", " a.com, ,b.com "})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":1111" {
		t.Fatalf("file value lost: %q", cfg.Addr)
	}
	if cfg.ModelPath != "/env/model.imgm" {
		t.Fatalf("env should beat file: %q", cfg.ModelPath)
	}
	if cfg.ExpectedInputSize != 128 {
		t.Fatalf("flag should beat env: %d", cfg.ExpectedInputSize)
	}
	if cfg.ClassTablePath != "/file/names.json" || len(cfg.CORSOrigins) != 2 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.MaxUploadBytes != config.DefaultMaxUploadBytes || cfg.MaxImagePixels != config.DefaultMaxImagePixels || cfg.LogFormat != config.DefaultLogFormat {
		t.Fatalf("defaults not filled: %+v", cfg)
	}
}

func TestResolveConfigDefaultsAndEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("IMGCLF_ADDR=:9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("IMGCLF_ADDR") })
	cfg, err := resolveConfig(flag.NewFlagSet("imgclfd", flag.ContinueOnError), []string{"--env-file", envFile})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.ModelPath != config.DefaultModelPath {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestResolveConfigRejectsBadLogFormat(t *testing.T) {
	clearEnv(t)
	fs := flag.NewFlagSet("imgclfd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := resolveConfig(fs, []string{"--log-format", "xml"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadService(t *testing.T) {
	dir := t.TempDir()
	bundle := artifacttest.WriteBundle(t, dir, artifacttest.FixedScores(16, []float32{0.1, 0.7, 0.05, 0.15}))
	table := artifacttest.WriteLabels(t, dir, `["cat","dog","bird","fish"]`)
	cfg := config.Config{ModelPath: bundle, ClassTablePath: table, ExpectedInputSize: 16}

	svc, err := loadService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r, err := svc.Predict(context.Background(), artifacttest.SolidPNG(t, 4, 4, color.Black))
	if err != nil || r.Label != "dog" {
		t.Fatalf("predict: %+v %v", r, err)
	}

	cfg.ExpectedInputSize = 128
	if _, err := loadService(cfg, zerolog.Nop()); !errors.Is(err, classifier.ErrShapeMismatch) {
		t.Fatalf("expected input size mismatch to fail")
	}
	cfg.ExpectedInputSize = 0
	cfg.ClassTablePath = filepath.Join(dir, "missing.json")
	if _, err := loadService(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected missing class table to fail")
	}
	cfg.ClassTablePath = artifacttest.WriteLabels(t, dir, `["only","three","names"]`)
	if _, err := loadService(cfg, zerolog.Nop()); !errors.Is(err, classifier.ErrShapeMismatch) {
		t.Fatalf("expected label count mismatch to fail")
	}
}
