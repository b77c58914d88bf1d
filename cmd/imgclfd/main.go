package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"imgclf/internal/classifier"
	"imgclf/internal/config"
	"imgclf/internal/httpapi"
	"imgclf/internal/labels"
	"imgclf/internal/runtime"
)

func main() {
	cfg, err := resolveConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "imgclfd:", err)
		os.Exit(2)
	}
	logger := newLogger(cfg)
	httpapi.SetLogger(logger)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxUploadBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	var holder classifier.Holder
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(&holder),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Listen first so liveness probes pass while the model loads.
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("model", cfg.ModelPath).Msg("imgclfd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	loadErr := make(chan error, 1)
	go func() {
		svc, err := loadService(cfg, logger)
		if err != nil {
			loadErr <- err
			return
		}
		holder.Set(svc)
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case <-stop:
	case err := <-serveErr:
		logger.Error().Err(err).Msg("server error")
		exitCode = 1
	case err := <-loadErr:
		logger.Error().Err(err).Msg("startup load failed")
		exitCode = 1
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	if m := holder.Get(); m != nil {
		_ = m.Model().Close()
	}
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}

// resolveConfig applies, from lowest to highest precedence: defaults, the
// config file, IMGCLF_* variables (after an optional .env file) and flags
// given explicitly on the command line.
func resolveConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	configPath := fs.String("config", os.Getenv("IMGCLF_CONFIG"), "Path to a .yaml, .json or .toml config file")
	envFile := fs.String("env-file", "", "Load IMGCLF_* variables from this .env file")
	addr := fs.String("addr", config.DefaultAddr, "HTTP listen address, e.g. :8080")
	modelPath := fs.String("model-path", config.DefaultModelPath, "Model artifact: .imgm bundle, browser directory, .imgl or .onnx")
	classTablePath := fs.String("class-table-path", config.DefaultClassTablePath, "Class label table (JSON array of names)")
	inputSize := fs.Int("expected-input-size", 0, "Resize target the model must declare (0 accepts the model's own)")
	maxUpload := fs.Int64("max-upload-bytes", config.DefaultMaxUploadBytes, "Maximum accepted upload size")
	maxPixels := fs.Int("max-image-pixels", config.DefaultMaxImagePixels, "Maximum decoded image width*height")
	logLevel := fs.String("log-level", config.DefaultLogLevel, "Log level: off|error|info|debug")
	logFormat := fs.String("log-format", config.DefaultLogFormat, "Log format: json|console")
	corsEnabled := fs.Bool("cors-enabled", false, "Enable CORS")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed origins (empty allows any)")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Resolve(*configPath, nil)
	if err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "model-path":
			cfg.ModelPath = *modelPath
		case "class-table-path":
			cfg.ClassTablePath = *classTablePath
		case "expected-input-size":
			cfg.ExpectedInputSize = *inputSize
		case "max-upload-bytes":
			cfg.MaxUploadBytes = *maxUpload
		case "max-image-pixels":
			cfg.MaxImagePixels = *maxPixels
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "cors-enabled":
			cfg.CORSEnabled = *corsEnabled
		case "cors-origins":
			cfg.CORSOrigins = splitCSV(*corsOrigins)
		}
	})
	cfg.FillDefaults()
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	switch {
	case cfg.LogLevel == "off":
		lvl = zerolog.Disabled
	case err != nil:
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if cfg.LogFormat == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(lvl).With().Timestamp().Str("service", "imgclfd").Logger()
}

// loadService opens the model and label table and builds the classifier.
// Every failure here is fatal to the process.
func loadService(cfg config.Config, logger zerolog.Logger) (*classifier.Service, error) {
	start := time.Now()
	model, err := runtime.Open(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	names, err := labels.Load(cfg.ClassTablePath)
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("class table %s: %w", cfg.ClassTablePath, err)
	}
	svc, err := classifier.New(model, names, classifier.Options{
		ExpectedInputSize: cfg.ExpectedInputSize,
		MaxImagePixels:    cfg.MaxImagePixels,
	})
	if err != nil {
		model.Close()
		return nil, err
	}
	sig := svc.Signature()
	logger.Info().
		Str("model", cfg.ModelPath).
		Str("format", svc.Format()).
		Ints("input_shape", sig.InputShape).
		Int("classes", sig.Classes()).
		Dur("elapsed", time.Since(start)).
		Msg("model loaded")
	return svc, nil
}

// splitCSV splits a comma-separated list, trimming blanks and dropping
// empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
