// Package cli implements the imgclf command line: conversion, inspection,
// verification, discovery and prediction.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"imgclf/internal/common/fsutil"
	"imgclf/internal/convert"
	"imgclf/internal/registry"
	"imgclf/internal/storage"
)

// Config carries the persistent flags.
type Config struct {
	LogLvl string
	JSON   bool
}

// Indirections so tests can stub the heavy work.
var (
	fnToBrowser = convert.ToBrowser
	fnToMobile  = convert.ToMobile
	fnVerify    = convert.Verify
	fnInspect   = convert.Inspect
	fnScan      = registry.LoadDir
	fnPublish   = publish
)

// Main runs the command line with args and returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := &Config{LogLvl: envStr("IMGCLF_LOG_LEVEL", "info")}
	root := BuildRootCmd(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitCode(err)
	}
	return ExitOK
}

// BuildRootCmd constructs the command tree.
func BuildRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "imgclf",
		Short:         "Convert, inspect and query image classifier models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.LogLvl, "log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults IMGCLF_LOG_LEVEL or info)")
	root.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Print results as JSON")

	root.AddCommand(convertCmd(cfg), inspectCmd(cfg), verifyCmd(cfg), listCmd(cfg), predictCmd(cfg))

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	root.AddCommand(completionCmd)
	root.CompletionOptions.DisableDefaultCmd = true

	return root
}

type convertFlags struct {
	modelPath       string
	outputDir       string
	classTablePath  string
	format          string
	optimize        string
	allowSelectOps  bool
	shardSizeBytes  int
	outputModelPath string
	outputClassPath string
	publish         string
	progress        bool
}

func convertCmd(cfg *Config) *cobra.Command {
	var f convertFlags
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a model bundle to the browser or mobile format",
		Example: "  imgclf convert --model-path model.imgm --format browser --output-dir web/model\n" +
			"  imgclf convert --model-path model.imgm --format mobile --output-dir app/assets --class-table-path class_names.json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.modelPath, "model-path", envStr("IMGCLF_MODEL_PATH", "model.imgm"), "Source model bundle (.imgm)")
	fl.StringVar(&f.outputDir, "output-dir", "", "Output directory")
	fl.StringVar(&f.classTablePath, "class-table-path", "", "Class label table (JSON array of names)")
	fl.StringVar(&f.format, "format", "browser", "Target format: browser|mobile")
	fl.StringVar(&f.optimize, "optimize", "true", "Mobile: quantize weights to int8 (true|false)")
	fl.BoolVar(&f.allowSelectOps, "allow-select-ops", true, "Mobile: allow layers without a builtin kernel")
	fl.IntVar(&f.shardSizeBytes, "shard-size-bytes", 0, "Browser: weight shard size (default 4 MiB)")
	fl.StringVar(&f.outputModelPath, "output-model-path", "", "Mobile: model file (default <output-dir>/model.imgl)")
	fl.StringVar(&f.outputClassPath, "output-class-path", "", "Mobile: label file (default <output-dir>/class_names.json)")
	fl.StringVar(&f.publish, "publish", "", "Upload outputs after commit: s3://bucket/prefix or file:///dir")
	fl.BoolVar(&f.progress, "progress", envBool("IMGCLF_PROGRESS", false), "Show a progress bar on stderr")
	return cmd
}

func runConvert(cmd *cobra.Command, cfg *Config, f convertFlags) error {
	log := newLogger(cmd.ErrOrStderr(), cfg.LogLvl)
	common := convert.Common{Logger: &log}
	var (
		rep     convert.Report
		err     error
		publish []string
	)
	optimize, err := strconv.ParseBool(f.optimize)
	if err != nil {
		return fmt.Errorf("invalid --optimize %q: want true or false", f.optimize)
	}
	switch f.format {
	case "browser":
		if f.outputDir == "" {
			return fmt.Errorf("--output-dir is required for the browser format")
		}
		if f.progress {
			steps := 5
			if f.classTablePath != "" {
				steps += 2
			}
			common.Observer = newProgressObserver(cmd.ErrOrStderr(), steps)
		}
		rep, err = fnToBrowser(cmd.Context(), convert.BrowserOptions{
			Common:         common,
			ModelPath:      f.modelPath,
			OutputDir:      f.outputDir,
			ClassTablePath: f.classTablePath,
			ShardSizeBytes: f.shardSizeBytes,
		})
		if err == nil {
			var dir string
			if dir, err = fsutil.ExpandHome(f.outputDir); err == nil {
				publish = []string{dir}
			}
		}
	case "mobile":
		if f.outputDir == "" && (f.outputModelPath == "" || f.outputClassPath == "") {
			return fmt.Errorf("--output-dir or both --output-model-path and --output-class-path are required for the mobile format")
		}
		if f.progress {
			common.Observer = newProgressObserver(cmd.ErrOrStderr(), 7)
		}
		rep, err = fnToMobile(cmd.Context(), convert.MobileOptions{
			Common:          common,
			ModelPath:       f.modelPath,
			ClassTablePath:  f.classTablePath,
			OutputDir:       f.outputDir,
			OutputModelPath: f.outputModelPath,
			OutputClassPath: f.outputClassPath,
			Optimize:        optimize,
			AllowSelectOps:  f.allowSelectOps,
		})
		publish = rep.Outputs
	default:
		return fmt.Errorf("unknown --format %q: want browser or mobile", f.format)
	}
	if err != nil {
		return err
	}
	if f.publish != "" {
		locs, err := fnPublish(cmd.Context(), f.publish, publish)
		if err != nil {
			return err
		}
		log.Info().Strs("locations", locs).Msg("published")
	}
	if cfg.JSON {
		return writeJSON(cmd.OutOrStdout(), rep)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "converted to %s in %s (run %s)\n", rep.Format, rep.Total, rep.RunID)
	for _, p := range rep.Outputs {
		fmt.Fprintf(out, "  %s\n", p)
	}
	if rep.LabelFallback {
		fmt.Fprintf(out, "warning: class table unusable, wrote generated labels class_0..class_%d\n", len(rep.Labels)-1)
	}
	return nil
}

// publish uploads committed outputs. S3 credentials come from IMGCLF_S3_*
// variables or the default AWS chain.
func publish(ctx context.Context, dest string, paths []string) ([]string, error) {
	s3cfg := storage.S3Config{
		Endpoint:        os.Getenv("IMGCLF_S3_ENDPOINT"),
		Region:          os.Getenv("IMGCLF_S3_REGION"),
		AccessKeyID:     os.Getenv("IMGCLF_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("IMGCLF_S3_SECRET_ACCESS_KEY"),
	}
	target, err := storage.Open(ctx, dest, s3cfg)
	if err != nil {
		return nil, err
	}
	return storage.Publish(ctx, target, paths)
}

func inspectCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:     "inspect <artifact>",
		Short:   "Show format, shapes and layers of a model artifact",
		Example: "  imgclf inspect model.imgm\n  imgclf inspect web/model",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := fnInspect(args[0])
			if err != nil {
				return err
			}
			if cfg.JSON {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			return s.WriteTable(cmd.OutOrStdout())
		},
	}
}

func verifyCmd(cfg *Config) *cobra.Command {
	var o convert.VerifyOptions
	cmd := &cobra.Command{
		Use:     "verify",
		Short:   "Check that a converted artifact matches its source on random probes",
		Example: "  imgclf verify --source model.imgm --converted app/assets/model.imgl",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.SourcePath == "" || o.ConvertedPath == "" {
				return fmt.Errorf("--source and --converted are required")
			}
			rep, err := fnVerify(cmd.Context(), o)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s -> %s, shapes %s -> %s, %d probes, max abs diff %.3g (tolerance %.3g)\n",
				rep.SourceFormat, rep.ConvertedFormat, rep.InputShape, rep.OutputShape, rep.Probes, rep.MaxAbsDiff, rep.Tolerance)
			return nil
		},
	}
	cmd.Flags().StringVar(&o.SourcePath, "source", "", "Source artifact")
	cmd.Flags().StringVar(&o.ConvertedPath, "converted", "", "Converted artifact")
	cmd.Flags().IntVar(&o.Probes, "probes", convert.DefaultProbes, "Number of random probe images")
	cmd.Flags().Uint64Var(&o.Seed, "seed", 1, "Probe generator seed")
	cmd.Flags().Float64Var(&o.Tolerance, "tolerance", 0, "Max abs difference (0 picks a default for the format)")
	return cmd
}

func listCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list [dir]",
		Short: "List model artifacts in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := envStr("IMGCLF_MODELS_DIR", ".")
			if len(args) == 1 {
				dir = args[0]
			}
			arts, err := fnScan(dir)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return writeJSON(cmd.OutOrStdout(), arts)
			}
			for _, a := range arts {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %10d  %s\n", a.Format, a.SizeBytes, a.ID)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
