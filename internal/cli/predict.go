package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"imgclf/internal/classifier"
	"imgclf/internal/labels"
	"imgclf/internal/runtime"
	"imgclf/pkg/types"
)

type predictFlags struct {
	server         string
	modelPath      string
	classTablePath string
	topK           int
	timeout        time.Duration
}

func predictCmd(cfg *Config) *cobra.Command {
	var f predictFlags
	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify an image locally or through a running server",
		Example: "  imgclf predict cat.jpg --model-path model.imgm --class-table-path class_names.json\n" +
			"  imgclf predict cat.jpg --server http://localhost:8080 --top-k 3",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var resp types.PredictResponse
			if f.server != "" {
				resp, err = predictRemote(cmd.Context(), f, filepath.Base(args[0]), data)
			} else {
				resp, err = predictLocal(cmd.Context(), cmd.ErrOrStderr(), cfg, f, data)
			}
			if err != nil {
				return err
			}
			if cfg.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %.4f\n", resp.Class, resp.Confidence)
			for _, r := range resp.Top {
				fmt.Fprintf(out, "  %-20s %.4f\n", r.Class, r.Score)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.server, "server", envStr("IMGCLF_SERVER", ""), "Base URL of a running imgclfd; empty runs the model in-process")
	fl.StringVar(&f.modelPath, "model-path", envStr("IMGCLF_MODEL_PATH", "model.imgm"), "Model artifact for in-process prediction")
	fl.StringVar(&f.classTablePath, "class-table-path", envStr("IMGCLF_CLASS_TABLE_PATH", labels.DefaultFile), "Class label table for in-process prediction")
	fl.IntVar(&f.topK, "top-k", envInt("IMGCLF_TOP_K", 0), "Also list the k best classes")
	fl.DurationVar(&f.timeout, "timeout", 30*time.Second, "Remote request timeout")
	return cmd
}

func predictLocal(ctx context.Context, stderr io.Writer, cfg *Config, f predictFlags, data []byte) (types.PredictResponse, error) {
	var resp types.PredictResponse
	model, err := runtime.Open(f.modelPath)
	if err != nil {
		return resp, err
	}
	defer model.Close()
	res := labels.LoadOrSynthesize(f.classTablePath, model.Signature().Classes(), newLogger(stderr, cfg.LogLvl))
	svc, err := classifier.New(model, res.Labels, classifier.Options{})
	if err != nil {
		return resp, err
	}
	r, err := svc.Predict(ctx, data)
	if err != nil {
		return resp, err
	}
	resp = types.PredictResponse{Class: r.Label, Confidence: r.Confidence, AllScores: r.Scores}
	if f.topK > 0 {
		for _, rk := range classifier.TopK(r, svc.Labels(), f.topK) {
			resp.Top = append(resp.Top, types.RankedClass{Class: rk.Label, Index: rk.Index, Score: rk.Score})
		}
	}
	return resp, nil
}

func predictRemote(ctx context.Context, f predictFlags, name string, data []byte) (types.PredictResponse, error) {
	var (
		resp   types.PredictResponse
		apiErr types.ErrorResponse
	)
	client := resty.New().
		SetBaseURL(strings.TrimRight(f.server, "/")).
		SetTimeout(f.timeout)
	req := client.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(data)).
		SetResult(&resp).
		SetError(&apiErr)
	if f.topK > 0 {
		req.SetQueryParam("top_k", strconv.Itoa(f.topK))
	}
	res, err := req.Post("/predict")
	if err != nil {
		return resp, fmt.Errorf("predict request: %w", err)
	}
	if res.IsError() {
		if apiErr.Error != "" {
			return resp, fmt.Errorf("server returned %d: %s", res.StatusCode(), apiErr.Error)
		}
		return resp, fmt.Errorf("server returned %s", res.Status())
	}
	return resp, nil
}
