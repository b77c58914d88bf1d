package convert

import (
	"context"
	"os"
	"path/filepath"

	"imgclf/internal/artifact"
	"imgclf/internal/common/fsutil"
	"imgclf/internal/format/browser"
	"imgclf/internal/labels"
)

// BrowserOptions configure ToBrowser.
type BrowserOptions struct {
	Common
	ModelPath string
	OutputDir string
	// ClassTablePath is optional. When set, class_names.json is written
	// next to model.json.
	ClassTablePath string
	ShardSizeBytes int
}

// ToBrowser converts the bundle at ModelPath into a browser artifact in
// OutputDir. The directory is built in a staging sibling and swapped in
// whole, so a failed run leaves any previous conversion untouched.
func ToBrowser(ctx context.Context, o BrowserOptions) (Report, error) {
	r := newRun(ctx, o.Common, "browser")
	err := toBrowser(r, o)
	r.finish(err)
	return r.report, err
}

func toBrowser(r *run, o BrowserOptions) error {
	var (
		model *artifact.Model
		names []string
		files []browser.File
		stage string
	)
	if err := r.step(StepLoadModel, func() (err error) {
		model, err = artifact.Load(o.ModelPath)
		return err
	}); err != nil {
		return err
	}
	if o.ClassTablePath != "" {
		if err := r.step(StepLoadLabels, func() error {
			names = r.resolveLabels(o.ClassTablePath, model.Signature().Classes())
			return nil
		}); err != nil {
			return err
		}
	}
	if err := r.step(StepConfigure, func() error {
		if err := browser.CheckSupport(model); err != nil {
			return &ExportError{Step: StepConfigure, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := r.step(StepConvert, func() (err error) {
		files, err = browser.Encode(model, browser.Options{
			ShardSize:   o.ShardSizeBytes,
			GeneratedBy: model.Metadata.CreatedBy,
			ConvertedBy: Generator,
		})
		if err != nil {
			return &ExportError{Step: StepConvert, Err: err}
		}
		for _, f := range files {
			r.report.Bytes += len(f.Data)
		}
		return nil
	}); err != nil {
		return err
	}

	outDir, err := fsutil.ExpandHome(o.OutputDir)
	if err != nil {
		return &WriteError{Step: StepWriteModel, Path: o.OutputDir, Err: err}
	}
	if err := r.step(StepWriteModel, func() (err error) {
		if stage, err = fsutil.StagingDir(outDir); err != nil {
			return &WriteError{Step: StepWriteModel, Path: outDir, Err: err}
		}
		if err := browser.WriteDir(stage, files); err != nil {
			return &WriteError{Step: StepWriteModel, Path: stage, Err: err}
		}
		return nil
	}); err != nil {
		if stage != "" {
			_ = os.RemoveAll(stage)
		}
		return err
	}
	if names != nil {
		if err := r.step(StepWriteLabels, func() error {
			b, err := labels.Encode(names)
			if err == nil {
				err = os.WriteFile(filepath.Join(stage, labels.DefaultFile), b, 0o644)
			}
			if err != nil {
				return &WriteError{Step: StepWriteLabels, Path: filepath.Join(stage, labels.DefaultFile), Err: err}
			}
			return nil
		}); err != nil {
			_ = os.RemoveAll(stage)
			return err
		}
	}
	if err := r.step(StepCommit, func() error {
		if err := fsutil.ReplaceDir(stage, outDir); err != nil {
			return &WriteError{Step: StepCommit, Path: outDir, Err: err}
		}
		return nil
	}); err != nil {
		_ = os.RemoveAll(stage)
		return err
	}
	for _, f := range files {
		r.report.Outputs = append(r.report.Outputs, filepath.Join(outDir, f.Name))
	}
	if names != nil {
		r.report.Outputs = append(r.report.Outputs, filepath.Join(outDir, labels.DefaultFile))
	}
	return nil
}

// resolveLabels loads the table or falls back to generated names, reporting
// the fallback as a warning and an event.
func (r *run) resolveLabels(path string, n int) []string {
	res := labels.LoadOrSynthesize(path, n, r.log)
	if res.Fallback {
		r.obs.Publish(Event{Name: EventLabelFallback, RunID: r.id, Step: StepLoadLabels, Fields: map[string]any{"reason": res.Reason, "path": path}})
	}
	r.report.Labels = res.Labels
	r.report.LabelFallback = res.Fallback
	return res.Labels
}
