package convert

import (
	"context"
	"path/filepath"

	"imgclf/internal/artifact"
	"imgclf/internal/common/fsutil"
	"imgclf/internal/format/mobile"
	"imgclf/internal/labels"
)

// DefaultMobileModelFile is the model file name used when only an output
// directory is given.
const DefaultMobileModelFile = "model.imgl"

// MobileOptions configure ToMobile.
type MobileOptions struct {
	Common
	ModelPath      string
	ClassTablePath string
	// OutputDir supplies defaults for OutputModelPath and OutputClassPath.
	OutputDir       string
	OutputModelPath string
	OutputClassPath string
	// Optimize enables the default optimization pass (int8 kernels).
	Optimize bool
	// AllowSelectOps lets layers without a builtin mobile kernel fall back to
	// the select op set. The CLI turns it on by default.
	AllowSelectOps bool
}

func (o MobileOptions) outputs() (model, classes string, err error) {
	model, classes = o.OutputModelPath, o.OutputClassPath
	if model == "" {
		model = filepath.Join(o.OutputDir, DefaultMobileModelFile)
	}
	if classes == "" {
		classes = filepath.Join(o.OutputDir, labels.DefaultFile)
	}
	if model, err = fsutil.ExpandHome(model); err != nil {
		return "", "", err
	}
	classes, err = fsutil.ExpandHome(classes)
	return model, classes, err
}

// ToMobile converts the bundle at ModelPath into the mobile format and
// writes it together with the label table. Both files are committed as one
// transaction: on failure neither replaces what was there before.
func ToMobile(ctx context.Context, o MobileOptions) (Report, error) {
	r := newRun(ctx, o.Common, "mobile")
	err := toMobile(r, o)
	r.finish(err)
	return r.report, err
}

func toMobile(r *run, o MobileOptions) error {
	var (
		model *artifact.Model
		names []string
		data  []byte
		txn   fsutil.FileTxn
	)
	modelOut, classOut, err := o.outputs()
	if err != nil {
		return &WriteError{Step: StepWriteModel, Path: o.OutputModelPath, Err: err}
	}
	if err := r.step(StepLoadModel, func() (err error) {
		model, err = artifact.Load(o.ModelPath)
		return err
	}); err != nil {
		return err
	}
	if err := r.step(StepLoadLabels, func() error {
		names = r.resolveLabels(o.ClassTablePath, model.Signature().Classes())
		return nil
	}); err != nil {
		return err
	}
	if err := r.step(StepConfigure, func() error {
		r.log.Info().
			Bool("optimize", o.Optimize).
			Bool("allow_select_ops", o.AllowSelectOps).
			Msg("converter configured")
		if _, err := mobile.Plan(model, o.AllowSelectOps); err != nil {
			return &ConversionError{Step: StepConfigure, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := r.step(StepConvert, func() error {
		var st mobile.Stats
		var err error
		data, st, err = mobile.Encode(model, mobile.Options{
			Optimize:    o.Optimize,
			AllowSelect: o.AllowSelectOps,
			GeneratedBy: Generator,
		})
		if err != nil {
			return &ConversionError{Step: StepConvert, Err: err}
		}
		r.report.Bytes = st.Bytes
		r.report.Quantized = st.Quantized
		r.report.SelectOps = st.SelectOperators
		return nil
	}); err != nil {
		return err
	}
	defer txn.Abort()
	if err := r.step(StepWriteModel, func() error {
		if err := txn.Stage(modelOut, data, 0o644); err != nil {
			return &WriteError{Step: StepWriteModel, Path: modelOut, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := r.step(StepWriteLabels, func() error {
		b, err := labels.Encode(names)
		if err == nil {
			err = txn.Stage(classOut, b, 0o644)
		}
		if err != nil {
			return &WriteError{Step: StepWriteLabels, Path: classOut, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := r.step(StepCommit, func() error {
		if err := txn.Commit(); err != nil {
			return &WriteError{Step: StepCommit, Path: modelOut, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}
	r.report.Outputs = []string{modelOut, classOut}
	return nil
}
