package types

// ModelInfo describes the model a server instance is answering with.
type ModelInfo struct {
	// On-disk format the model was loaded from.
	// example: bundle
	Format string `json:"format" example:"bundle"`
	// Declared input shape without the batch dimension: height, width, channels.
	// example: [128,128,3]
	InputShape []int `json:"input_shape"`
	// Number of classes the model scores.
	// example: 4
	Classes int `json:"classes" example:"4"`
	// Resize method applied before inference.
	// example: bilinear
	Resize string `json:"resize" example:"bilinear"`
	// Label table, index-aligned with all_scores.
	// example: ["cat","dog","bird","fish"]
	Labels []string `json:"labels"`
}

// Artifact is a model file or directory discovered on disk.
type Artifact struct {
	// Entry name inside the scanned directory.
	// example: model.imgl
	ID string `json:"id" example:"model.imgl"`
	// Absolute path to the file or directory.
	// example: /srv/models/model.imgl
	Path string `json:"path" example:"/srv/models/model.imgl"`
	// Detected format: bundle, browser, mobile or onnx.
	// example: mobile
	Format string `json:"format" example:"mobile"`
	// Total size on disk in bytes.
	// example: 1048576
	SizeBytes int64 `json:"size_bytes" example:"1048576"`
}
