// Package artifact defines the trained classifier artifact: its signature
// (input/output shapes and pinned preprocessing), the layer graph, and the
// named weight tensors.
//
// The source bundle (.imgm) is a zip archive with three members:
//
//   - metadata.json: format tag, name, signature.
//   - config.json: ordered layer list plus the weights manifest.
//   - model.weights.bin: little-endian float32 values in manifest order.
//
// Converted formats (browser, mobile) live in internal/format and reuse the
// same Model value, so shapes and layer semantics cannot drift between them.
package artifact
