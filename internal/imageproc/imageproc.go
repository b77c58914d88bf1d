// Package imageproc turns uploaded image bytes into the model's input
// tensor: decode, drop alpha to 3-channel RGB, resize to the model's
// declared size. Pixel values stay in [0,255]; scaling belongs to the model.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imgclf/internal/artifact"
	"imgclf/internal/tensor"
)

// ErrEmpty is returned for a zero-length upload.
var ErrEmpty = errors.New("empty image")

// ErrTooLarge is wrapped when an image header declares more pixels than the
// decode budget allows.
var ErrTooLarge = errors.New("image too large")

// DefaultMaxPixels bounds width*height of a decoded image.
const DefaultMaxPixels = 40_000_000

// Decode parses data in any registered format and reports the format name.
// Images above DefaultMaxPixels are rejected.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel budget, checked against the
// header before any pixel data is allocated. maxPixels <= 0 selects
// DefaultMaxPixels.
func DecodeLimit(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, name, fmt.Errorf("decode image: zero-sized %s", name)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, name, fmt.Errorf("decode image: %w: %dx%d %s exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, name, maxPixels)
	}
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, name, fmt.Errorf("decode image: zero-sized %s", name)
	}
	return img, name, nil
}

// ToRGB copies img into an opaque NRGBA image. Color channels keep their
// stored (non-premultiplied) values and alpha is discarded, so a fully
// transparent pixel keeps its color. Grayscale and paletted images expand
// to three equal or looked-up channels.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	} else {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := dst.PixOffset(x, y)
				dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = c.R, c.G, c.B
			}
		}
	}
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Resize scales an opaque image to w x h with the named method.
func Resize(img *image.NRGBA, w, h int, method string) (*image.NRGBA, error) {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img, nil
	}
	var scaler draw.Scaler
	switch method {
	case "", artifact.ResizeBilinear:
		scaler = draw.BiLinear
	case artifact.ResizeNearest:
		scaler = draw.NearestNeighbor
	case artifact.ResizeCatmullRom:
		scaler = draw.CatmullRom
	case artifact.ResizeLanczos3:
		return ToRGB(resize.Resize(uint(w), uint(h), img, resize.Lanczos3)), nil
	default:
		return nil, fmt.Errorf("unknown resize method %q", method)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// Pixels writes the RGB channels of img as HWC float32 values in [0,255].
func Pixels(img *image.NRGBA) []float32 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]float32, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*w]
		for x := 0; x < w; x++ {
			out = append(out, float32(row[4*x]), float32(row[4*x+1]), float32(row[4*x+2]))
		}
	}
	return out
}

// Preprocess decodes data and builds the (1, h, w, 3) input tensor for sig.
func Preprocess(data []byte, sig artifact.Signature) (*tensor.Tensor, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return FromImage(img, sig)
}

// FromImage converts a decoded image into the input tensor for sig.
func FromImage(img image.Image, sig artifact.Signature) (*tensor.Tensor, error) {
	if sig.Channels() != 3 {
		return nil, fmt.Errorf("model expects %d channels, only RGB is supported", sig.Channels())
	}
	rgb, err := Resize(ToRGB(img), sig.Width(), sig.Height(), sig.Preprocessing.Resize)
	if err != nil {
		return nil, err
	}
	return tensor.FromData(tensor.Shape{1, sig.Height(), sig.Width(), 3}, Pixels(rgb))
}
