// Package classifier turns an uploaded leaf image into a disease label via
// an external image-classification model.
package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// DefaultInputSize is the square input resolution of the model.
const DefaultInputSize = 224

// ImageNet normalization constants, per RGB channel.
var (
	imageNetMean = []float32{0.485, 0.456, 0.406}
	imageNetStd  = []float32{0.229, 0.224, 0.225}
)

// Resample filters, numbered as in preprocessor_config.json.
const (
	resampleNearest  = 0
	resampleBilinear = 2
	resampleBicubic  = 3
)

// SizeSpec is the "size" or "crop_size" entry of a preprocessor config:
// either an exact height and width or a target for the shorter edge.
type SizeSpec struct {
	ShortestEdge int `json:"shortest_edge,omitempty"`
	Height       int `json:"height,omitempty"`
	Width        int `json:"width,omitempty"`
}

// UnmarshalJSON also accepts the legacy bare-integer form, which means
// shortest edge.
func (s *SizeSpec) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*s = SizeSpec{ShortestEdge: n}
		return nil
	}
	type plain SizeSpec
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = SizeSpec(p)
	return nil
}

// ProcessorConfig mirrors a HuggingFace preprocessor_config.json.
type ProcessorConfig struct {
	DoResize      bool      `json:"do_resize"`
	Size          SizeSpec  `json:"size"`
	Resample      int       `json:"resample"`
	DoCenterCrop  bool      `json:"do_center_crop"`
	CropSize      SizeSpec  `json:"crop_size"`
	DoRescale     bool      `json:"do_rescale"`
	RescaleFactor float32   `json:"rescale_factor"`
	DoNormalize   bool      `json:"do_normalize"`
	ImageMean     []float32 `json:"image_mean"`
	ImageStd      []float32 `json:"image_std"`
}

// DefaultProcessorConfig resizes straight to size x size and applies
// ImageNet normalization.
func DefaultProcessorConfig(size int) ProcessorConfig {
	return ProcessorConfig{
		DoResize:      true,
		Size:          SizeSpec{Height: size, Width: size},
		Resample:      resampleBilinear,
		DoRescale:     true,
		RescaleFactor: 1.0 / 255,
		DoNormalize:   true,
		ImageMean:     append([]float32(nil), imageNetMean...),
		ImageStd:      append([]float32(nil), imageNetStd...),
	}
}

// LoadProcessorConfig reads a preprocessor_config.json. Keys missing from
// the file keep the MobileNetV2 defaults (shortest edge 256, center crop
// 224).
func LoadProcessorConfig(path string) (ProcessorConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ProcessorConfig{}, fmt.Errorf("failed to read preprocessor config: %w", err)
	}
	cfg := DefaultProcessorConfig(DefaultInputSize)
	cfg.Size = SizeSpec{ShortestEdge: 256}
	cfg.DoCenterCrop = true
	cfg.CropSize = SizeSpec{Height: DefaultInputSize, Width: DefaultInputSize}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return ProcessorConfig{}, fmt.Errorf("failed to decode preprocessor config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ProcessorConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the config yields a usable tensor.
func (p ProcessorConfig) Validate() error {
	if p.DoResize && p.Size.ShortestEdge <= 0 && (p.Size.Height <= 0 || p.Size.Width <= 0) {
		return fmt.Errorf("resize enabled without a usable size")
	}
	if p.DoCenterCrop && (p.CropSize.Height <= 0 || p.CropSize.Width <= 0) {
		return fmt.Errorf("center crop enabled without height and width")
	}
	if p.DoNormalize {
		if len(p.ImageMean) != 3 || len(p.ImageStd) != 3 {
			return fmt.Errorf("image_mean and image_std need one value per RGB channel")
		}
		for _, s := range p.ImageStd {
			if s == 0 {
				return fmt.Errorf("image_std must be non-zero")
			}
		}
	}
	return nil
}

// Decode decodes JPEG, PNG or GIF bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot identify image file: %w", err)
	}
	return img, nil
}

// Preprocess resizes and crops img as cfg describes and returns float32
// pixels in CHW order along with the NCHW tensor shape.
func Preprocess(img image.Image, cfg ProcessorConfig) ([]float32, []int64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rw, rh := w, h
	if cfg.DoResize {
		rw, rh = resizedDims(w, h, cfg.Size)
	}
	cw, ch := rw, rh
	if cfg.DoCenterCrop {
		cw, ch = min(cfg.CropSize.Width, rw), min(cfg.CropSize.Height, rh)
	}

	// The crop window in resized coordinates, mapped back onto the source,
	// so one scaling pass does both steps.
	left, top := (rw-cw)/2, (rh-ch)/2
	src := image.Rect(
		b.Min.X+left*w/rw,
		b.Min.Y+top*h/rh,
		b.Min.X+(left+cw)*w/rw,
		b.Min.Y+(top+ch)*h/rh,
	)
	if src.Dx() == 0 {
		src.Max.X = min(src.Min.X+1, b.Max.X)
	}
	if src.Dy() == 0 {
		src.Max.Y = min(src.Min.Y+1, b.Max.Y)
	}
	dst := image.NewRGBA(image.Rect(0, 0, cw, ch))
	kernel(cfg.Resample).Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	plane := cw * ch
	out := make([]float32, 3*plane)
	for px := 0; px < plane; px++ {
		for c := 0; c < 3; c++ {
			v := float32(dst.Pix[px*4+c])
			if cfg.DoRescale {
				v *= cfg.RescaleFactor
			}
			if cfg.DoNormalize {
				v = (v - cfg.ImageMean[c]) / cfg.ImageStd[c]
			}
			out[c*plane+px] = v
		}
	}
	return out, []int64{1, 3, int64(ch), int64(cw)}
}

func resizedDims(w, h int, size SizeSpec) (int, int) {
	if size.ShortestEdge > 0 {
		if w <= h {
			return size.ShortestEdge, max(1, h*size.ShortestEdge/w)
		}
		return max(1, w*size.ShortestEdge/h), size.ShortestEdge
	}
	return size.Width, size.Height
}

func kernel(resample int) draw.Scaler {
	switch resample {
	case resampleNearest:
		return draw.NearestNeighbor
	case resampleBicubic:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// Argmax returns the index of the largest value, or -1 for an empty slice.
func Argmax(values []float32) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
