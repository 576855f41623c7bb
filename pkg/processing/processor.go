package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-thumbnailer/pkg/types"
)

// ErrEmptyCrop is returned when a crop rectangle covers no pixels.
var ErrEmptyCrop = errors.New("empty crop rectangle")

// Processor executes thumbnail plans on decoded images using imaging.
type Processor struct {
	config Config
}

// Config holds encoder and resampling settings.
type Config struct {
	JPEGQuality  int
	WebPQuality  float32
	WebPLossless bool
	Filter       imaging.ResampleFilter
}

// DefaultConfig returns the settings used by NewProcessor.
func DefaultConfig() Config {
	return Config{
		JPEGQuality: 85,
		WebPQuality: 80,
		Filter:      imaging.Lanczos,
	}
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{config: DefaultConfig()}
}

// NewProcessorWithConfig creates a processor with custom settings. Zero
// values fall back to the defaults.
func NewProcessorWithConfig(config Config) *Processor {
	def := DefaultConfig()
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = def.JPEGQuality
	}
	if config.WebPQuality <= 0 || config.WebPQuality > 100 {
		config.WebPQuality = def.WebPQuality
	}
	if config.Filter.Support == 0 && config.Filter.Kernel == nil {
		config.Filter = def.Filter
	}
	return &Processor{config: config}
}

// Decode decodes GIF, PNG, JPEG or WebP data. Only the first frame of an
// animated GIF is used. EXIF orientation is not applied so the decoded bounds
// match the dimensions read from the header.
func (p *Processor) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}

	// Fallback: libwebp handles a few extended WebP variants x/image does not
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}

	return nil, fmt.Errorf("failed to decode image: %w", err)
}

// Crop returns the part of img inside the normalized rectangle.
func (p *Processor) Crop(img image.Image, rect types.NormalizedRect) (image.Image, error) {
	if !rect.Valid() {
		return nil, fmt.Errorf("crop %v: %w", rect, ErrEmptyCrop)
	}

	bounds := img.Bounds()
	fw, fh := float64(bounds.Dx()), float64(bounds.Dy())

	x0 := bounds.Min.X + int(math.Round(rect.Left*fw))
	y0 := bounds.Min.Y + int(math.Round(rect.Top*fh))
	x1 := bounds.Min.X + int(math.Round(rect.Right*fw))
	y1 := bounds.Min.Y + int(math.Round(rect.Bottom*fh))

	r := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("crop %v of %dx%d: %w", rect, bounds.Dx(), bounds.Dy(), ErrEmptyCrop)
	}

	return imaging.Crop(img, r), nil
}

// Resize scales img. When only one of Width or Height is set the other is
// derived from the aspect ratio.
func (p *Processor) Resize(img image.Image, size types.Resize) (image.Image, error) {
	if size.Width <= 0 && size.Height <= 0 {
		return nil, fmt.Errorf("resize needs a width or a height")
	}
	if size.Width < 0 || size.Height < 0 {
		return nil, fmt.Errorf("negative resize %dx%d", size.Width, size.Height)
	}
	return imaging.Resize(img, size.Width, size.Height, p.config.Filter), nil
}

// Apply runs the steps in order.
func (p *Processor) Apply(img image.Image, steps []types.Step) (image.Image, error) {
	var err error
	for _, step := range steps {
		switch s := step.(type) {
		case types.Crop:
			img, err = p.Crop(img, s.Rect)
		case types.Resize:
			img, err = p.Resize(img, s)
		default:
			err = fmt.Errorf("unknown transform step %T", step)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step, err)
		}
	}
	return img, nil
}

// Encode serializes img in the requested format.
func (p *Processor) Encode(img image.Image, format types.OutputFormat) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case types.OutputWebP:
		opts := &webp.Options{Lossless: p.config.WebPLossless, Quality: p.config.WebPQuality}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("webp encode: %w", err)
		}
	case types.OutputPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	case types.OutputJPEG, "":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.config.JPEGQuality)); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}
