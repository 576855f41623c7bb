// Package thumbnailer turns source images into fixed-size thumbnails.
//
// A thumbnail is produced in two passes. The source header is sniffed for its
// format and dimensions, an optional caller-supplied crop is applied and the
// image is scaled along whichever dimension binds against the target aspect
// ratio. The result is encoded as JPEG and sniffed again, and the excess of
// the other dimension is trimmed equally from both edges.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		thumbnailer "github.com/menta2k/image-thumbnailer"
//		"github.com/menta2k/image-thumbnailer/pkg/types"
//	)
//
//	func main() {
//		data, err := os.ReadFile("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		t := thumbnailer.New()
//		result, err := t.Generate(context.Background(), data, types.ThumbnailRequest{
//			TargetWidth:  125,
//			TargetHeight: 125,
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if err := os.WriteFile("photo_thumb.jpg", result.Data, 0o644); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// Packages:
//
//   - pkg/imageinfo: format and dimension sniffing from raw header bytes
//   - pkg/planner: crop and resize planning
//   - pkg/processing: the imaging based engine that executes plans
//   - pkg/fetch: HTTP retrieval of source images
package thumbnailer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/menta2k/image-thumbnailer/pkg/client"
	"github.com/menta2k/image-thumbnailer/pkg/imageinfo"
	"github.com/menta2k/image-thumbnailer/pkg/planner"
	"github.com/menta2k/image-thumbnailer/pkg/processing"
	"github.com/menta2k/image-thumbnailer/pkg/types"
)

// Version of the thumbnailer library
const Version = "1.0.0"

// DefaultMaxPixels bounds the decoded source frame size.
const DefaultMaxPixels = 50_000_000

var (
	// ErrUnknownFormat is returned when the source is not a GIF, PNG or JPEG.
	ErrUnknownFormat = errors.New("unrecognized image format")
	// ErrTooLarge is returned when the source header claims more pixels than
	// the configured budget. It is checked before any pixel is decoded.
	ErrTooLarge = errors.New("source image too large")
)

// Thumbnailer runs the sniff, plan and transform pipeline.
type Thumbnailer struct {
	engine    client.Engine
	format    types.OutputFormat
	maxPixels int64
	logger    zerolog.Logger
}

// Config customizes a Thumbnailer. Zero values select the defaults.
type Config struct {
	Engine       client.Engine
	OutputFormat types.OutputFormat
	MaxPixels    int64
	Logger       *zerolog.Logger
}

// Result is a generated thumbnail together with what the pipeline saw.
type Result struct {
	Data    []byte
	Format  types.OutputFormat
	Source  imageinfo.ImageInfo
	Resized imageinfo.ImageInfo
	Steps   []types.Step
}

// New creates a Thumbnailer producing JPEG with the default engine.
func New() *Thumbnailer {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a Thumbnailer with custom configuration
func NewWithConfig(cfg Config) *Thumbnailer {
	t := &Thumbnailer{
		engine:    cfg.Engine,
		format:    cfg.OutputFormat,
		maxPixels: cfg.MaxPixels,
		logger:    zerolog.Nop(),
	}
	if t.engine == nil {
		t.engine = processing.NewProcessor()
	}
	if t.format == "" {
		t.format = types.OutputJPEG
	}
	if t.maxPixels <= 0 {
		t.maxPixels = DefaultMaxPixels
	}
	if cfg.Logger != nil {
		t.logger = *cfg.Logger
	}
	return t
}

// OutputFormat returns the encoding of generated thumbnails.
func (t *Thumbnailer) OutputFormat() types.OutputFormat {
	return t.format
}

// Generate produces a thumbnail of data for req. A logger attached to ctx
// with zerolog's WithContext takes precedence over the configured one.
func (t *Thumbnailer) Generate(ctx context.Context, data []byte, req types.ThumbnailRequest) (*Result, error) {
	log := t.loggerFrom(ctx)

	source := imageinfo.Sniff(data)
	if source.Format == imageinfo.Unknown {
		return nil, ErrUnknownFormat
	}
	log.Debug().
		Str("format", source.Format.String()).
		Str("mime", source.Format.MIMEType()).
		Int("width", source.Width).
		Int("height", source.Height).
		Msg("sniffed source")

	// The decoders allocate the whole frame from the header dimensions.
	if source.HasDimensions() && int64(source.Width)*int64(source.Height) > t.maxPixels {
		return nil, fmt.Errorf("%dx%d exceeds %d pixels: %w", source.Width, source.Height, t.maxPixels, ErrTooLarge)
	}

	pre, err := planner.PlanPreResize(source, req)
	if err != nil {
		return nil, err
	}

	img, err := t.engine.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err = t.engine.Apply(img, pre.Steps)
	if err != nil {
		return nil, fmt.Errorf("pre-resize transforms: %w", err)
	}

	intermediate, err := t.engine.Encode(img, types.OutputJPEG)
	if err != nil {
		return nil, err
	}

	// The resize only fixed one dimension; the engine chose the other.
	resized := imageinfo.Sniff(intermediate)
	post, err := pre.PlanPostResize(resized)
	if err != nil {
		return nil, err
	}

	steps := append(append([]types.Step{}, pre.Steps...), post...)
	log.Debug().
		Int("resized_width", resized.Width).
		Int("resized_height", resized.Height).
		Str("steps", types.FormatSteps(steps)).
		Msg("planned thumbnail")

	result := &Result{
		Format:  t.format,
		Source:  source,
		Resized: resized,
		Steps:   steps,
	}

	if len(post) == 0 && t.format == types.OutputJPEG {
		result.Data = intermediate
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err = t.engine.Apply(img, post)
	if err != nil {
		return nil, fmt.Errorf("post-resize transforms: %w", err)
	}

	result.Data, err = t.engine.Encode(img, t.format)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessFile is a convenience function that reads inputPath, generates a
// thumbnail and writes it to outputPath.
func (t *Thumbnailer) ProcessFile(ctx context.Context, inputPath, outputPath string, req types.ThumbnailRequest) (*Result, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	result, err := t.Generate(ctx, data, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate thumbnail for %s: %w", inputPath, err)
	}

	if err := os.WriteFile(outputPath, result.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write thumbnail: %w", err)
	}

	return result, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

func (t *Thumbnailer) loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &t.logger
}
