package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	thumbnailer "github.com/menta2k/image-thumbnailer"
	"github.com/menta2k/image-thumbnailer/internal/config"
	"github.com/menta2k/image-thumbnailer/internal/logger"
	"github.com/menta2k/image-thumbnailer/internal/server"
	"github.com/menta2k/image-thumbnailer/internal/utils"
	"github.com/menta2k/image-thumbnailer/pkg/fetch"
	"github.com/menta2k/image-thumbnailer/pkg/imageinfo"
	"github.com/menta2k/image-thumbnailer/pkg/processing"
	"github.com/menta2k/image-thumbnailer/pkg/types"
)

func main() {
	var in, size, crop, out, format, level string
	var quality int
	var lossless bool

	flag.StringVar(&in, "in", "", "input image path or URL (gif/png/jpg)")
	flag.StringVar(&size, "size", "125x125", "target size: W, WxH or Wx0 for width-only")
	flag.StringVar(&crop, "crop", "", "explicit source crop in pixels: x,y,x2,y2")
	flag.StringVar(&out, "out", "", "output file or directory (default: next to the input)")
	flag.StringVar(&format, "format", "jpeg", "output format: jpeg|png|webp")
	flag.IntVar(&quality, "quality", 85, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.StringVar(&level, "log-level", "info", "log level")
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, "development", level)

	if in == "" {
		log.Fatal().Msgf("usage: %s -in input.jpg|URL [-size 125x125] [-crop x,y,x2,y2] [-out path] [-format jpeg|png|webp]", filepath.Base(os.Args[0]))
	}

	req, err := server.ParseSize(size, config.Default().Thumbnail.DefaultHeight)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -size")
	}
	if crop != "" {
		if req.Crop, err = parseCrop(crop); err != nil {
			log.Fatal().Err(err).Msg("bad -crop")
		}
	}

	outFormat, err := types.ParseOutputFormat(format)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -format")
	}

	ctx := log.WithContext(context.Background())

	data, err := load(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("could not load input")
	}

	info := imageinfo.Sniff(data)
	log.Info().
		Str("format", info.Format.String()).
		Int("width", info.Width).
		Int("height", info.Height).
		Str("size", utils.FormatFileSize(int64(len(data)))).
		Msg("source")

	thumbs := thumbnailer.NewWithConfig(thumbnailer.Config{
		Engine: processing.NewProcessorWithConfig(processing.Config{
			JPEGQuality:  quality,
			WebPQuality:  float32(quality),
			WebPLossless: lossless,
		}),
		OutputFormat: outFormat,
	})

	result, err := thumbs.Generate(ctx, data, req)
	if err != nil {
		log.Fatal().Err(err).Msg("thumbnail failed")
	}

	outPath := outputPath(in, out, size, outFormat)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("could not create output directory")
	}
	if err := os.WriteFile(outPath, result.Data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("could not write thumbnail")
	}

	log.Info().
		Str("steps", types.FormatSteps(result.Steps)).
		Int("resized_width", result.Resized.Width).
		Int("resized_height", result.Resized.Height).
		Msg("plan")
	log.Info().
		Str("path", outPath).
		Str("size", utils.FormatFileSize(int64(len(result.Data)))).
		Msg("wrote thumbnail")
}

func load(ctx context.Context, in string) ([]byte, error) {
	if !strings.HasPrefix(in, "http://") && !strings.HasPrefix(in, "https://") {
		return os.ReadFile(in)
	}

	resp, err := fetch.New().Fetch(ctx, in)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", in, resp.StatusCode)
	}
	return resp.Body, nil
}

func parseCrop(s string) (*types.CropRegion, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected x,y,x2,y2, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("crop field %d: %w", i+1, err)
		}
		v[i] = f
	}
	return &types.CropRegion{X: v[0], Y: v[1], X2: v[2], Y2: v[3]}, nil
}

// outputPath resolves -out: empty means next to the input, an existing
// directory or a trailing separator means a generated name inside it.
func outputPath(in, out, size string, format types.OutputFormat) string {
	suffix := "_" + size
	if out == "" {
		return utils.GenerateOutputFilename(in, "", suffix, format.Extension())
	}
	if st, err := os.Stat(out); (err == nil && st.IsDir()) || strings.HasSuffix(out, string(os.PathSeparator)) {
		return utils.GenerateOutputFilename(in, out, suffix, format.Extension())
	}
	return out
}
