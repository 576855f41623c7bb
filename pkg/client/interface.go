package client

import (
	"context"
	"image"
	"net/http"

	"github.com/menta2k/image-thumbnailer/pkg/types"
)

// Response is an upstream reply. Non-200 responses are returned as-is so the
// caller can pass them through.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher retrieves a source image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Engine decodes, transforms and encodes images.
type Engine interface {
	Decode(data []byte) (image.Image, error)
	Crop(img image.Image, rect types.NormalizedRect) (image.Image, error)
	Resize(img image.Image, size types.Resize) (image.Image, error)
	Apply(img image.Image, steps []types.Step) (image.Image, error)
	Encode(img image.Image, format types.OutputFormat) ([]byte, error)
}
