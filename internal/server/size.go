package server

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/image-thumbnailer/pkg/types"
)

// ErrInvalidSize is returned for a size segment that is not W, WxH or
// WxHxXxYxX2xY2.
var ErrInvalidSize = errors.New("invalid size")

// ParseSize parses the size path segment into a request. Every field is a
// decimal number and fields are separated by 'x'. A bare width takes
// defaultHeight; an explicit zero height means width-only scaling.
func ParseSize(s string, defaultHeight float64) (types.ThumbnailRequest, error) {
	parts := strings.Split(s, "x")
	switch len(parts) {
	case 1, 2, 6:
	default:
		return types.ThumbnailRequest{}, fmt.Errorf("%q: %w", s, ErrInvalidSize)
	}

	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return types.ThumbnailRequest{}, fmt.Errorf("%q: %w", s, ErrInvalidSize)
		}
		values[i] = v
	}

	req := types.ThumbnailRequest{TargetWidth: values[0], TargetHeight: defaultHeight}
	if len(values) > 1 {
		req.TargetHeight = values[1]
	}
	if len(values) == 6 {
		req.Crop = &types.CropRegion{X: values[2], Y: values[3], X2: values[4], Y2: values[5]}
	}
	return req, nil
}
