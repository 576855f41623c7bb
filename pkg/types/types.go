package types

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizedRect is a rectangle expressed as fractions of the current image
// width (Left, Right) and height (Top, Bottom), all in [0,1].
type NormalizedRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Valid reports whether 0 <= Left < Right <= 1 and 0 <= Top < Bottom <= 1.
// NaN coordinates are never valid.
func (r NormalizedRect) Valid() bool {
	return r.Left >= 0 && r.Left < r.Right && r.Right <= 1 &&
		r.Top >= 0 && r.Top < r.Bottom && r.Bottom <= 1
}

// Width returns the horizontal extent as a fraction of the image width.
func (r NormalizedRect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent as a fraction of the image height.
func (r NormalizedRect) Height() float64 { return r.Bottom - r.Top }

func (r NormalizedRect) String() string {
	return fmt.Sprintf("[%.4f,%.4f - %.4f,%.4f]", r.Left, r.Top, r.Right, r.Bottom)
}

// CropRegion is a caller supplied crop in source pixel coordinates.
type CropRegion struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// ThumbnailRequest describes the thumbnail to produce. A zero TargetHeight
// means the source is scaled by width only and never cropped to a ratio.
type ThumbnailRequest struct {
	TargetWidth  float64     `json:"target_width"`
	TargetHeight float64     `json:"target_height,omitempty"`
	Crop         *CropRegion `json:"crop,omitempty"`
}

// HasHeight reports whether the request constrains the height.
func (r ThumbnailRequest) HasHeight() bool { return r.TargetHeight > 0 }

// HasExplicitCrop reports whether a crop region is present with all four
// coordinates non-zero. A zero coordinate disables the explicit crop.
func (r ThumbnailRequest) HasExplicitCrop() bool {
	c := r.Crop
	return c != nil && c.X != 0 && c.Y != 0 && c.X2 != 0 && c.Y2 != 0
}

// Key returns a canonical form of the request, W x H followed by the crop
// coordinates when the crop applies. Requests that produce the same
// thumbnail share a key.
func (r ThumbnailRequest) Key() string {
	fields := []float64{r.TargetWidth, r.TargetHeight}
	if r.HasExplicitCrop() {
		fields = append(fields, r.Crop.X, r.Crop.Y, r.Crop.X2, r.Crop.Y2)
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, "x")
}

// Step is one transform in a thumbnail plan. The set of implementations is
// closed: Crop and Resize.
type Step interface {
	isStep()
	String() string
}

// Crop keeps the part of the image inside Rect.
type Crop struct {
	Rect NormalizedRect
}

// Resize scales the image. A zero Width or Height is unset and is derived by
// the engine from the source aspect ratio.
type Resize struct {
	Width  int
	Height int
}

func (Crop) isStep()   {}
func (Resize) isStep() {}

func (c Crop) String() string { return "crop" + c.Rect.String() }

func (r Resize) String() string {
	w, h := "auto", "auto"
	if r.Width > 0 {
		w = fmt.Sprint(r.Width)
	}
	if r.Height > 0 {
		h = fmt.Sprint(r.Height)
	}
	return "resize[" + w + "x" + h + "]"
}

// FormatSteps renders a plan for logs.
func FormatSteps(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}

// OutputFormat is the encoding of the produced thumbnail.
type OutputFormat string

const (
	OutputJPEG OutputFormat = "jpeg"
	OutputPNG  OutputFormat = "png"
	OutputWebP OutputFormat = "webp"
)

// ParseOutputFormat accepts jpeg, jpg, png and webp in any case.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg", "":
		return OutputJPEG, nil
	case "png":
		return OutputPNG, nil
	case "webp":
		return OutputWebP, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

// ContentType returns the MIME type of the encoded output.
func (f OutputFormat) ContentType() string {
	switch f {
	case OutputPNG:
		return "image/png"
	case OutputWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Extension returns the file extension without the dot.
func (f OutputFormat) Extension() string {
	if f == OutputJPEG || f == "" {
		return "jpg"
	}
	return string(f)
}
