// Package planner computes the crop and resize steps that turn a source image
// into a thumbnail of a target size.
//
// Planning is a two-step protocol. PlanPreResize looks at the source
// dimensions and returns the explicit crop (if any) and a single resize along
// the binding dimension. After the engine has executed those steps the caller
// sniffs the result and hands the new dimensions to PlanPostResize, which
// returns the centered crop down to the target aspect ratio.
//
//	pre, err := planner.PlanPreResize(info, req)
//	img = engine.Apply(img, pre.Steps)
//	post, err := pre.PlanPostResize(imageinfo.Sniff(encoded))
//	img = engine.Apply(img, post)
//
// All functions are pure and safe for concurrent use.
package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/image-thumbnailer/pkg/imageinfo"
	"github.com/menta2k/image-thumbnailer/pkg/types"
)

var (
	// ErrInvalidDimensions is returned when a width or height needed for the
	// aspect ratio math is zero or unknown.
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	// ErrInvalidCrop is returned when an explicit crop does not map to a
	// rectangle inside the source image.
	ErrInvalidCrop = errors.New("invalid crop region")
	// ErrInvalidTarget is returned for a target width below one pixel or a
	// target height that is negative or between zero and one pixel.
	ErrInvalidTarget = errors.New("invalid target size")
)

// PreResizePlan is the result of the first planning stage.
type PreResizePlan struct {
	// Steps run in order on the source image.
	Steps []types.Step
	// Cropped is set when Steps contains the caller's explicit crop. The
	// second stage then never crops again.
	Cropped bool

	request types.ThumbnailRequest
}

// Request returns the request the plan was built for.
func (p *PreResizePlan) Request() types.ThumbnailRequest {
	return p.request
}

// PlanPreResize plans the explicit crop and the resize for a source image.
func PlanPreResize(source imageinfo.ImageInfo, req types.ThumbnailRequest) (*PreResizePlan, error) {
	if err := validateTarget(req); err != nil {
		return nil, err
	}
	if !source.HasDimensions() {
		return nil, fmt.Errorf("source %dx%d: %w", source.Width, source.Height, ErrInvalidDimensions)
	}

	plan := &PreResizePlan{request: req}
	width, height := float64(source.Width), float64(source.Height)
	ratio := source.AspectRatio()

	if req.HasExplicitCrop() {
		c := req.Crop
		rect := types.NormalizedRect{
			Left:   c.X / width,
			Top:    c.Y / height,
			Right:  c.X2 / width,
			Bottom: c.Y2 / height,
		}
		if !rect.Valid() {
			return nil, fmt.Errorf("crop %v,%v,%v,%v on %dx%d: %w",
				c.X, c.Y, c.X2, c.Y2, source.Width, source.Height, ErrInvalidCrop)
		}
		plan.Steps = append(plan.Steps, types.Crop{Rect: rect})
		plan.Cropped = true
	}

	// Scale along the binding dimension so the other one ends up at least as
	// large as the target and the second stage only ever trims.
	if !req.HasHeight() || ratio < req.TargetWidth/req.TargetHeight {
		plan.Steps = append(plan.Steps, types.Resize{Width: int(req.TargetWidth)})
	} else {
		plan.Steps = append(plan.Steps, types.Resize{Height: int(req.TargetHeight)})
	}

	return plan, nil
}

// PlanPostResize plans the centered crop to the target aspect ratio from the
// dimensions of the resized image. It returns no steps when the first stage
// already applied an explicit crop or the request has no height.
func (p *PreResizePlan) PlanPostResize(resized imageinfo.ImageInfo) ([]types.Step, error) {
	req := p.request
	if p.Cropped || !req.HasHeight() || req.TargetWidth <= 0 {
		return nil, nil
	}
	if !resized.HasDimensions() {
		return nil, fmt.Errorf("resized %dx%d: %w", resized.Width, resized.Height, ErrInvalidDimensions)
	}

	rect := CenteredCrop(float64(resized.Width), float64(resized.Height), req.TargetWidth, req.TargetHeight)
	return []types.Step{types.Crop{Rect: rect}}, nil
}

// CenteredCrop returns the rectangle that trims a w x h image equally from
// both edges of its excess dimension so that it matches the targetW/targetH
// ratio. All arguments must be positive.
func CenteredCrop(w, h, targetW, targetH float64) types.NormalizedRect {
	if w/h > targetW/targetH {
		off := math.Max((w-targetW/targetH*h)/w/2, 0)
		return types.NormalizedRect{Left: off, Top: 0, Right: 1 - off, Bottom: 1}
	}
	// rounding can push a matching ratio slightly negative
	off := math.Max((h-targetH/targetW*w)/h/2, 0)
	return types.NormalizedRect{Left: 0, Top: off, Right: 1, Bottom: 1 - off}
}

func validateTarget(req types.ThumbnailRequest) error {
	if !(req.TargetWidth >= 1) || math.IsInf(req.TargetWidth, 0) {
		return fmt.Errorf("target width %v: %w", req.TargetWidth, ErrInvalidTarget)
	}
	if req.TargetHeight < 0 || (req.TargetHeight > 0 && req.TargetHeight < 1) ||
		math.IsNaN(req.TargetHeight) || math.IsInf(req.TargetHeight, 0) {
		return fmt.Errorf("target height %v: %w", req.TargetHeight, ErrInvalidTarget)
	}
	return nil
}
