// Package visualization renders label images for inspection. Each label
// gets a stable color from a golden-angle hue walk, so the same object id
// always renders the same color across slices and runs.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"declump/pkg/volume"
)

// goldenAngle in degrees; successive hues land far apart so neighboring
// labels stay distinguishable.
const goldenAngle = 137.50776405003785

// LabelColor returns the color assigned to a label. Background (0) is
// black; every positive label maps to a fixed saturated hue.
func LabelColor(label int32) color.NRGBA {
	if label <= 0 {
		return color.NRGBA{A: 255}
	}

	hue := math.Mod(float64(label-1)*goldenAngle, 360)
	r, g, b := colorful.Hsv(hue, 0.65, 0.95).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Viewer renders slices of a label image or volume.
type Viewer struct {
	labels *volume.Labels

	width  int
	height int
	depth  int
}

// NewViewer creates a viewer over the given labeling. 2D labelings behave
// as a volume of depth 1.
func NewViewer(labels *volume.Labels) *Viewer {
	shape := labels.Shape()

	v := &Viewer{labels: labels, depth: 1}
	if labels.NDim() == 3 {
		v.depth = shape[0]
		v.height = shape[1]
		v.width = shape[2]
	} else {
		v.height = shape[0]
		v.width = shape[1]
	}

	return v
}

func (v *Viewer) at(z, y, x int) int32 {
	return v.labels.Data[(z*v.height+y)*v.width+x]
}

// RenderSlice renders a 2D slice of the labeling along the specified axis.
func (v *Viewer) RenderSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.NRGBA

	switch axis {
	case "x", "X":
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}

		img = image.NewNRGBA(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetNRGBA(z, y, LabelColor(v.at(z, y, position)))
			}
		}

	case "y", "Y":
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}

		img = image.NewNRGBA(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetNRGBA(x, z, LabelColor(v.at(z, position, x)))
			}
		}

	case "z", "Z":
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}

		img = image.NewNRGBA(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetNRGBA(x, y, LabelColor(v.at(position, y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves a rendered slice; the format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// SaveSliceSequence renders and saves every slice along the specified axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.RenderSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
