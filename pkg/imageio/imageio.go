// Package imageio loads and saves the images the CLI works with: label
// images, grayscale masks, intensity references and slice-stack directories.
// Labels travel as 16-bit grayscale so values above 255 survive a round
// trip; everything else goes through the imaging helpers.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/jpeg"

	"declump/internal/models"
	"declump/pkg/volume"
)

// LoadLabels reads a 2D label image from a grayscale file. Pixel values map
// directly to labels, 0 meaning background.
func LoadLabels(path string) (*volume.Labels, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	return imageLabels(img)
}

// LoadMask reads a grayscale image and thresholds it into a foreground
// mask: pixels at or above level become foreground.
func LoadMask(path string, level uint8) (*volume.Mask, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	gray := segment.Threshold(img, level)

	bounds := gray.Bounds()
	mask, err := volume.NewMask(bounds.Dy(), bounds.Dx())
	if err != nil {
		return nil, err
	}
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			mask.Data[y*bounds.Dx()+x] = gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y > 0
		}
	}

	return mask, nil
}

// LoadReference reads an intensity image, resizes it to the given 2D shape
// if necessary, and normalizes it to [0,1].
func LoadReference(path string, shape []int) (*volume.Field, error) {
	if len(shape) != 2 {
		return nil, fmt.Errorf("reference images must be 2D, target shape is %dD", len(shape))
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	height, width := shape[0], shape[1]
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	field, err := volume.NewField(height, width)
	if err != nil {
		return nil, err
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y)).(color.Gray16)
			field.Data[y*width+x] = float64(g.Y) / 65535.0
		}
	}

	return field, nil
}

// ReadStack loads every image in a directory as one stack, ordered by the
// numeric part of the filenames. All planes must share the same dimensions.
func ReadStack(dir string) (*models.Stack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif":
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}

	sort.Slice(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})

	stack := &models.Stack{}
	for i, name := range names {
		img, err := decodeImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		bounds := img.Bounds()
		if i == 0 {
			stack.Width = bounds.Dx()
			stack.Height = bounds.Dy()
		} else if bounds.Dx() != stack.Width || bounds.Dy() != stack.Height {
			return nil, fmt.Errorf("plane %s is %dx%d, stack is %dx%d",
				name, bounds.Dx(), bounds.Dy(), stack.Width, stack.Height)
		}

		stack.Slices = append(stack.Slices, models.Slice{
			Image:    img,
			Index:    i,
			Filename: name,
		})
	}

	return stack, nil
}

// StackLabels assembles a stack of grayscale label planes into a 3D label
// volume, plane index becoming the z coordinate.
func StackLabels(stack *models.Stack) (*volume.Labels, error) {
	labels, err := volume.NewLabels(stack.Depth(), stack.Height, stack.Width)
	if err != nil {
		return nil, err
	}

	planeLen := stack.Height * stack.Width
	for z, slice := range stack.Slices {
		plane, err := imageLabels(slice.Image)
		if err != nil {
			return nil, err
		}
		copy(labels.Data[z*planeLen:(z+1)*planeLen], plane.Data)
	}

	return labels, nil
}

// LoadStack reads a slice directory straight into a 3D label volume.
func LoadStack(dir string) (*volume.Labels, error) {
	stack, err := ReadStack(dir)
	if err != nil {
		return nil, err
	}
	return StackLabels(stack)
}

// SaveLabels writes a labeling as 16-bit grayscale PNG. 2D labelings go to
// path directly; 3D labelings treat path as a directory receiving one
// numbered plane per z.
func SaveLabels(labels *volume.Labels, path string) error {
	if labels.NDim() == 2 {
		return writeLabelPlane(labels.Data, labels.Shape()[1], labels.Shape()[0], path)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	shape := labels.Shape()
	planeLen := shape[1] * shape[2]
	for z := 0; z < shape[0]; z++ {
		name := filepath.Join(path, fmt.Sprintf("labels_%03d.png", z))
		plane := labels.Data[z*planeLen : (z+1)*planeLen]
		if err := writeLabelPlane(plane, shape[2], shape[1], name); err != nil {
			return err
		}
	}

	return nil
}

// SaveMask writes a mask as a black-and-white image; the format follows the
// file extension.
func SaveMask(mask *volume.Mask, path string) error {
	if mask.NDim() != 2 {
		return fmt.Errorf("mask images must be 2D, got %dD", mask.NDim())
	}

	shape := mask.Shape()
	img := image.NewGray(image.Rect(0, 0, shape[1], shape[0]))
	for y := 0; y < shape[0]; y++ {
		for x := 0; x < shape[1]; x++ {
			if mask.Data[y*shape[1]+x] {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	return imaging.Save(img, path)
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func imageLabels(img image.Image) (*volume.Labels, error) {
	bounds := img.Bounds()
	labels, err := volume.NewLabels(bounds.Dy(), bounds.Dx())
	if err != nil {
		return nil, err
	}

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			labels.Data[y*bounds.Dx()+x] = int32(labelFromGray(img, g))
		}
	}

	return labels, nil
}

// labelFromGray undoes the 8-to-16-bit expansion the color model applies to
// 8-bit sources, so a pixel painted 3 in an 8-bit file loads as label 3.
func labelFromGray(img image.Image, g color.Gray16) uint16 {
	switch img.(type) {
	case *image.Gray16, *image.NRGBA64, *image.RGBA64:
		return g.Y
	default:
		return uint16(g.Y >> 8)
	}
}

func writeLabelPlane(data []int32, width, height int, path string) error {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := data[y*width+x]
			if v < 0 {
				v = 0
			} else if v > 65535 {
				v = 65535
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	return png.Encode(file, img)
}

// extractNumber extracts the numeric part of a filename for stack ordering.
func extractNumber(filename string) int {
	numStr := ""
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}
	return 0
}
