package imageio

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"declump/pkg/volume"
)

func writeGrayPNG(t *testing.T, path string, values [][]uint8) {
	t.Helper()

	h, w := len(values), len(values[0])
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: values[y][x]})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestSaveLoadLabelsRoundTrip(t *testing.T) {
	labels, err := volume.NewLabels(3, 4)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	labels.Data[0] = 1
	labels.Data[5] = 2
	labels.Data[11] = 300 // above the 8-bit range

	path := filepath.Join(t.TempDir(), "labels.png")
	if err := SaveLabels(labels, path); err != nil {
		t.Fatalf("SaveLabels failed: %v", err)
	}

	loaded, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}

	if !loaded.EqualShape(labels.Shape()) {
		t.Fatalf("Shape changed: %v vs %v", loaded.Shape(), labels.Shape())
	}
	for i := range labels.Data {
		if loaded.Data[i] != labels.Data[i] {
			t.Fatalf("Label mismatch at %d: %d vs %d", i, loaded.Data[i], labels.Data[i])
		}
	}
}

func TestLoadLabels8Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels8.png")
	writeGrayPNG(t, path, [][]uint8{
		{0, 1, 2},
		{0, 3, 0},
	})

	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}

	want := []int32{0, 1, 2, 0, 3, 0}
	for i, v := range want {
		if labels.Data[i] != v {
			t.Errorf("Pixel %d: expected label %d, got %d", i, v, labels.Data[i])
		}
	}
}

func TestLoadMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.png")
	writeGrayPNG(t, path, [][]uint8{
		{0, 200, 0},
		{200, 200, 50},
	})

	mask, err := LoadMask(path, 128)
	if err != nil {
		t.Fatalf("LoadMask failed: %v", err)
	}

	want := []bool{false, true, false, true, true, false}
	for i, v := range want {
		if mask.Data[i] != v {
			t.Errorf("Pixel %d: expected %v, got %v", i, v, mask.Data[i])
		}
	}
}

func TestSaveMaskRoundTrip(t *testing.T) {
	mask, err := volume.NewMask(2, 3)
	if err != nil {
		t.Fatalf("Failed to create mask: %v", err)
	}
	mask.Data[1] = true
	mask.Data[4] = true

	path := filepath.Join(t.TempDir(), "mask.png")
	if err := SaveMask(mask, path); err != nil {
		t.Fatalf("SaveMask failed: %v", err)
	}

	loaded, err := LoadMask(path, 128)
	if err != nil {
		t.Fatalf("LoadMask failed: %v", err)
	}
	for i := range mask.Data {
		if loaded.Data[i] != mask.Data[i] {
			t.Fatalf("Mask mismatch at %d", i)
		}
	}
}

func TestLoadReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.png")
	writeGrayPNG(t, path, [][]uint8{
		{0, 255},
		{128, 64},
	})

	field, err := LoadReference(path, []int{2, 2})
	if err != nil {
		t.Fatalf("LoadReference failed: %v", err)
	}

	if field.Data[0] != 0 {
		t.Errorf("Black pixel should be 0, got %g", field.Data[0])
	}
	if math.Abs(field.Data[1]-1) > 1e-9 {
		t.Errorf("White pixel should be 1, got %g", field.Data[1])
	}
	for i, v := range field.Data {
		if v < 0 || v > 1 {
			t.Errorf("Value %d outside [0,1]: %g", i, v)
		}
	}
}

func TestLoadReferenceResizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.png")
	writeGrayPNG(t, path, [][]uint8{
		{255, 255, 255, 255},
		{255, 255, 255, 255},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})

	field, err := LoadReference(path, []int{2, 2})
	if err != nil {
		t.Fatalf("LoadReference failed: %v", err)
	}
	if !field.EqualShape([]int{2, 2}) {
		t.Fatalf("Expected a 2x2 field, got %v", field.Shape())
	}
}

func TestLoadStackNumericOrder(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; numeric sort must put 1 < 2 < 10.
	writeGrayPNG(t, filepath.Join(dir, "slice_10.png"), [][]uint8{{3, 3}, {3, 3}})
	writeGrayPNG(t, filepath.Join(dir, "slice_1.png"), [][]uint8{{1, 1}, {1, 1}})
	writeGrayPNG(t, filepath.Join(dir, "slice_2.png"), [][]uint8{{2, 2}, {2, 2}})

	labels, err := LoadStack(dir)
	if err != nil {
		t.Fatalf("LoadStack failed: %v", err)
	}

	if !labels.EqualShape([]int{3, 2, 2}) {
		t.Fatalf("Expected a 3x2x2 volume, got %v", labels.Shape())
	}
	for z := 0; z < 3; z++ {
		want := int32(z + 1)
		if labels.Data[z*4] != want {
			t.Errorf("Plane %d should hold label %d, got %d", z, want, labels.Data[z*4])
		}
	}
}

func TestLoadStackRejectsMixedSizes(t *testing.T) {
	dir := t.TempDir()
	writeGrayPNG(t, filepath.Join(dir, "slice_1.png"), [][]uint8{{1, 1}, {1, 1}})
	writeGrayPNG(t, filepath.Join(dir, "slice_2.png"), [][]uint8{{1, 1, 1}, {1, 1, 1}})

	if _, err := LoadStack(dir); err == nil {
		t.Errorf("Mixed plane sizes should fail")
	}
}

func TestLoadStackEmptyDir(t *testing.T) {
	if _, err := LoadStack(t.TempDir()); err == nil {
		t.Errorf("Empty directory should fail")
	}
}

func TestSaveLabels3D(t *testing.T) {
	labels, err := volume.NewLabels(2, 2, 2)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	for i := range labels.Data {
		labels.Data[i] = int32(i + 1)
	}

	dir := filepath.Join(t.TempDir(), "out")
	if err := SaveLabels(labels, dir); err != nil {
		t.Fatalf("SaveLabels failed: %v", err)
	}

	loaded, err := LoadStack(dir)
	if err != nil {
		t.Fatalf("LoadStack failed: %v", err)
	}
	for i := range labels.Data {
		if loaded.Data[i] != labels.Data[i] {
			t.Fatalf("Label mismatch at %d: %d vs %d", i, loaded.Data[i], labels.Data[i])
		}
	}
}

func TestExtractNumber(t *testing.T) {
	cases := map[string]int{
		"slice_7.png":   7,
		"slice_010.png": 10,
		"plain.png":     0,
	}
	for name, want := range cases {
		if got := extractNumber(name); got != want {
			t.Errorf("extractNumber(%q) = %d, want %d", name, got, want)
		}
	}
}
