package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"declump/pkg/volume"
)

func TestLabelColorStable(t *testing.T) {
	if LabelColor(0) != (color.NRGBA{A: 255}) {
		t.Errorf("Background must render black, got %v", LabelColor(0))
	}

	seen := make(map[color.NRGBA]int32)
	for label := int32(1); label <= 16; label++ {
		c := LabelColor(label)
		if c.A != 255 {
			t.Errorf("Label %d color not opaque", label)
		}
		if c == (color.NRGBA{A: 255}) {
			t.Errorf("Label %d renders as background", label)
		}
		if prev, ok := seen[c]; ok {
			t.Errorf("Labels %d and %d share a color", prev, label)
		}
		seen[c] = label

		if c != LabelColor(label) {
			t.Errorf("Label %d color not stable", label)
		}
	}
}

func TestRenderSlice2D(t *testing.T) {
	labels, err := volume.NewLabels(2, 3)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	labels.Data[1] = 1
	labels.Data[5] = 2

	img, err := NewViewer(labels).RenderSlice("z", 0)
	if err != nil {
		t.Fatalf("RenderSlice failed: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 3 || bounds.Dy() != 2 {
		t.Fatalf("Expected a 3x2 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	if got := img.At(0, 0); got != (color.NRGBA{A: 255}) {
		t.Errorf("Background pixel should be black, got %v", got)
	}
	if got := img.At(1, 0); got != LabelColor(1) {
		t.Errorf("Pixel (1,0) should carry label 1's color")
	}
	if got := img.At(2, 1); got != LabelColor(2) {
		t.Errorf("Pixel (2,1) should carry label 2's color")
	}
}

func TestRenderSliceAxes(t *testing.T) {
	labels, err := volume.NewLabels(2, 3, 4)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	// One voxel at z=1, y=2, x=3.
	labels.Data[(1*3+2)*4+3] = 5

	v := NewViewer(labels)

	cases := []struct {
		axis     string
		position int
		w, h     int
		px, py   int
	}{
		{"z", 1, 4, 3, 3, 2},
		{"y", 2, 4, 2, 3, 1},
		{"x", 3, 2, 3, 1, 2},
	}
	for _, c := range cases {
		img, err := v.RenderSlice(c.axis, c.position)
		if err != nil {
			t.Fatalf("RenderSlice(%s, %d) failed: %v", c.axis, c.position, err)
		}
		if img.Bounds().Dx() != c.w || img.Bounds().Dy() != c.h {
			t.Errorf("Axis %s: expected %dx%d, got %dx%d",
				c.axis, c.w, c.h, img.Bounds().Dx(), img.Bounds().Dy())
		}
		if img.At(c.px, c.py) != LabelColor(5) {
			t.Errorf("Axis %s: voxel missing at (%d,%d)", c.axis, c.px, c.py)
		}
	}
}

func TestRenderSliceErrors(t *testing.T) {
	labels, err := volume.NewLabels(2, 3)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	v := NewViewer(labels)

	if _, err := v.RenderSlice("w", 0); err == nil {
		t.Errorf("Invalid axis should fail")
	}
	if _, err := v.RenderSlice("z", 1); err == nil {
		t.Errorf("Out-of-range position should fail")
	}
	if _, err := v.RenderSlice("z", -1); err == nil {
		t.Errorf("Negative position should fail")
	}
}

func TestSaveSliceSequence(t *testing.T) {
	labels, err := volume.NewLabels(3, 2, 2)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	labels.Data[0] = 1

	dir := filepath.Join(t.TempDir(), "slices")
	if err := NewViewer(labels).SaveSliceSequence("z", dir); err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read output dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 slice files, got %d", len(entries))
	}
	if entries[0].Name() != "slice_z_000.png" {
		t.Errorf("Unexpected first filename %s", entries[0].Name())
	}
}
