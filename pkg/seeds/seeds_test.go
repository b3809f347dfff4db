package seeds

import (
	"errors"
	"math/rand"
	"testing"

	"declump/pkg/volume"
)

// fieldFrom2D builds a field from row-major 2D values
func fieldFrom2D(t *testing.T, rows [][]float64) *volume.Field {
	t.Helper()

	field, err := volume.NewField(len(rows), len(rows[0]))
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}
	for y, row := range rows {
		for x, v := range row {
			field.Data[y*len(row)+x] = v
		}
	}
	return field
}

func seedIndices(mask *volume.Mask) []int {
	var out []int
	for i, v := range mask.Data {
		if v {
			out = append(out, i)
		}
	}
	return out
}

func TestFindTwoPeaks(t *testing.T) {
	field := fieldFrom2D(t, [][]float64{
		{0, 0, 0, 0, 0, 0, 0},
		{0, 1, 2, 0, 1, 3, 0},
		{0, 1, 1, 0, 1, 1, 0},
		{0, 0, 0, 0, 0, 0, 0},
	})

	mask, err := Find(field, Params{MinDistance: 1, MaxSeeds: NoLimit})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := seedIndices(mask)
	want := []int{1*7 + 2, 1*7 + 5}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected seeds at %v, got %v", want, got)
	}
}

func TestFindMinDistanceSuppression(t *testing.T) {
	// Two peaks 2 apart: with MinDistance 2 the weaker one falls inside
	// the stronger one's hypercube and is suppressed.
	field := fieldFrom2D(t, [][]float64{
		{0, 0, 0, 0, 0},
		{0, 3, 0, 2, 0},
		{0, 0, 0, 0, 0},
	})

	mask, err := Find(field, Params{MinDistance: 2, MaxSeeds: NoLimit})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := seedIndices(mask)
	if len(got) != 1 || got[0] != 1*5+1 {
		t.Errorf("Expected only the stronger peak at 6, got %v", got)
	}
}

func TestFindRelativeThreshold(t *testing.T) {
	field := fieldFrom2D(t, [][]float64{
		{0, 0, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 4, 0},
		{0, 0, 0, 0, 0, 0, 0},
	})

	// threshold = 0 + 0.5*(4-0) = 2: the weak peak is rejected.
	mask, err := Find(field, Params{
		MinDistance:   1,
		ThresholdMode: Relative,
		Threshold:     0.5,
		MaxSeeds:      NoLimit,
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := seedIndices(mask)
	if len(got) != 1 || got[0] != 1*7+5 {
		t.Errorf("Expected only the strong peak, got %v", got)
	}
}

func TestFindAbsoluteThreshold(t *testing.T) {
	field := fieldFrom2D(t, [][]float64{
		{0, 0, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 4, 0},
		{0, 0, 0, 0, 0, 0, 0},
	})

	mask, err := Find(field, Params{
		MinDistance:   1,
		ThresholdMode: Absolute,
		Threshold:     3.5,
		MaxSeeds:      NoLimit,
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := seedIndices(mask)
	if len(got) != 1 || got[0] != 1*7+5 {
		t.Errorf("Expected only the peak above 3.5, got %v", got)
	}
}

func TestFindExcludeBorder(t *testing.T) {
	field := fieldFrom2D(t, [][]float64{
		{5, 0, 0, 0, 0},
		{0, 0, 0, 3, 0},
		{0, 0, 0, 0, 0},
	})

	mask, err := Find(field, Params{MinDistance: 1, ExcludeBorder: 1, MaxSeeds: NoLimit})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := seedIndices(mask)
	if len(got) != 1 || got[0] != 1*5+3 {
		t.Errorf("Border peak should be excluded, got %v", got)
	}
}

func TestFindMaxSeedsCap(t *testing.T) {
	field := fieldFrom2D(t, [][]float64{
		{0, 0, 0, 0, 0, 0, 0, 0, 0},
		{0, 5, 0, 0, 3, 0, 0, 4, 0},
		{0, 0, 0, 0, 0, 0, 0, 0, 0},
	})

	mask, err := Find(field, Params{MinDistance: 1, MaxSeeds: 2})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := seedIndices(mask)
	if len(got) != 2 {
		t.Fatalf("Cap of 2: expected 2 seeds, got %d", len(got))
	}
	// The strongest two peaks (5 and 4) survive.
	if got[0] != 1*9+1 || got[1] != 1*9+7 {
		t.Errorf("Expected the two strongest peaks, got %v", got)
	}
}

func TestFindCapTieBreak(t *testing.T) {
	// Four equal peaks, cap of 2: ties resolve by ascending flat index.
	field := fieldFrom2D(t, [][]float64{
		{0, 0, 0, 0, 0, 0, 0, 0, 0},
		{0, 2, 0, 2, 0, 2, 0, 2, 0},
		{0, 0, 0, 0, 0, 0, 0, 0, 0},
	})

	mask, err := Find(field, Params{MinDistance: 1, MaxSeeds: 2})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := seedIndices(mask)
	if len(got) != 2 || got[0] != 1*9+1 || got[1] != 1*9+3 {
		t.Errorf("Ties should break by ascending index, got %v", got)
	}
}

func TestFindSeedCountBound(t *testing.T) {
	field := fieldFrom2D(t, [][]float64{
		{1, 0, 1, 0, 1, 0, 1},
		{0, 1, 0, 1, 0, 1, 0},
		{1, 0, 1, 0, 1, 0, 1},
	})

	for _, limit := range []int{0, 1, 3, 100} {
		mask, err := Find(field, Params{MinDistance: 1, MaxSeeds: limit})
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if mask.Count() > limit {
			t.Errorf("Cap %d violated: %d seeds", limit, mask.Count())
		}
	}
}

func TestFindEmptyField(t *testing.T) {
	field, err := volume.NewField(6, 6)
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}

	mask, err := Find(field, Params{MinDistance: 1, MaxSeeds: NoLimit})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if mask.Count() != 0 {
		t.Errorf("All-zero field should yield no seeds, got %d", mask.Count())
	}
}

func TestFindValidation(t *testing.T) {
	field, err := volume.NewField(4, 4)
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}

	if _, err := Find(field, Params{MinDistance: -2}); !errors.Is(err, volume.ErrInvalidArgument) {
		t.Errorf("Negative min distance: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := Find(field, Params{MinDistance: 1, ExcludeBorder: -1}); !errors.Is(err, volume.ErrInvalidArgument) {
		t.Errorf("Negative border: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := Find(field, Params{MinDistance: 1, ThresholdMode: Relative, Threshold: 1.5}); !errors.Is(err, volume.ErrInvalidArgument) {
		t.Errorf("Relative threshold above 1: expected ErrInvalidArgument, got %v", err)
	}
}

func TestFindDefaultMinDistance(t *testing.T) {
	// MinDistance NoLimit behaves as the default spacing of 1.
	field := fieldFrom2D(t, [][]float64{
		{0, 0, 0, 0, 0},
		{0, 2, 0, 3, 0},
		{0, 0, 0, 0, 0},
	})

	sentinel, err := Find(field, Params{MinDistance: NoLimit, MaxSeeds: NoLimit})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	explicit, err := Find(field, Params{MinDistance: 1, MaxSeeds: NoLimit})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	for i := range sentinel.Data {
		if sentinel.Data[i] != explicit.Data[i] {
			t.Fatalf("Sentinel and explicit spacing disagree at %d", i)
		}
	}
}

func TestEnforceMaximumReducesToCap(t *testing.T) {
	labels, err := volume.NewLabels(5, 9)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	// One object covering the whole image.
	for i := range labels.Data {
		labels.Data[i] = 1
	}

	seedMask, err := volume.NewMask(5, 9)
	if err != nil {
		t.Fatalf("Failed to create mask: %v", err)
	}
	// Four isolated seed blobs.
	for _, idx := range []int{1*9 + 1, 1*9 + 4, 3*9 + 2, 3*9 + 6} {
		seedMask.Data[idx] = true
	}

	rng := rand.New(rand.NewSource(42))
	capped, err := EnforceMaximum(labels, seedMask, 2, rng)
	if err != nil {
		t.Fatalf("EnforceMaximum failed: %v", err)
	}
	if capped.Count() != 2 {
		t.Errorf("Expected exactly 2 seeds after capping, got %d", capped.Count())
	}

	// A fixed source must reproduce the same selection.
	rng = rand.New(rand.NewSource(42))
	again, err := EnforceMaximum(labels, seedMask, 2, rng)
	if err != nil {
		t.Fatalf("EnforceMaximum failed: %v", err)
	}
	for i := range capped.Data {
		if capped.Data[i] != again.Data[i] {
			t.Fatalf("Capping not reproducible with a fixed source at %d", i)
		}
	}

	// The input mask stays untouched.
	if seedMask.Count() != 4 {
		t.Errorf("Input seed mask was mutated: %d seeds left", seedMask.Count())
	}
}

func TestEnforceMaximumRespectsObjects(t *testing.T) {
	labels, err := volume.NewLabels(3, 8)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	// Object 1 on the left half, object 2 on the right.
	for y := 0; y < 3; y++ {
		for x := 0; x < 8; x++ {
			if x < 4 {
				labels.Data[y*8+x] = 1
			} else {
				labels.Data[y*8+x] = 2
			}
		}
	}

	seedMask, err := volume.NewMask(3, 8)
	if err != nil {
		t.Fatalf("Failed to create mask: %v", err)
	}
	// Two seeds in object 1, one in object 2.
	seedMask.Data[0*8+0] = true
	seedMask.Data[2*8+2] = true
	seedMask.Data[1*8+6] = true

	capped, err := EnforceMaximum(labels, seedMask, 1, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("EnforceMaximum failed: %v", err)
	}

	if capped.Count() != 2 {
		t.Fatalf("Expected 2 seeds (one per object), got %d", capped.Count())
	}
	if !capped.Data[1*8+6] {
		t.Errorf("Object 2 was under its cap; its seed must survive")
	}
}

func TestEnforceMaximumNoCap(t *testing.T) {
	labels, err := volume.NewLabels(2, 2)
	if err != nil {
		t.Fatalf("Failed to create labels: %v", err)
	}
	seedMask, err := volume.NewMask(2, 2)
	if err != nil {
		t.Fatalf("Failed to create mask: %v", err)
	}
	seedMask.Data[0] = true

	out, err := EnforceMaximum(labels, seedMask, 0, nil)
	if err != nil {
		t.Fatalf("EnforceMaximum failed: %v", err)
	}
	if out.Count() != 1 {
		t.Errorf("No cap should leave the mask unchanged")
	}
}
