// Package declump drives the full seeded-watershed pipeline: a distance
// field of the input labeling, a constrained local-maximum seed search over
// it, and a marker-controlled watershed that splits clumped objects along a
// basin derived from either the object shape or a reference intensity image.
package declump

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"declump/pkg/distfield"
	"declump/pkg/seeds"
	"declump/pkg/strel"
	"declump/pkg/volume"
	"declump/pkg/watershed"
)

// Method selects how the watershed basin is built.
type Method int

const (
	// Shape floods the negated distance field, splitting objects along
	// their morphological waists.
	Shape Method = iota
	// Intensity floods the inverted reference image, splitting objects
	// along dim ridges between bright cores.
	Intensity
)

// Params configures a Declumper. The zero value selects the Shape method
// with a disk/ball of radius 1, face connectivity, spacing 1 and no caps.
type Params struct {
	// Method selects the basin source; Intensity requires a reference
	// field passed to Run.
	Method Method

	// Sigma smooths the distance field (and the intensity basin) with a
	// Gaussian of this width. Zero disables smoothing.
	Sigma float64

	// MinDistance is the seed spacing constraint; zero selects the
	// default of 1.
	MinDistance int

	// ThresholdMode and Threshold gate seed candidates by field value.
	ThresholdMode seeds.ThresholdMode
	Threshold     float64

	// ExcludeBorder discards seeds within this many voxels of the image
	// boundary.
	ExcludeBorder int

	// MaxSeeds caps the total seed count; zero means no cap.
	MaxSeeds int

	// MaxSeedsPerObject caps the seed blobs within each labeled object;
	// zero means no cap. Excess blobs are dropped at random from the
	// injected source.
	MaxSeedsPerObject int

	// Element is the structuring element used to dilate seeds before
	// marker labeling. The zero value selects a disk or ball of radius 1
	// matching the image dimensionality.
	Element strel.Element

	// Connectivity drives the watershed flood; zero selects face
	// connectivity.
	Connectivity int

	// Pad extends the mask by one background voxel per side before the
	// distance transform.
	Pad bool
}

// Declumper runs the pipeline with fixed parameters. It is safe to reuse
// across images of different shapes.
type Declumper struct {
	params Params
	log    zerolog.Logger
	rng    *rand.Rand
}

// New returns a Declumper with a no-op logger and a time-seeded random
// source.
func New(p Params) *Declumper {
	return &Declumper{
		params: p,
		log:    zerolog.Nop(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetLogger injects the logger used for stage progress.
func (d *Declumper) SetLogger(log zerolog.Logger) {
	d.log = log
}

// SetRand injects the random source driving the per-object seed cap. A
// seeded source makes the whole pipeline deterministic.
func (d *Declumper) SetRand(rng *rand.Rand) {
	d.rng = rng
}

// Run splits the clumped objects of the label image and returns a
// contiguously relabeled result. The reference field is only consulted by
// the Intensity method and may be nil otherwise.
func (d *Declumper) Run(labels *volume.Labels, reference *volume.Field) (*volume.Labels, error) {
	seedMask, dist, err := d.findSeeds(labels)
	if err != nil {
		return nil, err
	}

	basin, err := d.basin(dist, reference)
	if err != nil {
		return nil, err
	}

	se, err := d.element(labels.NDim())
	if err != nil {
		return nil, err
	}

	connectivity := d.params.Connectivity
	if connectivity == 0 {
		connectivity = 1
	}

	out, err := watershed.Declump(labels, seedMask, se, basin, connectivity)
	if err != nil {
		return nil, err
	}

	d.log.Info().
		Int32("objects_in", labels.Max()).
		Int32("objects_out", out.Max()).
		Msg("declumping complete")

	return out, nil
}

// Seeds runs only the distance-field and seed-search stages, returning the
// final seed mask.
func (d *Declumper) Seeds(labels *volume.Labels) (*volume.Mask, error) {
	mask, _, err := d.findSeeds(labels)
	return mask, err
}

func (d *Declumper) findSeeds(labels *volume.Labels) (*volume.Mask, *volume.Field, error) {
	dist, err := distfield.Compute(labels.Foreground(), d.params.Sigma, d.params.Pad)
	if err != nil {
		return nil, nil, err
	}
	d.log.Debug().Float64("max_distance", floats.Max(dist.Data)).Msg("distance field computed")

	minDistance := d.params.MinDistance
	if minDistance == 0 {
		minDistance = 1
	}
	maxSeeds := d.params.MaxSeeds
	if maxSeeds == 0 {
		maxSeeds = seeds.NoLimit
	}

	mask, err := seeds.Find(dist, seeds.Params{
		MinDistance:   minDistance,
		ThresholdMode: d.params.ThresholdMode,
		Threshold:     d.params.Threshold,
		ExcludeBorder: d.params.ExcludeBorder,
		MaxSeeds:      maxSeeds,
	})
	if err != nil {
		return nil, nil, err
	}

	if d.params.MaxSeedsPerObject > 0 {
		mask, err = seeds.EnforceMaximum(labels, mask, d.params.MaxSeedsPerObject, d.rng)
		if err != nil {
			return nil, nil, err
		}
	}

	d.log.Debug().Int("seeds", mask.Count()).Msg("seed search complete")
	return mask, dist, nil
}

// basin builds the field the watershed floods. Shape inverts the distance
// field; Intensity inverts the normalized reference image and smooths it
// with the configured sigma.
func (d *Declumper) basin(dist *volume.Field, reference *volume.Field) (*volume.Field, error) {
	switch d.params.Method {
	case Shape:
		basin := dist.Clone()
		max := floats.Max(dist.Data)
		for i, v := range dist.Data {
			basin.Data[i] = max - v
		}
		return basin, nil

	case Intensity:
		if reference == nil {
			return nil, fmt.Errorf("%w: intensity declumping requires a reference field",
				volume.ErrInvalidArgument)
		}
		if !reference.EqualShape(dist.Shape()) {
			return nil, fmt.Errorf("%w: reference %v vs labels %v",
				volume.ErrShapeMismatch, reference.Shape(), dist.Shape())
		}

		basin := reference.Clone()
		lo, hi := floats.Min(basin.Data), floats.Max(basin.Data)
		if hi > lo {
			for i, v := range basin.Data {
				basin.Data[i] = 1 - (v-lo)/(hi-lo)
			}
		} else {
			for i := range basin.Data {
				basin.Data[i] = 0
			}
		}
		distfield.Smooth(basin, d.params.Sigma)
		return basin, nil

	default:
		return nil, fmt.Errorf("%w: unknown declumping method %d",
			volume.ErrInvalidArgument, d.params.Method)
	}
}

func (d *Declumper) element(ndim int) (strel.Element, error) {
	if d.params.Element.NDim() != 0 {
		return d.params.Element, nil
	}
	if ndim == 3 {
		return strel.Ball(1)
	}
	return strel.Disk(1)
}
