package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"declump/pkg/config"
	"declump/pkg/declump"
	"declump/pkg/imageio"
	"declump/pkg/merge"
	"declump/pkg/metrics"
	"declump/pkg/visualization"
	"declump/pkg/volume"
)

func main() {
	inputPath := flag.String("input", "", "Label image, grayscale image, or directory of slices")
	referencePath := flag.String("reference", "", "Intensity image for the intensity method")
	method := flag.String("method", "", "Declumping method: shape or intensity (overrides config)")
	configPath := flag.String("config", "declump.yaml", "YAML configuration file")
	outputDir := flag.String("output", "", "Output directory (overrides config)")
	threshold := flag.Int("threshold", 0, "Treat the input as grayscale and threshold it at this level (1-255)")
	mergeEnabled := flag.Bool("merge", false, "Merge undersized objects into their dominant neighbor")
	mergeSize := flag.Float64("merge-size", 0, "Minimum object diameter for the merge pass (overrides config)")
	seedsOnly := flag.Bool("seeds-only", false, "Stop after seed finding and save the seed mask")
	slices := flag.Bool("slices", false, "Export colorized slices of the result")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Flags override the file where given.
	if *method != "" {
		cfg.Declump.Method = *method
	}
	if *outputDir != "" {
		cfg.Output.Directory = *outputDir
	}
	if *mergeEnabled {
		cfg.Merge.Enabled = true
	}
	if *mergeSize > 0 {
		cfg.Merge.Diameter = *mergeSize
	}
	if *slices {
		cfg.Output.SaveSlices = true
	}
	if *verbose || cfg.Output.Verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	labels, err := loadInput(*inputPath, *threshold)
	if err != nil {
		logger.Fatal().Err(err).Str("input", *inputPath).Msg("failed to load input")
	}
	logger.Info().
		Ints("shape", labels.Shape()).
		Int32("objects", volume.RelabelSequential(labels).Max()).
		Msg("input loaded")

	params, err := cfg.DeclumpParams(labels.NDim())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create output directory")
	}

	d := declump.New(params)
	d.SetLogger(logger)

	if *seedsOnly {
		if err := saveSeeds(d, labels, cfg.Output.Directory); err != nil {
			logger.Fatal().Err(err).Msg("seed finding failed")
		}
		return
	}

	var reference *volume.Field
	if params.Method == declump.Intensity {
		if *referencePath == "" {
			logger.Fatal().Msg("the intensity method requires -reference")
		}
		reference, err = imageio.LoadReference(*referencePath, labels.Shape())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load reference image")
		}
	}

	out, err := d.Run(labels, reference)
	if err != nil {
		logger.Fatal().Err(err).Msg("declumping failed")
	}

	if cfg.Merge.Enabled {
		mergeParams, err := cfg.MergeParams()
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid merge configuration")
		}
		merged, err := merge.Objects(out, mergeParams)
		if err != nil {
			logger.Fatal().Err(err).Msg("merge failed")
		}
		logger.Info().
			Int32("before", out.Max()).
			Int32("after", merged.Max()).
			Msg("merge complete")
		out = merged
	}

	summary := metrics.Summarize(out)
	logger.Info().
		Int("objects", summary.ObjectCount).
		Int("voxels", summary.TotalVoxels).
		Float64("mean_size", summary.MeanSize).
		Float64("median_size", summary.MedianSize).
		Float64("centroid_spacing", summary.MeanCentroidSpacing).
		Msg("segmentation summary")

	if err := saveLabels(out, cfg.Output.Directory); err != nil {
		logger.Fatal().Err(err).Msg("failed to save labels")
	}

	if cfg.Output.SaveSlices {
		viewer := visualization.NewViewer(out)
		axes := []string{"z"}
		if out.NDim() == 3 {
			axes = []string{"x", "y", "z"}
		}
		for _, axis := range axes {
			dir := filepath.Join(cfg.Output.Directory, "slices", axis)
			if err := viewer.SaveSliceSequence(axis, dir); err != nil {
				logger.Error().Err(err).Str("axis", axis).Msg("failed to save slices")
			}
		}
	}

	logger.Info().Str("output", cfg.Output.Directory).Msg("done")
}

// loadInput reads the labeling to declump. A directory loads as a slice
// stack; with a threshold the input is read as grayscale, thresholded, and
// component-labeled; otherwise pixel values are taken as labels.
func loadInput(path string, threshold int) (*volume.Labels, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return imageio.LoadStack(path)
	}

	if threshold > 0 {
		mask, err := imageio.LoadMask(path, uint8(threshold))
		if err != nil {
			return nil, err
		}
		labels, _, err := volume.Components(mask, 1)
		return labels, err
	}

	return imageio.LoadLabels(path)
}

func saveSeeds(d *declump.Declumper, labels *volume.Labels, dir string) error {
	mask, err := d.Seeds(labels)
	if err != nil {
		return err
	}

	if mask.NDim() == 2 {
		return imageio.SaveMask(mask, filepath.Join(dir, "seeds.png"))
	}

	seedLabels, err := volume.NewLabels(mask.Shape()...)
	if err != nil {
		return err
	}
	for i, on := range mask.Data {
		if on {
			seedLabels.Data[i] = 1
		}
	}
	return imageio.SaveLabels(seedLabels, filepath.Join(dir, "seeds"))
}

func saveLabels(labels *volume.Labels, dir string) error {
	if labels.NDim() == 2 {
		return imageio.SaveLabels(labels, filepath.Join(dir, "labels.png"))
	}
	return imageio.SaveLabels(labels, filepath.Join(dir, "labels"))
}
