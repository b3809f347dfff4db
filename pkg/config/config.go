// Package config provides configuration loading and management for declump.
// It handles loading configuration from YAML files, provides default values
// and converts the file representation into the typed parameter structs the
// pipeline packages consume.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"declump/pkg/declump"
	"declump/pkg/merge"
	"declump/pkg/seeds"
	"declump/pkg/strel"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Declumping pipeline parameters
	Declump struct {
		// Method selects the basin source: "shape" or "intensity"
		Method string `yaml:"method"`

		// Sigma is the Gaussian smoothing width for the distance field
		Sigma float64 `yaml:"sigma"`

		// MinDistance is the minimum seed spacing in voxels
		MinDistance int `yaml:"minDistance"`

		// ThresholdMode selects "relative" or "absolute" seed thresholding
		ThresholdMode string `yaml:"thresholdMode"`

		// Threshold is the seed threshold in the chosen mode's units
		Threshold float64 `yaml:"threshold"`

		// ExcludeBorder discards seeds within this many voxels of the border
		ExcludeBorder int `yaml:"excludeBorder"`

		// MaxSeeds caps the total seed count; 0 disables the cap
		MaxSeeds int `yaml:"maxSeeds"`

		// MaxSeedsPerObject caps seeds within each object; 0 disables the cap
		MaxSeedsPerObject int `yaml:"maxSeedsPerObject"`

		// ElementRadius is the radius of the disk/ball dilating the seeds
		ElementRadius int `yaml:"elementRadius"`

		// Connectivity drives the watershed flood (1 = faces)
		Connectivity int `yaml:"connectivity"`

		// Pad extends the mask by one background voxel before the transform
		Pad bool `yaml:"pad"`
	} `yaml:"declump"`

	// Post-watershed merge parameters
	Merge struct {
		// Enabled turns the merge pass on
		Enabled bool `yaml:"enabled"`

		// Diameter is the minimum object size expressed as a diameter
		Diameter float64 `yaml:"diameter"`

		// PlaneWise merges each z-plane of a volume independently
		PlaneWise bool `yaml:"planeWise"`

		// RemoveBelowThreshold deletes undersized background-only islands
		RemoveBelowThreshold bool `yaml:"removeBelowThreshold"`

		// UseContactArea enables neighbor qualification gating
		UseContactArea bool `yaml:"useContactArea"`

		// Method selects "absolute" or "relative" contact gating
		Method string `yaml:"method"`

		// AbsNeighborSize is the contact voxel count gate
		AbsNeighborSize int `yaml:"absNeighborSize"`

		// RelNeighborSize is the contact fraction gate in [0,1]
		RelNeighborSize float64 `yaml:"relNeighborSize"`
	} `yaml:"merge"`

	// Output parameters
	Output struct {
		// Directory receives the label images and slice exports
		Directory string `yaml:"directory"`

		// SaveSlices exports a colorized slice sequence of the result
		SaveSlices bool `yaml:"saveSlices"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Declump.Method = "shape"
	cfg.Declump.Sigma = 1.0
	cfg.Declump.MinDistance = 1
	cfg.Declump.ThresholdMode = "relative"
	cfg.Declump.Threshold = 0.0
	cfg.Declump.ExcludeBorder = 0
	cfg.Declump.MaxSeeds = 0
	cfg.Declump.MaxSeedsPerObject = 0
	cfg.Declump.ElementRadius = 1
	cfg.Declump.Connectivity = 1
	cfg.Declump.Pad = true

	cfg.Merge.Enabled = false
	cfg.Merge.Diameter = 10.0
	cfg.Merge.Method = "absolute"

	cfg.Output.Directory = "declump_output"
	cfg.Output.SaveSlices = false
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// DeclumpParams converts the declump section into pipeline parameters. The
// structuring element is built to match the given image dimensionality.
func (c *Config) DeclumpParams(ndim int) (declump.Params, error) {
	var p declump.Params

	switch strings.ToLower(c.Declump.Method) {
	case "shape", "":
		p.Method = declump.Shape
	case "intensity":
		p.Method = declump.Intensity
	default:
		return p, fmt.Errorf("unknown declump method %q (want shape or intensity)", c.Declump.Method)
	}

	switch strings.ToLower(c.Declump.ThresholdMode) {
	case "relative", "":
		p.ThresholdMode = seeds.Relative
	case "absolute":
		p.ThresholdMode = seeds.Absolute
	default:
		return p, fmt.Errorf("unknown threshold mode %q (want relative or absolute)", c.Declump.ThresholdMode)
	}

	var (
		element strel.Element
		err     error
	)
	if ndim == 3 {
		element, err = strel.Ball(c.Declump.ElementRadius)
	} else {
		element, err = strel.Disk(c.Declump.ElementRadius)
	}
	if err != nil {
		return p, fmt.Errorf("invalid element radius: %w", err)
	}

	p.Sigma = c.Declump.Sigma
	p.MinDistance = c.Declump.MinDistance
	p.Threshold = c.Declump.Threshold
	p.ExcludeBorder = c.Declump.ExcludeBorder
	p.MaxSeeds = c.Declump.MaxSeeds
	p.MaxSeedsPerObject = c.Declump.MaxSeedsPerObject
	p.Element = element
	p.Connectivity = c.Declump.Connectivity
	p.Pad = c.Declump.Pad

	return p, nil
}

// MergeParams converts the merge section into merge parameters.
func (c *Config) MergeParams() (merge.Params, error) {
	var p merge.Params

	switch strings.ToLower(c.Merge.Method) {
	case "absolute", "":
		p.Method = merge.AbsoluteArea
	case "relative":
		p.Method = merge.RelativeArea
	default:
		return p, fmt.Errorf("unknown merge method %q (want absolute or relative)", c.Merge.Method)
	}

	p.Diameter = c.Merge.Diameter
	p.PlaneWise = c.Merge.PlaneWise
	p.RemoveBelowThreshold = c.Merge.RemoveBelowThreshold
	p.UseContactArea = c.Merge.UseContactArea
	p.AbsNeighborSize = c.Merge.AbsNeighborSize
	p.RelNeighborSize = c.Merge.RelNeighborSize

	return p, nil
}
