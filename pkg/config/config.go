// Package config provides configuration loading and management for volpreproc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"volpreproc/internal/models"
	"volpreproc/pkg/datfile"
	"volpreproc/pkg/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Interval is a closed [Min, Max] range.
type Interval struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether Min <= v <= Max.
func (i Interval) Contains(v float64) bool {
	return v >= i.Min && v <= i.Max
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input describes the raw volume.
	Input struct {
		// RawFile is the path of the raw volume file.
		RawFile string `yaml:"rawFile"`

		// DatFile is an optional .dat descriptor. When present it supplies
		// the voxel dims and data type, overriding the values below.
		DatFile string `yaml:"datFile"`

		// DataType is the element type name (uchar, ushort, float, ...).
		DataType models.DataType `yaml:"dataType"`

		// VoxelDims is the volume extent in voxels.
		VoxelDims models.Vec3 `yaml:"voxelDims,flow"`
	} `yaml:"input"`

	// TransferFunction is the path of the 1D opacity transfer function.
	TransferFunction string `yaml:"transferFunction"`

	// Output parameters
	Output struct {
		// Dir is the directory index files are written into.
		Dir string `yaml:"dir"`

		// Prefix starts every index file name.
		Prefix string `yaml:"prefix"`

		// RelevanceMap is where the per-voxel relevance map is written.
		RelevanceMap string `yaml:"relevanceMap"`

		// Histogram, when set, receives the raw value histogram as a .npy file.
		Histogram string `yaml:"histogram"`

		// MetricsFile, when set, receives pipeline metrics in the
		// prometheus text exposition format after the run.
		MetricsFile string `yaml:"metricsFile"`

		// ASCII controls whether a JSON index file is written next to the binary one.
		ASCII bool `yaml:"ascii"`
	} `yaml:"output"`

	// Processing parameters
	Processing struct {
		// BlockCounts lists the block grids to generate. One index file is
		// produced per entry.
		BlockCounts []models.Vec3 `yaml:"blockCounts,flow"`

		// BufferSize is the total byte budget for streaming buffers, e.g. "64MiB".
		BufferSize string `yaml:"bufferSize"`

		// NumBuffers is the number of raw buffers in the pool.
		NumBuffers int `yaml:"numBuffers"`

		// NumThreads is the number of workers for the parallel reductions.
		NumThreads int `yaml:"numThreads"`

		// SkipRelevance disables relevance map generation and the relevance pass.
		SkipRelevance bool `yaml:"skipRelevance"`

		// VoxelRelevance is the interval a voxel's relevance must fall in to
		// count as relevant (non-empty).
		VoxelRelevance Interval `yaml:"voxelRelevance"`

		// BlockThreshold is the rov interval a block must fall in to be kept.
		BlockThreshold Interval `yaml:"blockThreshold"`
	} `yaml:"processing"`

	// Logging configures the log sink.
	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.DataType = models.Uint8

	cfg.Output.Dir = "."
	cfg.Output.Prefix = "index"
	cfg.Output.RelevanceMap = "rmap-temp.bin"
	cfg.Output.ASCII = true

	cfg.Processing.BlockCounts = []models.Vec3{{1, 1, 1}}
	cfg.Processing.BufferSize = "64MiB"
	cfg.Processing.NumBuffers = 8
	cfg.Processing.NumThreads = runtime.NumCPU()
	cfg.Processing.VoxelRelevance = Interval{Min: 0.1, Max: 1.0}
	cfg.Processing.BlockThreshold = Interval{Min: 0.1, Max: 1.0}

	cfg.Logging = logging.DefaultConfig()

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
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

// SaveConfig saves the configuration to a YAML file
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// ApplyDat loads the descriptor named by Input.DatFile, if any, and lets it
// override the voxel dims and data type. The descriptor's object file is
// used as raw file only when none is configured.
func (c *Config) ApplyDat() error {
	if c.Input.DatFile == "" {
		return nil
	}
	d, err := datfile.Load(c.Input.DatFile)
	if err != nil {
		return fmt.Errorf("error reading dat file: %w", err)
	}
	c.Input.VoxelDims = d.Dims
	if d.Type != models.Unknown {
		c.Input.DataType = d.Type
	}
	if c.Input.RawFile == "" {
		c.Input.RawFile = d.RawPath(c.Input.DatFile)
	}
	return nil
}

// BufferBytes parses the humanized buffer budget.
func (c *Config) BufferBytes() (uint64, error) {
	n, err := humanize.ParseBytes(c.Processing.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("%w: buffer size %q: %v", ErrInvalid, c.Processing.BufferSize, err)
	}
	return n, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
// It is called after any .dat descriptor has been applied.
func (c *Config) Validate() error {
	if c.Input.RawFile == "" {
		return fmt.Errorf("%w: no raw file given", ErrInvalid)
	}
	if c.Input.DataType.Size() == 0 {
		return fmt.Errorf("%w: data type %q", ErrInvalid, c.Input.DataType)
	}
	if c.Input.VoxelDims.IsZero() {
		return fmt.Errorf("%w: voxel dims %v must be positive", ErrInvalid, c.Input.VoxelDims)
	}
	if len(c.Processing.BlockCounts) == 0 {
		return fmt.Errorf("%w: no block counts given", ErrInvalid)
	}
	for _, bc := range c.Processing.BlockCounts {
		if bc.IsZero() {
			return fmt.Errorf("%w: block count %v must be positive", ErrInvalid, bc)
		}
		for i := range bc {
			if bc[i] > c.Input.VoxelDims[i] {
				return fmt.Errorf("%w: block count %v exceeds voxel dims %v", ErrInvalid, bc, c.Input.VoxelDims)
			}
		}
	}
	if c.Processing.NumBuffers < 1 {
		return fmt.Errorf("%w: numBuffers must be at least 1", ErrInvalid)
	}
	if c.Processing.NumThreads < 1 {
		return fmt.Errorf("%w: numThreads must be at least 1", ErrInvalid)
	}
	budget, err := c.BufferBytes()
	if err != nil {
		return err
	}
	// half the budget goes to raw buffers; each needs room for one element
	if budget/2/uint64(c.Processing.NumBuffers) < uint64(c.Input.DataType.Size()) {
		return fmt.Errorf("%w: buffer size %s too small for %d buffers",
			ErrInvalid, humanize.IBytes(budget), c.Processing.NumBuffers)
	}
	if c.Processing.VoxelRelevance.Min > c.Processing.VoxelRelevance.Max {
		return fmt.Errorf("%w: voxel relevance interval is inverted", ErrInvalid)
	}
	if c.Processing.BlockThreshold.Min > c.Processing.BlockThreshold.Max {
		return fmt.Errorf("%w: block threshold interval is inverted", ErrInvalid)
	}
	if !c.Processing.SkipRelevance {
		if c.TransferFunction == "" {
			return fmt.Errorf("%w: a transfer function is required unless relevance is skipped", ErrInvalid)
		}
		if c.Output.RelevanceMap == "" {
			return fmt.Errorf("%w: no relevance map path", ErrInvalid)
		}
	}
	return nil
}
