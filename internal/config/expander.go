package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical expander defaults file.
const DefaultConfigPath = "config/expander.defaults.json"

// Defaults used when a field is omitted from the JSON file.
const (
	DefaultUseToleranceWindow = true
	DefaultMZToleranceAbs     = 0.005
	DefaultMZTolerancePPM     = 15.0
	DefaultWorkerCount        = 5
	DefaultMobilityBinWidth   = 0.002
	DefaultProgressInterval   = time.Second
)

// maxWorkerCount guards against accidental goroutine explosions from a
// typo in the config file.
const maxWorkerCount = 256

// ExpanderConfig holds the options of a mobility expansion run.
// Pointer fields distinguish "not set" from zero; the Get* methods supply
// defaults for anything omitted.
type ExpanderConfig struct {
	// Acceptance window: the row m/z +/- tolerance when true, otherwise
	// the m/z range of the row's feature.
	UseToleranceWindow *bool    `json:"use_tolerance_window,omitempty"`
	MZToleranceAbs     *float64 `json:"mz_tolerance_abs,omitempty"`
	MZTolerancePPM     *float64 `json:"mz_tolerance_ppm,omitempty"`

	WorkerCount      *int     `json:"worker_count,omitempty"`
	MobilityBinWidth *float64 `json:"mobility_bin_width,omitempty"`
	ProgressInterval *string  `json:"progress_interval,omitempty"` // duration string like "1s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyExpanderConfig returns an ExpanderConfig with all fields unset.
func EmptyExpanderConfig() *ExpanderConfig {
	return &ExpanderConfig{}
}

// DefaultExpanderConfig returns a config with every field set to its
// default.
func DefaultExpanderConfig() *ExpanderConfig {
	return &ExpanderConfig{
		UseToleranceWindow: ptrBool(DefaultUseToleranceWindow),
		MZToleranceAbs:     ptrFloat64(DefaultMZToleranceAbs),
		MZTolerancePPM:     ptrFloat64(DefaultMZTolerancePPM),
		WorkerCount:        ptrInt(DefaultWorkerCount),
		MobilityBinWidth:   ptrFloat64(DefaultMobilityBinWidth),
		ProgressInterval:   ptrString(DefaultProgressInterval.String()),
	}
}

// LoadExpanderConfig loads an ExpanderConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Omitted fields
// fall back to defaults through the Get* methods.
func LoadExpanderConfig(path string) (*ExpanderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExpanderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repo root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ExpanderConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/ims/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/ims/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadExpanderConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *ExpanderConfig) Validate() error {
	if c.MZToleranceAbs != nil && *c.MZToleranceAbs < 0 {
		return fmt.Errorf("mz_tolerance_abs must be non-negative, got %f", *c.MZToleranceAbs)
	}
	if c.MZTolerancePPM != nil && *c.MZTolerancePPM < 0 {
		return fmt.Errorf("mz_tolerance_ppm must be non-negative, got %f", *c.MZTolerancePPM)
	}
	if c.GetUseToleranceWindow() && c.GetMZToleranceAbs() == 0 && c.GetMZTolerancePPM() == 0 {
		return fmt.Errorf("tolerance window enabled with zero mz_tolerance_abs and mz_tolerance_ppm")
	}
	if c.WorkerCount != nil && (*c.WorkerCount < 1 || *c.WorkerCount > maxWorkerCount) {
		return fmt.Errorf("worker_count must be between 1 and %d, got %d", maxWorkerCount, *c.WorkerCount)
	}
	if c.MobilityBinWidth != nil && *c.MobilityBinWidth <= 0 {
		return fmt.Errorf("mobility_bin_width must be positive, got %f", *c.MobilityBinWidth)
	}
	if c.ProgressInterval != nil && *c.ProgressInterval != "" {
		d, err := time.ParseDuration(*c.ProgressInterval)
		if err != nil {
			return fmt.Errorf("invalid progress_interval '%s': %w", *c.ProgressInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("progress_interval must be positive, got %s", d)
		}
	}
	return nil
}

// GetUseToleranceWindow returns the use_tolerance_window value or the default.
func (c *ExpanderConfig) GetUseToleranceWindow() bool {
	if c.UseToleranceWindow == nil {
		return DefaultUseToleranceWindow
	}
	return *c.UseToleranceWindow
}

// GetMZToleranceAbs returns the mz_tolerance_abs value or the default.
func (c *ExpanderConfig) GetMZToleranceAbs() float64 {
	if c.MZToleranceAbs == nil {
		return DefaultMZToleranceAbs
	}
	return *c.MZToleranceAbs
}

// GetMZTolerancePPM returns the mz_tolerance_ppm value or the default.
func (c *ExpanderConfig) GetMZTolerancePPM() float64 {
	if c.MZTolerancePPM == nil {
		return DefaultMZTolerancePPM
	}
	return *c.MZTolerancePPM
}

// GetWorkerCount returns the worker_count value or the default.
func (c *ExpanderConfig) GetWorkerCount() int {
	if c.WorkerCount == nil {
		return DefaultWorkerCount
	}
	return *c.WorkerCount
}

// GetMobilityBinWidth returns the mobility_bin_width value or the default.
func (c *ExpanderConfig) GetMobilityBinWidth() float64 {
	if c.MobilityBinWidth == nil {
		return DefaultMobilityBinWidth
	}
	return *c.MobilityBinWidth
}

// GetProgressInterval parses and returns the ProgressInterval as a time.Duration.
func (c *ExpanderConfig) GetProgressInterval() time.Duration {
	if c.ProgressInterval == nil || *c.ProgressInterval == "" {
		return DefaultProgressInterval
	}
	d, err := time.ParseDuration(*c.ProgressInterval)
	if err != nil || d <= 0 {
		return DefaultProgressInterval // default on parse error
	}
	return d
}
