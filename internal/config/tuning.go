package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/wake.defaults.json"

// TuningConfig represents the root configuration for wake-up detection.
// Pointer fields distinguish "not set" from zero so partial files are safe;
// the Get* accessors supply defaults for anything omitted.
type TuningConfig struct {
	// Detector thresholds
	DistanceDecreaseMM     *int `json:"distance_decrease_mm,omitempty"`
	PixelMatchCount        *int `json:"pixel_match_count,omitempty"`
	FluctuationChangeMM    *int `json:"fluctuation_change_mm,omitempty"`
	MaxFluctuationTriggers *int `json:"max_fluctuation_triggers,omitempty"`
	RequiredSuccessFrames  *int `json:"required_success_frames,omitempty"`

	// Sensor stream
	FrameWidth  *int `json:"frame_width,omitempty"`
	FrameHeight *int `json:"frame_height,omitempty"`
	FrameRate   *int `json:"frame_rate,omitempty"`
	MinDepthMM  *int `json:"min_depth_mm,omitempty"`
	MaxDepthMM  *int `json:"max_depth_mm,omitempty"`

	// Session history
	RecordProgress *bool `json:"record_progress,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/x/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that any values present are usable.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		v    *int
	}{
		{"distance_decrease_mm", c.DistanceDecreaseMM},
		{"pixel_match_count", c.PixelMatchCount},
		{"fluctuation_change_mm", c.FluctuationChangeMM},
		{"max_fluctuation_triggers", c.MaxFluctuationTriggers},
		{"required_success_frames", c.RequiredSuccessFrames},
		{"frame_width", c.FrameWidth},
		{"frame_height", c.FrameHeight},
		{"frame_rate", c.FrameRate},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	if c.FrameWidth != nil && c.FrameHeight != nil && c.PixelMatchCount != nil {
		pixels := *c.FrameWidth * *c.FrameHeight
		if *c.PixelMatchCount > pixels {
			return fmt.Errorf("pixel_match_count %d exceeds frame pixel count %d", *c.PixelMatchCount, pixels)
		}
	}

	if c.MinDepthMM != nil && *c.MinDepthMM < 0 {
		return fmt.Errorf("min_depth_mm must be non-negative, got %d", *c.MinDepthMM)
	}
	if c.MinDepthMM != nil && c.MaxDepthMM != nil && *c.MaxDepthMM <= *c.MinDepthMM {
		return fmt.Errorf("max_depth_mm (%d) must exceed min_depth_mm (%d)", *c.MaxDepthMM, *c.MinDepthMM)
	}

	return nil
}

// GetDistanceDecreaseMM returns the distance_decrease_mm value or the default.
func (c *TuningConfig) GetDistanceDecreaseMM() int {
	if c.DistanceDecreaseMM == nil {
		return 700
	}
	return *c.DistanceDecreaseMM
}

// GetPixelMatchCount returns the pixel_match_count value or the default.
func (c *TuningConfig) GetPixelMatchCount() int {
	if c.PixelMatchCount == nil {
		return 500
	}
	return *c.PixelMatchCount
}

// GetFluctuationChangeMM returns the fluctuation_change_mm value or the default.
func (c *TuningConfig) GetFluctuationChangeMM() int {
	if c.FluctuationChangeMM == nil {
		return 1000
	}
	return *c.FluctuationChangeMM
}

// GetMaxFluctuationTriggers returns the max_fluctuation_triggers value or the default.
func (c *TuningConfig) GetMaxFluctuationTriggers() int {
	if c.MaxFluctuationTriggers == nil {
		return 30
	}
	return *c.MaxFluctuationTriggers
}

// GetRequiredSuccessFrames returns the required_success_frames value or the default.
// 300 frames is ten seconds at 30 fps.
func (c *TuningConfig) GetRequiredSuccessFrames() int {
	if c.RequiredSuccessFrames == nil {
		return 300
	}
	return *c.RequiredSuccessFrames
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 480
	}
	return *c.FrameHeight
}

// GetFrameRate returns the frame_rate value or the default.
func (c *TuningConfig) GetFrameRate() int {
	if c.FrameRate == nil {
		return 30
	}
	return *c.FrameRate
}

// GetMinDepthMM returns the min_depth_mm value or the default.
func (c *TuningConfig) GetMinDepthMM() int {
	if c.MinDepthMM == nil {
		return 800
	}
	return *c.MinDepthMM
}

// GetMaxDepthMM returns the max_depth_mm value or the default.
func (c *TuningConfig) GetMaxDepthMM() int {
	if c.MaxDepthMM == nil {
		return 4000
	}
	return *c.MaxDepthMM
}

// GetRecordProgress returns the record_progress value or the default.
func (c *TuningConfig) GetRecordProgress() bool {
	if c.RecordProgress == nil {
		return true
	}
	return *c.RecordProgress
}
