package motion

import (
	"fmt"
	"math"

	"github.com/banshee-data/wakewatch/internal/config"
	"github.com/banshee-data/wakewatch/internal/depth"
)

// DetectorConfig holds the fixed thresholds of a Detector. It is copied into
// the detector at construction; later changes have no effect on it.
type DetectorConfig struct {
	DistanceDecreaseThreshold  int32 `json:"distance_decrease_mm"`     // mm a pixel must move closer than baseline (default: 700)
	PixelMatchThreshold        int   `json:"pixel_match_count"`        // qualifying pixels needed for a motion frame (default: 500)
	FluctuationChangeThreshold int32 `json:"fluctuation_change_mm"`    // frame-to-frame delta in mm that marks a pixel noisy (default: 1000)
	MaxFluctuationTriggers     int   `json:"max_fluctuation_triggers"` // noisy events before a pixel is retired (default: 30)
	RequiredSuccessFrames      int   `json:"required_success_frames"`  // consecutive motion frames to confirm (default: 300)

	Resolution depth.Resolution `json:"resolution"` // expected frame geometry (default: 640x480)
}

// DefaultDetectorConfig returns a DetectorConfig loaded from the canonical
// tuning defaults file (config/wake.defaults.json).
// Panics if the file cannot be found; intended for tests and binaries that
// have already validated config availability.
func DefaultDetectorConfig() *DetectorConfig {
	return DetectorConfigFromTuning(config.MustLoadDefaultConfig())
}

// DetectorConfigFromTuning builds a DetectorConfig from a loaded TuningConfig.
func DetectorConfigFromTuning(cfg *config.TuningConfig) *DetectorConfig {
	return &DetectorConfig{
		DistanceDecreaseThreshold:  int32(cfg.GetDistanceDecreaseMM()),
		PixelMatchThreshold:        cfg.GetPixelMatchCount(),
		FluctuationChangeThreshold: int32(cfg.GetFluctuationChangeMM()),
		MaxFluctuationTriggers:     cfg.GetMaxFluctuationTriggers(),
		RequiredSuccessFrames:      cfg.GetRequiredSuccessFrames(),
		Resolution: depth.Resolution{
			Width:  cfg.GetFrameWidth(),
			Height: cfg.GetFrameHeight(),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *DetectorConfig) Validate() error {
	if err := c.Resolution.Validate(); err != nil {
		return err
	}
	if c.DistanceDecreaseThreshold <= 0 {
		return fmt.Errorf("DistanceDecreaseThreshold must be positive, got %d", c.DistanceDecreaseThreshold)
	}
	if c.PixelMatchThreshold <= 0 {
		return fmt.Errorf("PixelMatchThreshold must be positive, got %d", c.PixelMatchThreshold)
	}
	if c.PixelMatchThreshold > c.Resolution.Pixels() {
		return fmt.Errorf("PixelMatchThreshold %d exceeds pixel count %d", c.PixelMatchThreshold, c.Resolution.Pixels())
	}
	if c.FluctuationChangeThreshold <= 0 {
		return fmt.Errorf("FluctuationChangeThreshold must be positive, got %d", c.FluctuationChangeThreshold)
	}
	if c.MaxFluctuationTriggers <= 0 || c.MaxFluctuationTriggers > math.MaxUint16 {
		return fmt.Errorf("MaxFluctuationTriggers must be in [1, %d], got %d", math.MaxUint16, c.MaxFluctuationTriggers)
	}
	if c.RequiredSuccessFrames <= 0 {
		return fmt.Errorf("RequiredSuccessFrames must be positive, got %d", c.RequiredSuccessFrames)
	}
	return nil
}

// WithDistanceDecreaseThreshold sets the baseline-drop threshold in millimetres.
func (c *DetectorConfig) WithDistanceDecreaseThreshold(mm int32) *DetectorConfig {
	c.DistanceDecreaseThreshold = mm
	return c
}

// WithPixelMatchThreshold sets the qualifying-pixel count for a motion frame.
func (c *DetectorConfig) WithPixelMatchThreshold(n int) *DetectorConfig {
	c.PixelMatchThreshold = n
	return c
}

// WithFluctuationChangeThreshold sets the noisy-jump threshold in millimetres.
func (c *DetectorConfig) WithFluctuationChangeThreshold(mm int32) *DetectorConfig {
	c.FluctuationChangeThreshold = mm
	return c
}

// WithMaxFluctuationTriggers sets the fluctuation ceiling.
func (c *DetectorConfig) WithMaxFluctuationTriggers(n int) *DetectorConfig {
	c.MaxFluctuationTriggers = n
	return c
}

// WithRequiredSuccessFrames sets how many consecutive motion frames confirm.
func (c *DetectorConfig) WithRequiredSuccessFrames(n int) *DetectorConfig {
	c.RequiredSuccessFrames = n
	return c
}

// WithResolution sets the expected frame geometry.
func (c *DetectorConfig) WithResolution(res depth.Resolution) *DetectorConfig {
	c.Resolution = res
	return c
}
