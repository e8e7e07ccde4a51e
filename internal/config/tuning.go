// Package config loads engine calibration overrides from a JSON tuning
// file. Fields omitted from the file keep their built-in defaults, so
// partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchross/intercept/internal/btlocate"
)

// TuningConfig holds optional overrides for the locate engine calibration.
// All fields are pointers; nil means "keep the default".
type TuningConfig struct {
	// Distance model params
	ReferenceRSSI      *float64 `json:"reference_rssi,omitempty"`
	ReferenceDistanceM *float64 `json:"reference_distance_m,omitempty"`
	MinDistanceM       *float64 `json:"min_distance_m,omitempty"`
	MaxDistanceM       *float64 `json:"max_distance_m,omitempty"`

	// Bounded state sizes
	MaxTrailPoints *int `json:"max_trail_points,omitempty"`
	MaxHeatPoints  *int `json:"max_heat_points,omitempty"`
	MaxRSSIPoints  *int `json:"max_rssi_points,omitempty"`

	// Outlier filter params
	HardJumpMeters *float64 `json:"hard_jump_meters,omitempty"`
	SoftJumpMeters *float64 `json:"soft_jump_meters,omitempty"`
	MaxSpeedMPS    *float64 `json:"max_speed_mps,omitempty"`

	// Confidence params
	ConfidenceWindow *int     `json:"confidence_window,omitempty"`
	ConfidenceMinM   *float64 `json:"confidence_min_m,omitempty"`
	ConfidenceMaxM   *float64 `json:"confidence_max_m,omitempty"`

	// Smoothing
	RSSISmoothingAlpha *float64 `json:"rssi_smoothing_alpha,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	positives := map[string]*float64{
		"reference_distance_m": c.ReferenceDistanceM,
		"min_distance_m":       c.MinDistanceM,
		"max_distance_m":       c.MaxDistanceM,
		"hard_jump_meters":     c.HardJumpMeters,
		"soft_jump_meters":     c.SoftJumpMeters,
		"max_speed_mps":        c.MaxSpeedMPS,
		"confidence_min_m":     c.ConfidenceMinM,
		"confidence_max_m":     c.ConfidenceMaxM,
	}
	for name, v := range positives {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, *v)
		}
	}

	positiveInts := map[string]*int{
		"max_trail_points":  c.MaxTrailPoints,
		"max_heat_points":   c.MaxHeatPoints,
		"max_rssi_points":   c.MaxRSSIPoints,
		"confidence_window": c.ConfidenceWindow,
	}
	for name, v := range positiveInts {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.RSSISmoothingAlpha != nil && (*c.RSSISmoothingAlpha <= 0 || *c.RSSISmoothingAlpha > 1) {
		return fmt.Errorf("rssi_smoothing_alpha must be in (0, 1], got %v", *c.RSSISmoothingAlpha)
	}
	if c.MinDistanceM != nil && c.MaxDistanceM != nil && *c.MinDistanceM >= *c.MaxDistanceM {
		return fmt.Errorf("min_distance_m %v must be below max_distance_m %v", *c.MinDistanceM, *c.MaxDistanceM)
	}
	if c.SoftJumpMeters != nil && c.HardJumpMeters != nil && *c.SoftJumpMeters >= *c.HardJumpMeters {
		return fmt.Errorf("soft_jump_meters %v must be below hard_jump_meters %v", *c.SoftJumpMeters, *c.HardJumpMeters)
	}
	if c.ConfidenceMinM != nil && c.ConfidenceMaxM != nil && *c.ConfidenceMinM >= *c.ConfidenceMaxM {
		return fmt.Errorf("confidence_min_m %v must be below confidence_max_m %v", *c.ConfidenceMinM, *c.ConfidenceMaxM)
	}
	return nil
}

// Apply overlays the set fields onto params and returns the result.
func (c *TuningConfig) Apply(params btlocate.Params) btlocate.Params {
	if c.ReferenceRSSI != nil {
		params.ReferenceRSSI = *c.ReferenceRSSI
	}
	if c.ReferenceDistanceM != nil {
		params.ReferenceDistanceM = *c.ReferenceDistanceM
	}
	if c.MinDistanceM != nil {
		params.MinDistanceM = *c.MinDistanceM
	}
	if c.MaxDistanceM != nil {
		params.MaxDistanceM = *c.MaxDistanceM
	}
	if c.MaxTrailPoints != nil {
		params.MaxTrailPoints = *c.MaxTrailPoints
	}
	if c.MaxHeatPoints != nil {
		params.MaxHeatPoints = *c.MaxHeatPoints
	}
	if c.MaxRSSIPoints != nil {
		params.MaxRSSIPoints = *c.MaxRSSIPoints
	}
	if c.HardJumpMeters != nil {
		params.HardJumpMeters = *c.HardJumpMeters
	}
	if c.SoftJumpMeters != nil {
		params.SoftJumpMeters = *c.SoftJumpMeters
	}
	if c.MaxSpeedMPS != nil {
		params.MaxSpeedMPS = *c.MaxSpeedMPS
	}
	if c.ConfidenceWindow != nil {
		params.ConfidenceWindow = *c.ConfidenceWindow
	}
	if c.ConfidenceMinM != nil {
		params.ConfidenceMinM = *c.ConfidenceMinM
	}
	if c.ConfidenceMaxM != nil {
		params.ConfidenceMaxM = *c.ConfidenceMaxM
	}
	if c.RSSISmoothingAlpha != nil {
		params.RSSISmoothingAlpha = *c.RSSISmoothingAlpha
	}
	return params
}
