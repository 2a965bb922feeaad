// Package config loads JSON tuning overlays for the processing thresholds.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/courtside-data/rallycut/internal/rally"
)

// TuningConfig is the JSON overlay schema for processing parameters. Every
// field is a pointer: nil means "keep the built-in default", so partial
// config files are safe.
type TuningConfig struct {
	// Tracker params
	MaxTracks             *int     `json:"max_tracks,omitempty"`
	MaxMisses             *int     `json:"max_misses,omitempty"`
	HitsToConfirm         *int     `json:"hits_to_confirm,omitempty"`
	GatingDistanceSquared *float64 `json:"gating_distance_squared,omitempty"`
	ProcessNoisePos       *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel       *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise      *float64 `json:"measurement_noise,omitempty"`
	MaxTrackSamples       *int     `json:"max_track_samples,omitempty"`

	// Physics validation params
	ParabolaMinPoints    *int     `json:"parabola_min_points,omitempty"`
	ParabolaMinR2        *float64 `json:"parabola_min_r2,omitempty"`
	MaxJumpPerFrame      *float64 `json:"max_jump_per_frame,omitempty"`
	ROIYRadius           *float64 `json:"roi_y_radius,omitempty"`
	MinVerticalSpan      *float64 `json:"min_vertical_span,omitempty"`
	MinPathLength        *float64 `json:"min_path_length,omitempty"`
	MinNetDisplacement   *float64 `json:"min_net_displacement,omitempty"`
	SpeedThreshold       *float64 `json:"speed_threshold,omitempty"`
	MinSpeedSamplesAbove *int     `json:"min_speed_samples_above,omitempty"`

	// Rally decider params
	StartBuffer *float64 `json:"start_buffer,omitempty"`
	EndTimeout  *float64 `json:"end_timeout,omitempty"`

	// Segment assembly params
	Preroll               *float64 `json:"preroll,omitempty"`
	Postroll              *float64 `json:"postroll,omitempty"`
	ShortSegmentThreshold *float64 `json:"short_segment_threshold,omitempty"`
	MaxPrerollForShort    *float64 `json:"max_preroll_for_short,omitempty"`
	MinGapToMerge         *float64 `json:"min_gap_to_merge,omitempty"`
	MinSegmentLength      *float64 `json:"min_segment_length,omitempty"`

	// Pipeline params
	AssumedFPS *float64 `json:"assumed_fps,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size. Fields omitted from
// the JSON keep their built-in defaults.
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return cfg, nil
}

// Apply overlays the set fields onto a base ProcessorConfig and validates
// the result.
func (c *TuningConfig) Apply(base rally.ProcessorConfig) (rally.ProcessorConfig, error) {
	out := base

	if c.MaxTracks != nil {
		out.MaxTracks = *c.MaxTracks
	}
	if c.MaxMisses != nil {
		out.MaxMisses = *c.MaxMisses
	}
	if c.HitsToConfirm != nil {
		out.HitsToConfirm = *c.HitsToConfirm
	}
	if c.GatingDistanceSquared != nil {
		out.GatingDistanceSquared = *c.GatingDistanceSquared
	}
	if c.ProcessNoisePos != nil {
		out.ProcessNoisePos = *c.ProcessNoisePos
	}
	if c.ProcessNoiseVel != nil {
		out.ProcessNoiseVel = *c.ProcessNoiseVel
	}
	if c.MeasurementNoise != nil {
		out.MeasurementNoise = *c.MeasurementNoise
	}
	if c.MaxTrackSamples != nil {
		out.MaxTrackSamples = *c.MaxTrackSamples
	}

	if c.ParabolaMinPoints != nil {
		out.ParabolaMinPoints = *c.ParabolaMinPoints
	}
	if c.ParabolaMinR2 != nil {
		out.ParabolaMinR2 = *c.ParabolaMinR2
	}
	if c.MaxJumpPerFrame != nil {
		out.MaxJumpPerFrame = *c.MaxJumpPerFrame
	}
	if c.ROIYRadius != nil {
		out.ROIYRadius = *c.ROIYRadius
	}
	if c.MinVerticalSpan != nil {
		out.MinVerticalSpan = *c.MinVerticalSpan
	}
	if c.MinPathLength != nil {
		out.MinPathLength = *c.MinPathLength
	}
	if c.MinNetDisplacement != nil {
		out.MinNetDisplacement = *c.MinNetDisplacement
	}
	if c.SpeedThreshold != nil {
		out.SpeedThreshold = *c.SpeedThreshold
	}
	if c.MinSpeedSamplesAbove != nil {
		out.MinSpeedSamplesAbove = *c.MinSpeedSamplesAbove
	}

	if c.StartBuffer != nil {
		out.StartBuffer = *c.StartBuffer
	}
	if c.EndTimeout != nil {
		out.EndTimeout = *c.EndTimeout
	}

	if c.Preroll != nil {
		out.Preroll = *c.Preroll
	}
	if c.Postroll != nil {
		out.Postroll = *c.Postroll
	}
	if c.ShortSegmentThreshold != nil {
		out.ShortSegmentThreshold = *c.ShortSegmentThreshold
	}
	if c.MaxPrerollForShort != nil {
		out.MaxPrerollForShort = *c.MaxPrerollForShort
	}
	if c.MinGapToMerge != nil {
		out.MinGapToMerge = *c.MinGapToMerge
	}
	if c.MinSegmentLength != nil {
		out.MinSegmentLength = *c.MinSegmentLength
	}

	if c.AssumedFPS != nil {
		out.AssumedFPS = *c.AssumedFPS
	}

	if err := out.Validate(); err != nil {
		return rally.ProcessorConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return out, nil
}

// LoadProcessorConfig returns the defaults with an optional overlay file
// applied. An empty path yields the unmodified defaults.
func LoadProcessorConfig(path string) (rally.ProcessorConfig, error) {
	base := rally.DefaultProcessorConfig()
	if path == "" {
		return base, nil
	}
	overlay, err := LoadTuningConfig(path)
	if err != nil {
		return rally.ProcessorConfig{}, err
	}
	return overlay.Apply(base)
}
