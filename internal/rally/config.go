package rally

import "fmt"

// ProcessorConfig holds every tunable threshold used by the processing
// stages. A run captures its own snapshot at construction time; the snapshot
// is read-only for the lifetime of the run and shared by all stages.
type ProcessorConfig struct {
	// --- Tracker ---

	// MaxTracks caps the number of concurrent candidate tracks.
	MaxTracks int
	// MaxMisses is the number of consecutive unmatched frames after which a
	// track is dropped.
	MaxMisses int
	// HitsToConfirm is the number of consecutive matches needed before a
	// tentative track is promoted to confirmed.
	HitsToConfirm int
	// GatingDistanceSquared is the squared Mahalanobis gate for
	// detection-to-track association (dimensionless sigma units).
	GatingDistanceSquared float64
	// ProcessNoisePos and ProcessNoiseVel are the constant-velocity filter's
	// process noise variances, in normalized units.
	ProcessNoisePos float64
	ProcessNoiseVel float64
	// MeasurementNoise is the position measurement variance (normalized).
	MeasurementNoise float64
	// MaxTrackSamples bounds a track's observed-sample history.
	MaxTrackSamples int

	// --- Physics validation ---

	// ParabolaMinPoints is the minimum sample count before a fit is attempted.
	ParabolaMinPoints int
	// ParabolaMinR2 is the fit-quality acceptance floor.
	ParabolaMinR2 float64
	// MaxJumpPerFrame rejects identity-switch jumps (normalized distance).
	MaxJumpPerFrame float64
	// ROIYRadius is the tail-outlier rejection window (normalized height).
	ROIYRadius float64
	// MinVerticalSpan rejects flat/noise paths (normalized height).
	MinVerticalSpan float64
	// MinPathLength and MinNetDisplacement reject near-stationary tracks.
	MinPathLength      float64
	MinNetDisplacement float64
	// SpeedThreshold is the vertical speed (normalized heights/second) a
	// sample pair must exceed to count toward MinSpeedSamplesAbove.
	SpeedThreshold float64
	// MinSpeedSamplesAbove is the number of fast sample pairs required.
	MinSpeedSamplesAbove int

	// --- Rally state machine ---

	// StartBuffer is the continuous-activity duration required to confirm a
	// rally start (seconds).
	StartBuffer float64
	// EndTimeout is the continuous-inactivity duration required to confirm a
	// rally end (seconds).
	EndTimeout float64

	// --- Segment assembly ---

	// Preroll and Postroll pad each raw activity window (seconds).
	Preroll  float64
	Postroll float64
	// ShortSegmentThreshold and MaxPrerollForShort cap the effective preroll
	// for brief activity bursts: raw windows shorter than the threshold get
	// at most MaxPrerollForShort of lead-in.
	ShortSegmentThreshold float64
	MaxPrerollForShort    float64
	// MinGapToMerge merges adjacent padded ranges whose gap is at most this
	// value (seconds).
	MinGapToMerge float64
	// MinSegmentLength drops merged ranges shorter than this (seconds).
	MinSegmentLength float64

	// --- Pipeline ---

	// AssumedFPS is used for degenerate timestamp spacing and for frame-count
	// estimation when the source cannot report a rate.
	AssumedFPS float64
}

// DefaultProcessorConfig returns the documented default configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxTracks:             16,
		MaxMisses:             15,
		HitsToConfirm:         3,
		GatingDistanceSquared: 25.0, // 5 sigma
		ProcessNoisePos:       1e-4,
		ProcessNoiseVel:       1e-2,
		MeasurementNoise:      1e-4,
		MaxTrackSamples:       300,

		ParabolaMinPoints:    8,
		ParabolaMinR2:        0.95,
		MaxJumpPerFrame:      0.08,
		ROIYRadius:           0.04,
		MinVerticalSpan:      0.02,
		MinPathLength:        0.05,
		MinNetDisplacement:   0.03,
		SpeedThreshold:       0.05,
		MinSpeedSamplesAbove: 3,

		StartBuffer: 0.3,
		EndTimeout:  1.0,

		Preroll:               0.5,
		Postroll:              0.5,
		ShortSegmentThreshold: 2.5,
		MaxPrerollForShort:    0.5,
		MinGapToMerge:         0.3,
		MinSegmentLength:      0.5,

		AssumedFPS: 30.0,
	}
}

// Validate checks that the configuration is within valid operating ranges.
func (c ProcessorConfig) Validate() error {
	if c.MaxTracks < 1 {
		return fmt.Errorf("MaxTracks must be >= 1, got %d", c.MaxTracks)
	}
	if c.MaxMisses < 1 {
		return fmt.Errorf("MaxMisses must be >= 1, got %d", c.MaxMisses)
	}
	if c.GatingDistanceSquared <= 0 {
		return fmt.Errorf("GatingDistanceSquared must be positive, got %v", c.GatingDistanceSquared)
	}
	if c.ProcessNoisePos <= 0 || c.ProcessNoiseVel <= 0 || c.MeasurementNoise <= 0 {
		return fmt.Errorf("filter noise parameters must be positive")
	}
	if c.ParabolaMinPoints < 3 {
		return fmt.Errorf("ParabolaMinPoints must be >= 3, got %d", c.ParabolaMinPoints)
	}
	if c.ParabolaMinR2 <= 0 || c.ParabolaMinR2 > 1 {
		return fmt.Errorf("ParabolaMinR2 must be in (0,1], got %v", c.ParabolaMinR2)
	}
	if c.StartBuffer <= 0 || c.EndTimeout <= 0 {
		return fmt.Errorf("StartBuffer and EndTimeout must be positive")
	}
	if c.Preroll < 0 || c.Postroll < 0 {
		return fmt.Errorf("padding must be non-negative")
	}
	if c.MinSegmentLength < 0 || c.MinGapToMerge < 0 {
		return fmt.Errorf("segment thresholds must be non-negative")
	}
	if c.AssumedFPS <= 0 {
		return fmt.Errorf("AssumedFPS must be positive, got %v", c.AssumedFPS)
	}
	return nil
}
