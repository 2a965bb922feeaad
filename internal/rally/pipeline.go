package rally

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
)

// ErrNoKeepRanges is returned when a run finishes without any keep segment;
// export is never attempted in that case.
var ErrNoKeepRanges = errors.New("no keep ranges detected")

// Frame is one decoded video frame with its presentation timestamp.
type Frame struct {
	Index     int
	Timestamp float64 // seconds from the start of the video
	Image     image.Image
}

// FrameSource yields decoded frames in non-decreasing timestamp order until
// exhausted. Next returns io.EOF at end of stream; any other read error is
// treated as end of stream too (best effort), not a hard failure.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	// Duration is the total source duration in seconds, or 0 if unknown.
	Duration() float64
	// FPS is the nominal frame rate, or 0 if unknown.
	FPS() float64
}

// Detector produces ball detections for one frame. Implementations filter to
// a single object class and a fixed minimum confidence; an unavailable model
// degrades to returning no detections every frame.
type Detector interface {
	Detect(frame Frame) []Detection
}

// Exporter trims the original asset to the keep-list, returning the path of
// the new video file. Ranges are relative to the original asset's timeline.
type Exporter interface {
	Export(ctx context.Context, srcPath string, keep []TimeRange) (string, error)
}

// ProgressFunc receives fractional progress in [0,1]. It is a fire-and-forget
// notification: implementations must not block the frame loop.
type ProgressFunc func(fraction float64)

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	Keep     []TimeRange
	Stats    RunStats
	Exported string // output path when an exporter ran, otherwise empty
}

// Pipeline drives the per-frame loop: detect, track, validate, decide,
// observe, strictly in that order, one frame at a time. Tracker state and
// decider timers are temporally recurrent, so no intra-run parallelism
// across frames is permitted.
type Pipeline struct {
	cfg      ProcessorConfig
	source   FrameSource
	detector Detector
	exporter Exporter // optional; nil skips export
	progress ProgressFunc
}

// NewPipeline builds a pipeline. The config is snapshotted by value; each
// run constructs fresh stage instances from it, never reusing stale stage
// state across runs.
func NewPipeline(cfg ProcessorConfig, source FrameSource, detector Detector, exporter Exporter, progress ProgressFunc) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}
	if source == nil {
		return nil, errors.New("pipeline requires a frame source")
	}
	if detector == nil {
		return nil, errors.New("pipeline requires a detector")
	}
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		detector: detector,
		exporter: exporter,
		progress: progress,
	}, nil
}

// Run processes the source to completion and returns the keep-list. The
// context is checked once per frame; cancellation finalizes whatever was
// accumulated and returns the context error.
func (p *Pipeline) Run(ctx context.Context, srcPath string) (*RunResult, error) {
	tracker := NewTracker(p.cfg)
	validator := NewPhysicsValidator(p.cfg)
	decider := NewStateMachine(p.cfg)
	assembler := NewSegmentAssembler(p.cfg)

	fps := p.source.FPS()
	if fps <= 0 {
		fps = p.cfg.AssumedFPS
	}
	duration := p.source.Duration()
	estFrames := duration * fps

	// Report progress roughly once per second of source video.
	reportEvery := int(fps)
	if reportEvery < 1 {
		reportEvery = 1
	}

	var stats RunStats
	lastTS := 0.0

frames:
	for {
		select {
		case <-ctx.Done():
			opsf("[Pipeline] cancelled after %d frames: %v", stats.FramesProcessed, ctx.Err())
			return nil, ctx.Err()
		default:
		}

		frame, err := p.source.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Mid-stream read interruption: stop consuming and finalize
				// whatever was accumulated.
				opsf("[Pipeline] read interrupted at frame %d: %v", stats.FramesProcessed, err)
			}
			break frames
		}

		detections := p.detector.Detect(frame)
		stats.Detections += len(detections)

		tracker.Update(detections, frame.Timestamp)

		isBallActive := false
		if active := tracker.ActiveTrack(); active != nil {
			verdict := validator.Evaluate(active)
			isBallActive = verdict.Valid
			if verdict.Valid {
				stats.ValidFrames++
			} else {
				tracef("[Pipeline] t=%.2fs track %s rejected: %s", frame.Timestamp, active.ID, verdict.Reason)
			}
		}

		wasActive := decider.State() == RallyActive
		nowActive := decider.Update(isBallActive, frame.Timestamp)
		if nowActive && !wasActive {
			stats.Rallies++
		}

		assembler.Observe(nowActive, frame.Timestamp)

		stats.FramesProcessed++
		lastTS = frame.Timestamp
		if p.progress != nil && estFrames > 0 && stats.FramesProcessed%reportEvery == 0 {
			frac := float64(stats.FramesProcessed) / estFrames
			if frac > 1 {
				frac = 1
			}
			p.progress(frac)
		}
	}

	total := duration
	if total <= 0 {
		total = lastTS
	}
	keep := assembler.Finalize(total)

	stats.TracksCreated = tracker.Created
	stats.TracksExpired = tracker.Expired
	stats.KeepSegments = len(keep)
	stats.VideoDuration = total
	for _, r := range keep {
		stats.KeepSeconds += r.Duration()
	}
	if p.progress != nil {
		p.progress(1)
	}

	diagf("[Pipeline] %d frames, %d detections, %d rallies, %d keep segments (%.1fs of %.1fs)",
		stats.FramesProcessed, stats.Detections, stats.Rallies, stats.KeepSegments, stats.KeepSeconds, total)

	if len(keep) == 0 {
		return nil, ErrNoKeepRanges
	}

	result := &RunResult{Keep: keep, Stats: stats}
	if p.exporter != nil {
		out, err := p.exporter.Export(ctx, srcPath, keep)
		if err != nil {
			return nil, fmt.Errorf("export failed: %w", err)
		}
		result.Exported = out
	}
	return result, nil
}
