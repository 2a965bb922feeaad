package rally

import (
	"math"
	"sort"
)

// SegmentAssembler turns the decider's active/inactive transitions into the
// final keep-list: padded, gap-merged, length-filtered, ascending and
// non-overlapping time ranges on the source video's timeline.
type SegmentAssembler struct {
	cfg ProcessorConfig

	openStart float64
	open      bool
	ranges    []TimeRange
}

// NewSegmentAssembler creates an assembler from a config snapshot.
func NewSegmentAssembler(cfg ProcessorConfig) *SegmentAssembler {
	return &SegmentAssembler{cfg: cfg}
}

// Observe records the rally state at a frame timestamp. While active it
// keeps a single open raw window; the window closes (and is padded) on the
// transition back to inactive.
func (a *SegmentAssembler) Observe(isActive bool, ts float64) {
	if isActive {
		if !a.open {
			a.openStart = ts
			a.open = true
		}
		return
	}
	if a.open {
		a.closeWindow(a.openStart, ts)
		a.open = false
	}
}

// AppendRaw adds a raw window that still needs padding, using the same path
// as windows closed from observations.
func (a *SegmentAssembler) AppendRaw(start, end float64) {
	a.closeWindow(start, end)
}

// AppendPadded adds a window that is already padded. Merging and filtering
// still happen in Finalize.
func (a *SegmentAssembler) AppendPadded(start, end float64) {
	a.ranges = append(a.ranges, TimeRange{Start: start, End: end})
}

// closeWindow pads a raw window and stores it. Short raw windows get a
// capped preroll so a brief, possibly-false activity burst does not pull an
// oversized lead-in into the cut.
func (a *SegmentAssembler) closeWindow(start, end float64) {
	preroll := a.cfg.Preroll
	if end-start < a.cfg.ShortSegmentThreshold {
		preroll = math.Min(preroll, a.cfg.MaxPrerollForShort)
	}

	a.ranges = append(a.ranges, TimeRange{
		Start: math.Max(0, start-preroll),
		End:   end + a.cfg.Postroll,
	})
}

// Finalize closes any still-open window against totalDuration, clamps every
// padded range to [0, totalDuration], merges ranges whose gap is within
// MinGapToMerge, drops ranges shorter than MinSegmentLength, and returns the
// resulting ascending, non-overlapping keep-list.
//
// Finalize is deterministic: identical observations and config always yield
// an identical keep-list.
func (a *SegmentAssembler) Finalize(totalDuration float64) []TimeRange {
	if a.open {
		a.closeWindow(a.openStart, totalDuration)
		a.open = false
	}

	// Clamp and drop empty/invalid ranges.
	clamped := make([]TimeRange, 0, len(a.ranges))
	for _, r := range a.ranges {
		start := math.Max(0, r.Start)
		end := math.Min(totalDuration, r.End)
		if end > start {
			clamped = append(clamped, TimeRange{Start: start, End: end})
		}
	}

	sort.Slice(clamped, func(i, j int) bool { return clamped[i].Start < clamped[j].Start })

	// Merge small gaps.
	merged := make([]TimeRange, 0, len(clamped))
	for _, r := range clamped {
		if len(merged) > 0 && gapBetween(merged[len(merged)-1], r) <= a.cfg.MinGapToMerge {
			last := &merged[len(merged)-1]
			last.End = math.Max(last.End, r.End)
			continue
		}
		merged = append(merged, r)
	}

	// Drop segments that are too short.
	final := merged[:0:0]
	for _, r := range merged {
		if r.Duration() >= a.cfg.MinSegmentLength {
			final = append(final, r)
		}
	}

	var total float64
	for _, r := range final {
		total += r.Duration()
	}
	diagf("[Segments] finalized: %d raw -> %d segments, %.1fs total", len(a.ranges), len(final), total)

	return final
}

// gapBetween returns the non-negative gap between two ranges.
func gapBetween(a, b TimeRange) float64 {
	return math.Max(0, b.Start-a.End)
}
