package rally

import (
	"fmt"
	"math"
)

// Point is a position in normalized image coordinates. Both axes run [0,1];
// Y increases downward, matching the image convention, so a ball falling
// under gravity has increasing Y.
type Point struct {
	X float64
	Y float64
}

// Dist returns the Euclidean distance to another point.
func (p Point) Dist(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Rect is a normalized bounding box. Coordinates are fractions of the frame:
// [0,1] horizontally and vertically.
type Rect struct {
	X float64 // left edge
	Y float64 // top edge
	W float64
	H float64
}

// Center returns the box centre.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Detection is a single ball observation produced by the external detector
// for one frame. Detections are immutable and not persisted.
type Detection struct {
	BBox       Rect
	Confidence float64
	Timestamp  float64 // seconds from the start of the video
}

// Center returns the detection's bounding box centre.
func (d Detection) Center() Point {
	return d.BBox.Center()
}

// TimeRange is a half-open-ish interval [Start, End) in seconds on the
// source video's timeline. Invariant: Start < End.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%.2fs-%.2fs]", r.Start, r.End)
}
