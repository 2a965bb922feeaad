package rally

// RunStats aggregates counters from one processing run.
type RunStats struct {
	FramesProcessed int     `json:"frames_processed"`
	Detections      int     `json:"detections"`
	TracksCreated   int     `json:"tracks_created"`
	TracksExpired   int     `json:"tracks_expired"`
	ValidFrames     int     `json:"valid_frames"` // frames with a physically valid projectile
	Rallies         int     `json:"rallies"`
	KeepSegments    int     `json:"keep_segments"`
	KeepSeconds     float64 `json:"keep_seconds"`
	VideoDuration   float64 `json:"video_duration"`
}

// Coverage returns the fraction of the source video the keep-list retains.
func (s RunStats) Coverage() float64 {
	if s.VideoDuration <= 0 {
		return 0
	}
	return s.KeepSeconds / s.VideoDuration
}
