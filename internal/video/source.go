// Package video provides the pipeline's external collaborators: a gocv
// frame source, a DNN ball detector and an ffmpeg exporter.
package video

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"github.com/courtside-data/rallycut/internal/rally"
)

// FileSource decodes frames from a video file using gocv (OpenCV).
// It implements rally.FrameSource. Frames are decoded sequentially; the
// source is not safe for concurrent readers.
type FileSource struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	index   int

	fps      float64
	duration float64
}

// OpenFileSource opens a video file for sequential decoding.
func OpenFileSource(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	var duration float64
	if fps > 0 && frames > 0 {
		duration = frames / fps
	}

	rally.Diagf("[Video] opened %s: %.1f fps, %.0f frames, %.1fs", path, fps, frames, duration)

	return &FileSource{
		capture:  capture,
		mat:      gocv.NewMat(),
		fps:      fps,
		duration: duration,
	}, nil
}

// Next decodes the next frame. Returns io.EOF when the stream is exhausted.
func (s *FileSource) Next(ctx context.Context) (rally.Frame, error) {
	if err := ctx.Err(); err != nil {
		return rally.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return rally.Frame{}, io.EOF
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return rally.Frame{}, io.EOF
	}

	// Prefer the container's presentation timestamp; fall back to frame
	// index over nominal rate when the demuxer does not report one.
	ts := s.capture.Get(gocv.VideoCapturePosMsec) / 1000
	if ts <= 0 && s.fps > 0 {
		ts = float64(s.index) / s.fps
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return rally.Frame{}, fmt.Errorf("failed to convert frame %d: %w", s.index, err)
	}

	frame := rally.Frame{
		Index:     s.index,
		Timestamp: ts,
		Image:     img,
	}
	s.index++
	return frame, nil
}

// Duration returns the source duration in seconds, or 0 if unknown.
func (s *FileSource) Duration() float64 { return s.duration }

// FPS returns the nominal frame rate, or 0 if unknown.
func (s *FileSource) FPS() float64 { return s.fps }

// Close releases the decoder resources.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	s.mat.Close()
	err := s.capture.Close()
	s.capture = nil
	return err
}
