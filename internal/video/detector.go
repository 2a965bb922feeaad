package video

import (
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/courtside-data/rallycut/internal/rally"
)

// Detector settings. The network is a single-class ball model exported to
// ONNX; it consumes a square letterboxed input.
const (
	// DefaultMinConfidence is the detector-side confidence floor.
	DefaultMinConfidence = 0.70
	inputSize            = 640
)

// BallDetector runs the ball detection network on each frame. It implements
// rally.Detector. A missing or unloadable model degrades to returning no
// detections, which makes the pipeline yield no segments instead of failing.
type BallDetector struct {
	mu            sync.Mutex
	net           gocv.Net
	loaded        bool
	minConfidence float64
}

// NewBallDetector loads the ONNX ball model from modelPath. An empty path or
// a load failure produces a detector that reports no detections.
func NewBallDetector(modelPath string, minConfidence float64) *BallDetector {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	d := &BallDetector{minConfidence: minConfidence}

	if modelPath == "" {
		rally.Opsf("[Detector] no model configured, detections disabled")
		return d
	}
	if _, err := os.Stat(modelPath); err != nil {
		rally.Opsf("[Detector] model %s unavailable: %v", modelPath, err)
		return d
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		rally.Opsf("[Detector] failed to load model %s, detections disabled", modelPath)
		return d
	}
	d.net = net
	d.loaded = true
	rally.Diagf("[Detector] loaded model %s (min confidence %.2f)", modelPath, minConfidence)
	return d
}

// Detect runs the network on one frame and returns ball detections with
// normalized bounding boxes. Returns nil when no model is loaded.
func (d *BallDetector) Detect(frame rally.Frame) []rally.Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded || frame.Image == nil {
		return nil
	}

	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		rally.Tracef("[Detector] frame %d conversion failed: %v", frame.Index, err)
		return nil
	}
	defer mat.Close()

	bounds := frame.Image.Bounds()
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())
	if width <= 0 || height <= 0 {
		return nil
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.parseOutput(output, frame.Timestamp)
}

// parseOutput decodes the network output rows [cx, cy, w, h, confidence] in
// input-pixel units into normalized detections above the confidence floor.
func (d *BallDetector) parseOutput(output gocv.Mat, ts float64) []rally.Detection {
	flat := output.Reshape(1, output.Total()/5)

	var dets []rally.Detection
	rows := flat.Rows()
	for i := 0; i < rows; i++ {
		conf := float64(flat.GetFloatAt(i, 4))
		if conf < d.minConfidence {
			continue
		}
		cx := float64(flat.GetFloatAt(i, 0)) / inputSize
		cy := float64(flat.GetFloatAt(i, 1)) / inputSize
		w := float64(flat.GetFloatAt(i, 2)) / inputSize
		h := float64(flat.GetFloatAt(i, 3)) / inputSize

		dets = append(dets, rally.Detection{
			BBox: rally.Rect{
				X: clamp01(cx - w/2),
				Y: clamp01(cy - h/2),
				W: w,
				H: h,
			},
			Confidence: conf,
			Timestamp:  ts,
		})
	}
	flat.Close()
	return dets
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
