package rally

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// QuadraticFit holds the result of a least-squares quadratic fit
// y = a·t² + b·t + c over a track's vertical positions.
type QuadraticFit struct {
	A float64 // curvature coefficient; gravity implies A > 0 with Y down
	B float64
	C float64

	R2          float64 // coefficient of determination
	RMSResidual float64 // normalized height units
	N           int     // number of points used in the fit

	// VertexT and VertexY locate the parabola's turning point.
	VertexT float64
	VertexY float64
}

// Verdict carries the outcome of a projectile evaluation, with the first
// rejection reason for trace logging. Fit is nil when the ladder rejected
// before the full fit was computed.
type Verdict struct {
	Valid  bool
	Reason string
	Fit    *QuadraticFit

	// ApexCount is the number of vertical velocity sign changes observed.
	// Diagnostic only; it does not participate in the accept decision.
	ApexCount int
}

// PhysicsValidator decides whether a track's recent path looks like a real
// projectile arc. It is a pure function of the track's sample history and
// the config snapshot; rejections are silent boolean outcomes.
type PhysicsValidator struct {
	cfg ProcessorConfig
}

// NewPhysicsValidator creates a validator from a config snapshot.
func NewPhysicsValidator(cfg ProcessorConfig) *PhysicsValidator {
	return &PhysicsValidator{cfg: cfg}
}

// IsValidProjectile reports whether the track's accumulated samples are
// physically consistent with gravity-driven motion.
func (v *PhysicsValidator) IsValidProjectile(tr *Track) bool {
	return v.Evaluate(tr).Valid
}

// Evaluate runs the rejection ladder and returns the full verdict.
// The ladder short-circuits on the first failing check.
func (v *PhysicsValidator) Evaluate(tr *Track) Verdict {
	if tr == nil {
		return Verdict{Reason: "no track"}
	}
	n := len(tr.Samples)
	if n < v.cfg.ParabolaMinPoints {
		return Verdict{Reason: "too few samples"}
	}

	// Time axis in seconds since the first sample. Degenerate or duplicate
	// timestamps fall back to fixed nominal frame spacing.
	ts := make([]float64, n)
	ys := make([]float64, n)
	first := tr.Samples[0].Timestamp
	for i, s := range tr.Samples {
		ts[i] = s.Timestamp - first
		ys[i] = s.Pos.Y
	}
	if ts[n-1] <= 0 {
		dt := 1.0 / v.cfg.AssumedFPS
		for i := range ts {
			ts[i] = float64(i) * dt
		}
	}

	// Gross geometry: path length, net displacement, vertical span.
	var pathLen float64
	for i := 1; i < n; i++ {
		pathLen += tr.Samples[i].Pos.Dist(tr.Samples[i-1].Pos)
	}
	netDisp := tr.Samples[n-1].Pos.Dist(tr.Samples[0].Pos)
	yMin, yMax := ys[0], ys[0]
	for _, y := range ys {
		yMin = math.Min(yMin, y)
		yMax = math.Max(yMax, y)
	}
	span := yMax - yMin

	if span < v.cfg.MinVerticalSpan {
		return Verdict{Reason: "vertical span below minimum"}
	}
	if pathLen < v.cfg.MinPathLength {
		return Verdict{Reason: "path too short"}
	}
	if netDisp < v.cfg.MinNetDisplacement {
		return Verdict{Reason: "net displacement too small"}
	}

	// A large last step usually means the tracker switched identities.
	lastStep := tr.Samples[n-1].Pos.Dist(tr.Samples[n-2].Pos)
	if lastStep > v.cfg.MaxJumpPerFrame {
		return Verdict{Reason: "identity-switch jump"}
	}

	// Tail-outlier guard: fit without the final sample and check that the
	// fit would have predicted it.
	if n >= 5 {
		headFit, ok := fitQuadratic(ts[:n-1], ys[:n-1])
		if ok {
			predicted := headFit.A*ts[n-1]*ts[n-1] + headFit.B*ts[n-1] + headFit.C
			if math.Abs(predicted-ys[n-1]) > v.cfg.ROIYRadius {
				return Verdict{Reason: "tail sample outside prediction window"}
			}
		}
	}

	fit, ok := fitQuadratic(ts, ys)
	if !ok {
		return Verdict{Reason: "degenerate fit"}
	}

	// Standstill filter: require enough adjacent sample pairs with real
	// vertical speed.
	fast := 0
	apexes := 0
	prevSign := 0
	for i := 1; i < n; i++ {
		dt := ts[i] - ts[i-1]
		if dt <= 0 {
			continue
		}
		vy := (ys[i] - ys[i-1]) / dt
		if math.Abs(vy) > v.cfg.SpeedThreshold {
			fast++
		}
		sign := 0
		if vy > 0 {
			sign = 1
		} else if vy < 0 {
			sign = -1
		}
		if sign != 0 && prevSign != 0 && sign != prevSign {
			apexes++
		}
		if sign != 0 {
			prevSign = sign
		}
	}
	if fast < v.cfg.MinSpeedSamplesAbove {
		return Verdict{Reason: "standstill", Fit: &fit, ApexCount: apexes}
	}

	if fit.R2 < v.cfg.ParabolaMinR2 {
		return Verdict{Reason: "poor fit quality", Fit: &fit, ApexCount: apexes}
	}
	// With the position axis increasing downward, gravity implies positive
	// curvature.
	if fit.A <= 0 {
		return Verdict{Reason: "curvature inconsistent with gravity", Fit: &fit, ApexCount: apexes}
	}
	if span < math.Max(v.cfg.MinVerticalSpan, 0.02) {
		return Verdict{Reason: "vertical span below floor", Fit: &fit, ApexCount: apexes}
	}

	return Verdict{Valid: true, Fit: &fit, ApexCount: apexes}
}

// fitQuadratic solves the least-squares quadratic y = a·t² + b·t + c.
// Returns ok=false when the system is rank deficient (e.g. all timestamps
// identical).
func fitQuadratic(ts, ys []float64) (QuadraticFit, bool) {
	n := len(ts)
	if n < 3 {
		return QuadraticFit{}, false
	}

	design := mat.NewDense(n, 3, nil)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, ts[i]*ts[i])
		design.Set(i, 1, ts[i])
		design.Set(i, 2, 1)
		rhs.SetVec(i, ys[i])
	}

	var qr mat.QR
	qr.Factorize(design)
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, rhs); err != nil {
		return QuadraticFit{}, false
	}

	fit := QuadraticFit{
		A: sol.AtVec(0),
		B: sol.AtVec(1),
		C: sol.AtVec(2),
		N: n,
	}

	mean := stat.Mean(ys, nil)
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		pred := fit.A*ts[i]*ts[i] + fit.B*ts[i] + fit.C
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - mean) * (ys[i] - mean)
	}
	if ssTot > 0 {
		fit.R2 = 1 - ssRes/ssTot
	}
	fit.RMSResidual = math.Sqrt(ssRes / float64(n))

	if fit.A != 0 {
		fit.VertexT = -fit.B / (2 * fit.A)
		fit.VertexY = fit.A*fit.VertexT*fit.VertexT + fit.B*fit.VertexT + fit.C
	}

	return fit, true
}
