package rally

import (
	"fmt"
	"math"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // New track, needs confirmation
	TrackConfirmed TrackState = "confirmed" // Stable track with sufficient history
	TrackExpired   TrackState = "expired"   // Track missed too many frames
)

const (
	// minDeterminantThreshold is the minimum determinant for innovation
	// covariance inversion.
	minDeterminantThreshold = 1e-12
	// singularDistanceRejection is the distance returned when the covariance
	// is singular, which rejects the association.
	singularDistanceRejection = 1e9
)

// Sample is one observed (not predicted) ball position in a track's history.
type Sample struct {
	Pos       Point
	Timestamp float64 // seconds from the start of the video
}

// Track is a hypothesized continuous path of the ball across frames. It
// carries a constant-velocity Kalman state and an append-only history of
// observed positions in temporal order.
type Track struct {
	ID    string
	State TrackState

	// Lifecycle counters
	Hits   int // Consecutive successful associations
	Misses int // Consecutive missed associations

	// Kalman state [x, y, vx, vy], normalized units
	X  float64
	Y  float64
	VX float64
	VY float64

	// Kalman covariance (4x4, row-major)
	P [16]float64

	// History of observed positions; insertion order is temporal order.
	Samples []Sample
}

// LastSample returns the most recent observed sample.
// Tracks always hold at least the sample they were created from.
func (tr *Track) LastSample() Sample {
	return tr.Samples[len(tr.Samples)-1]
}

// Speed returns the current speed magnitude of the filter state,
// in normalized units per second.
func (tr *Track) Speed() float64 {
	return math.Sqrt(tr.VX*tr.VX + tr.VY*tr.VY)
}

// Tracker maintains candidate ball tracks across frames using a
// constant-velocity motion filter with gated nearest-neighbour association.
type Tracker struct {
	Tracks      map[string]*Track
	NextTrackID int64
	Config      ProcessorConfig

	lastUpdateTS float64
	hasUpdated   bool

	// Run counters for stats reporting.
	Created int
	Expired int
}

// NewTracker creates a tracker from a config snapshot.
func NewTracker(cfg ProcessorConfig) *Tracker {
	return &Tracker{
		Tracks:      make(map[string]*Track),
		NextTrackID: 1,
		Config:      cfg,
	}
}

// Update advances all live tracks to the frame timestamp, associates the
// frame's detections, corrects matched tracks, starts new tracks for
// unmatched detections, and expires tracks missing for too long.
//
// The frame loop is strictly sequential; Update must be called with
// non-decreasing timestamps.
func (t *Tracker) Update(detections []Detection, ts float64) {
	// dt from the previous frame; first frame assumes the nominal rate.
	dt := 1.0 / t.Config.AssumedFPS
	if t.hasUpdated && ts > t.lastUpdateTS {
		dt = ts - t.lastUpdateTS
	}
	t.lastUpdateTS = ts
	t.hasUpdated = true

	// Step 1: predict all live tracks to the current time.
	for _, track := range t.Tracks {
		if track.State != TrackExpired {
			t.predict(track, dt)
		}
	}

	// Step 2: associate detections to tracks using gating.
	associations := t.associate(detections)

	// Step 3: correct matched tracks.
	matched := make(map[string]bool)
	for di, trackID := range associations {
		if trackID == "" {
			continue
		}
		track := t.Tracks[trackID]
		t.correct(track, detections[di], ts)
		track.Hits++
		track.Misses = 0
		matched[trackID] = true

		if track.State == TrackTentative && track.Hits >= t.Config.HitsToConfirm {
			track.State = TrackConfirmed
			tracef("[Tracker] %s confirmed after %d hits", track.ID, track.Hits)
		}
	}

	// Step 4: advance miss counters on unmatched tracks and expire any track
	// missing for MaxMisses consecutive frames. Expiry bounds track lifetime;
	// without it a lost ball would coast forever on predictions.
	for id, track := range t.Tracks {
		if matched[id] || track.State == TrackExpired {
			continue
		}
		track.Misses++
		track.Hits = 0
		if track.Misses >= t.Config.MaxMisses {
			track.State = TrackExpired
			t.Expired++
			delete(t.Tracks, id)
			tracef("[Tracker] %s expired after %d misses", id, track.Misses)
		}
	}

	// Step 5: start new tracks from unassociated detections.
	for di, trackID := range associations {
		if trackID == "" && len(t.Tracks) < t.Config.MaxTracks {
			t.initTrack(detections[di], ts)
		}
	}
}

// ActiveTrack returns the freshest live track: the one whose most recent
// observed sample is latest. This is the single track fed downstream each
// frame, matching the single-ball assumption of the sport. Returns nil when
// no track is live.
func (t *Tracker) ActiveTrack() *Track {
	var best *Track
	for _, track := range t.Tracks {
		if best == nil || track.LastSample().Timestamp > best.LastSample().Timestamp {
			best = track
		}
	}
	return best
}

// LiveTrackCount returns the number of tracks currently maintained.
func (t *Tracker) LiveTrackCount() int {
	return len(t.Tracks)
}

// predict applies the Kalman prediction step using the constant velocity
// model. The covariance propagation is computed inline for the fixed
// F = [1 0 dt 0; 0 1 0 dt; 0 0 1 0; 0 0 0 1].
func (t *Tracker) predict(track *Track, dt float64) {
	track.X += track.VX * dt
	track.Y += track.VY * dt

	P := track.P

	// FP = F * P
	var FP [16]float64
	for j := 0; j < 4; j++ {
		FP[0*4+j] = P[0*4+j] + dt*P[2*4+j]
		FP[1*4+j] = P[1*4+j] + dt*P[3*4+j]
		FP[2*4+j] = P[2*4+j]
		FP[3*4+j] = P[3*4+j]
	}

	// P' = FP * F^T
	for i := 0; i < 4; i++ {
		track.P[i*4+0] = FP[i*4+0] + dt*FP[i*4+2]
		track.P[i*4+1] = FP[i*4+1] + dt*FP[i*4+3]
		track.P[i*4+2] = FP[i*4+2]
		track.P[i*4+3] = FP[i*4+3]
	}

	// Add process noise Q = diag(σ_pos², σ_pos², σ_vel², σ_vel²)
	track.P[0*4+0] += t.Config.ProcessNoisePos
	track.P[1*4+1] += t.Config.ProcessNoisePos
	track.P[2*4+2] += t.Config.ProcessNoiseVel
	track.P[3*4+3] += t.Config.ProcessNoiseVel
}

// associate performs detection-to-track association using Mahalanobis gating
// and greedy nearest neighbour. Returns a slice mapping detection index to
// track ID (empty string for unassociated).
func (t *Tracker) associate(detections []Detection) []string {
	associations := make([]string, len(detections))

	trackUsed := make(map[string]bool)
	for di, det := range detections {
		center := det.Center()

		bestID := ""
		bestDist2 := t.Config.GatingDistanceSquared
		for id, track := range t.Tracks {
			if trackUsed[id] {
				continue
			}
			dist2 := t.mahalanobisDistanceSquared(track, center)
			if dist2 < bestDist2 {
				bestDist2 = dist2
				bestID = id
			}
		}

		if bestID != "" {
			associations[di] = bestID
			trackUsed[bestID] = true
		}
	}

	return associations
}

// mahalanobisDistanceSquared computes the squared Mahalanobis distance for
// gating, using only the position block of the state.
func (t *Tracker) mahalanobisDistanceSquared(track *Track, p Point) float64 {
	dx := p.X - track.X
	dy := p.Y - track.Y

	// Innovation covariance S = H*P*H^T + R with H extracting position.
	S00 := track.P[0*4+0] + t.Config.MeasurementNoise
	S01 := track.P[0*4+1]
	S10 := track.P[1*4+0]
	S11 := track.P[1*4+1] + t.Config.MeasurementNoise

	det := S00*S11 - S01*S10
	if det < minDeterminantThreshold {
		return singularDistanceRejection
	}

	invS00 := S11 / det
	invS01 := -S01 / det
	invS10 := -S10 / det
	invS11 := S00 / det

	return dx*dx*invS00 + dx*dy*(invS01+invS10) + dy*dy*invS11
}

// correct applies the Kalman update step with a matched detection and
// records the observed position in the track's sample history.
func (t *Tracker) correct(track *Track, det Detection, ts float64) {
	z := det.Center()

	yX := z.X - track.X
	yY := z.Y - track.Y

	S00 := track.P[0*4+0] + t.Config.MeasurementNoise
	S01 := track.P[0*4+1]
	S10 := track.P[1*4+0]
	S11 := track.P[1*4+1] + t.Config.MeasurementNoise

	det2 := S00*S11 - S01*S10
	if det2 < minDeterminantThreshold {
		return // Cannot update with singular covariance
	}

	invS00 := S11 / det2
	invS01 := -S01 / det2
	invS10 := -S10 / det2
	invS11 := S00 / det2

	// Kalman gain K = P * H^T * S^-1 (4x2)
	var K [8]float64
	for i := 0; i < 4; i++ {
		K[i*2+0] = track.P[i*4+0]*invS00 + track.P[i*4+1]*invS10
		K[i*2+1] = track.P[i*4+0]*invS01 + track.P[i*4+1]*invS11
	}

	// State update x' = x + K*y
	track.X += K[0*2+0]*yX + K[0*2+1]*yY
	track.Y += K[1*2+0]*yX + K[1*2+1]*yY
	track.VX += K[2*2+0]*yX + K[2*2+1]*yY
	track.VY += K[3*2+0]*yX + K[3*2+1]*yY

	// Covariance update P' = (I - K*H) * P. K*H only touches the first two
	// columns because H observes position only.
	var IminusKH [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			identity := 0.0
			if i == j {
				identity = 1
			}
			var kh float64
			if j == 0 {
				kh = K[i*2+0]
			} else if j == 1 {
				kh = K[i*2+1]
			}
			IminusKH[i*4+j] = identity - kh
		}
	}
	var newP [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += IminusKH[i*4+k] * track.P[k*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	track.P = newP

	// Record the observed (not predicted) position.
	track.Samples = append(track.Samples, Sample{Pos: z, Timestamp: ts})
	if t.Config.MaxTrackSamples > 0 && len(track.Samples) > t.Config.MaxTrackSamples {
		track.Samples = track.Samples[len(track.Samples)-t.Config.MaxTrackSamples:]
	}
}

// initTrack creates a new tentative track from an unassociated detection.
func (t *Tracker) initTrack(det Detection, ts float64) *Track {
	id := fmt.Sprintf("trk_%d", t.NextTrackID)
	t.NextTrackID++
	t.Created++

	c := det.Center()
	track := &Track{
		ID:    id,
		State: TrackTentative,
		Hits:  1,

		X: c.X,
		Y: c.Y,

		// High position uncertainty, lower velocity uncertainty.
		P: [16]float64{
			0.01, 0, 0, 0,
			0, 0.01, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		},

		Samples: []Sample{{Pos: c, Timestamp: ts}},
	}

	t.Tracks[id] = track
	return track
}
