package rally

import (
	"math"
	"testing"
)

func detAt(x, y, ts float64) Detection {
	return Detection{
		BBox:       Rect{X: x - 0.01, Y: y - 0.01, W: 0.02, H: 0.02},
		Confidence: 0.9,
		Timestamp:  ts,
	}
}

func TestTrackerCreatesTrackFromDetection(t *testing.T) {
	tr := NewTracker(DefaultProcessorConfig())

	tr.Update([]Detection{detAt(0.5, 0.5, 0)}, 0)

	if got := tr.LiveTrackCount(); got != 1 {
		t.Fatalf("LiveTrackCount = %d, want 1", got)
	}
	track := tr.ActiveTrack()
	if track == nil {
		t.Fatal("ActiveTrack returned nil")
	}
	if track.State != TrackTentative {
		t.Errorf("new track state = %s, want %s", track.State, TrackTentative)
	}
	if len(track.Samples) != 1 {
		t.Errorf("new track has %d samples, want 1", len(track.Samples))
	}
	if math.Abs(track.X-0.5) > 1e-9 || math.Abs(track.Y-0.5) > 1e-9 {
		t.Errorf("track state (%.3f, %.3f), want (0.5, 0.5)", track.X, track.Y)
	}
	if tr.Created != 1 {
		t.Errorf("Created = %d, want 1", tr.Created)
	}
}

func TestTrackerConfirmsAfterConsecutiveHits(t *testing.T) {
	cfg := DefaultProcessorConfig()
	tr := NewTracker(cfg)

	// A ball drifting slowly stays well inside the association gate.
	for i := 0; i < cfg.HitsToConfirm+1; i++ {
		ts := float64(i) / cfg.AssumedFPS
		tr.Update([]Detection{detAt(0.5+0.005*float64(i), 0.5, ts)}, ts)
	}

	if got := tr.LiveTrackCount(); got != 1 {
		t.Fatalf("LiveTrackCount = %d, want 1 (detections should associate, not spawn)", got)
	}
	track := tr.ActiveTrack()
	if track.State != TrackConfirmed {
		t.Errorf("track state = %s after %d hits, want %s", track.State, track.Hits, TrackConfirmed)
	}
	if len(track.Samples) != cfg.HitsToConfirm+1 {
		t.Errorf("track has %d samples, want %d", len(track.Samples), cfg.HitsToConfirm+1)
	}
}

func TestTrackerSpawnsSecondTrackOutsideGate(t *testing.T) {
	tr := NewTracker(DefaultProcessorConfig())

	tr.Update([]Detection{detAt(0.1, 0.1, 0)}, 0)
	// A detection across the frame cannot be the same object.
	tr.Update([]Detection{detAt(0.9, 0.9, 1.0/30)}, 1.0/30)

	if got := tr.LiveTrackCount(); got != 2 {
		t.Fatalf("LiveTrackCount = %d, want 2", got)
	}
	if tr.Created != 2 {
		t.Errorf("Created = %d, want 2", tr.Created)
	}
}

func TestTrackerExpiresAfterMaxMisses(t *testing.T) {
	cfg := DefaultProcessorConfig()
	tr := NewTracker(cfg)

	tr.Update([]Detection{detAt(0.5, 0.5, 0)}, 0)

	for i := 1; i <= cfg.MaxMisses; i++ {
		ts := float64(i) / cfg.AssumedFPS
		tr.Update(nil, ts)
	}

	if got := tr.LiveTrackCount(); got != 0 {
		t.Fatalf("LiveTrackCount = %d after %d misses, want 0", got, cfg.MaxMisses)
	}
	if tr.Expired != 1 {
		t.Errorf("Expired = %d, want 1", tr.Expired)
	}
	if tr.ActiveTrack() != nil {
		t.Error("ActiveTrack should be nil after expiry")
	}
}

func TestTrackerSurvivesMissesBelowLimit(t *testing.T) {
	cfg := DefaultProcessorConfig()
	tr := NewTracker(cfg)

	tr.Update([]Detection{detAt(0.5, 0.5, 0)}, 0)
	for i := 1; i < cfg.MaxMisses; i++ {
		tr.Update(nil, float64(i)/cfg.AssumedFPS)
	}

	if got := tr.LiveTrackCount(); got != 1 {
		t.Fatalf("LiveTrackCount = %d after %d misses, want 1", got, cfg.MaxMisses-1)
	}
	// A reacquisition resets the miss counter.
	ts := float64(cfg.MaxMisses) / cfg.AssumedFPS
	tr.Update([]Detection{detAt(0.5, 0.5, ts)}, ts)
	if got := tr.ActiveTrack().Misses; got != 0 {
		t.Errorf("Misses = %d after reacquisition, want 0", got)
	}
}

func TestActiveTrackPrefersFreshestSamples(t *testing.T) {
	tr := NewTracker(DefaultProcessorConfig())

	// Track A is born first and then lost; track B keeps receiving
	// observations, so its last sample is newer.
	tr.Update([]Detection{detAt(0.1, 0.1, 0)}, 0)
	a := tr.ActiveTrack()

	for i := 1; i <= 5; i++ {
		ts := float64(i) / 30
		tr.Update([]Detection{detAt(0.9, 0.9, ts)}, ts)
	}

	b := tr.ActiveTrack()
	if b == nil || b.ID == a.ID {
		t.Fatalf("ActiveTrack = %v, want the track observed last", b)
	}
	if b.LastSample().Timestamp <= a.LastSample().Timestamp {
		t.Errorf("freshest track last sample %.3f not newer than %.3f",
			b.LastSample().Timestamp, a.LastSample().Timestamp)
	}
}

func TestTrackerBoundsSampleHistory(t *testing.T) {
	cfg := DefaultProcessorConfig()
	cfg.MaxTrackSamples = 10
	tr := NewTracker(cfg)

	for i := 0; i < 40; i++ {
		ts := float64(i) / cfg.AssumedFPS
		tr.Update([]Detection{detAt(0.5, 0.5+0.001*float64(i), ts)}, ts)
	}

	track := tr.ActiveTrack()
	if len(track.Samples) != cfg.MaxTrackSamples {
		t.Fatalf("sample history length = %d, want %d", len(track.Samples), cfg.MaxTrackSamples)
	}
	// The kept window must be the most recent samples, oldest first.
	for i := 1; i < len(track.Samples); i++ {
		if track.Samples[i].Timestamp <= track.Samples[i-1].Timestamp {
			t.Fatalf("sample history out of order at %d", i)
		}
	}
	wantLast := 39.0 / cfg.AssumedFPS
	if got := track.LastSample().Timestamp; math.Abs(got-wantLast) > 1e-9 {
		t.Errorf("last sample timestamp = %.4f, want %.4f", got, wantLast)
	}
}

func TestTrackerRespectsMaxTracks(t *testing.T) {
	cfg := DefaultProcessorConfig()
	cfg.MaxTracks = 2
	tr := NewTracker(cfg)

	// Three mutually distant detections in one frame.
	tr.Update([]Detection{
		detAt(0.1, 0.1, 0),
		detAt(0.9, 0.1, 0),
		detAt(0.5, 0.9, 0),
	}, 0)

	if got := tr.LiveTrackCount(); got != 2 {
		t.Fatalf("LiveTrackCount = %d, want cap of 2", got)
	}
}
