package rally

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const frameDT = 1.0 / 30

func TestDeciderRequiresSustainedActivity(t *testing.T) {
	cfg := DefaultProcessorConfig()
	m := NewStateMachine(cfg)

	// Activity shorter than StartBuffer never confirms a rally.
	ts := 0.0
	for ts < cfg.StartBuffer-frameDT {
		active := m.Update(true, ts)
		assert.False(t, active, "active at %.3fs, before the start buffer elapsed", ts)
		ts += frameDT
	}

	// The frame that crosses the buffer flips the state.
	for m.State() == RallyIdle {
		m.Update(true, ts)
		ts += frameDT
	}
	assert.Equal(t, RallyActive, m.State())
	assert.LessOrEqual(t, ts, cfg.StartBuffer+2*frameDT)
	assert.Equal(t, 1, m.Transitions())
}

func TestDeciderSingleActiveFrameIsNotARally(t *testing.T) {
	cfg := DefaultProcessorConfig()
	m := NewStateMachine(cfg)

	assert.False(t, m.Update(true, 1.0))
	for i := 1; i <= 90; i++ {
		assert.False(t, m.Update(false, 1.0+float64(i)*frameDT))
	}
	assert.Equal(t, 0, m.Transitions())
}

func TestDeciderEndsAfterTimeout(t *testing.T) {
	cfg := DefaultProcessorConfig()
	m := NewStateMachine(cfg)

	ts := 0.0
	for m.State() == RallyIdle {
		m.Update(true, ts)
		ts += frameDT
	}
	lastActive := ts
	m.Update(true, lastActive)

	// Silence shorter than EndTimeout keeps the rally alive.
	for ts = lastActive + frameDT; ts-lastActive < cfg.EndTimeout-frameDT; ts += frameDT {
		assert.True(t, m.Update(false, ts), "dropped out at %.3fs, before the end timeout", ts)
	}

	for m.State() == RallyActive {
		m.Update(false, ts)
		ts += frameDT
	}
	assert.Equal(t, RallyIdle, m.State())
	assert.InDelta(t, lastActive+cfg.EndTimeout, ts, 3*frameDT)
	assert.Equal(t, 2, m.Transitions())
}

func TestDeciderBriefDropoutDoesNotEndRally(t *testing.T) {
	cfg := DefaultProcessorConfig()
	m := NewStateMachine(cfg)

	ts := 0.0
	for m.State() == RallyIdle {
		m.Update(true, ts)
		ts += frameDT
	}

	// Half the timeout of silence, then activity resumes.
	for i := 0; i < int(cfg.EndTimeout/frameDT/2); i++ {
		assert.True(t, m.Update(false, ts))
		ts += frameDT
	}
	assert.True(t, m.Update(true, ts))
	assert.Equal(t, RallyActive, m.State())
	assert.Equal(t, 1, m.Transitions())
}

// The candidate start survives activity lapses while idle. Intermittent
// activity therefore accumulates against the first active timestamp, so a
// resumption long after the first candidate can confirm immediately.
func TestDeciderCandidateSurvivesLapse(t *testing.T) {
	cfg := DefaultProcessorConfig()
	m := NewStateMachine(cfg)

	assert.False(t, m.Update(true, 0))
	for ts := frameDT; ts < 0.25; ts += frameDT {
		assert.False(t, m.Update(false, ts))
	}

	// Activity resumes past the buffer measured from the first candidate.
	assert.True(t, m.Update(true, 0.4))
	assert.Equal(t, RallyActive, m.State())
}

func TestDeciderFullCycleCounts(t *testing.T) {
	cfg := DefaultProcessorConfig()
	m := NewStateMachine(cfg)

	ts := 0.0
	advance := func(active bool, seconds float64) {
		end := ts + seconds
		for ; ts < end; ts += frameDT {
			m.Update(active, ts)
		}
	}

	advance(true, 2.0)  // rally one
	advance(false, 2.0) // cooled off
	advance(true, 2.0)  // rally two
	advance(false, 2.0)

	assert.Equal(t, RallyIdle, m.State())
	assert.Equal(t, 4, m.Transitions())
}
