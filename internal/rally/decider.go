package rally

// RallyState is the observable state of the rally decider.
type RallyState string

const (
	RallyIdle   RallyState = "idle"
	RallyActive RallyState = "active"
)

// StateMachine is the hysteresis-debounced rally decider. It consumes a
// per-frame boolean ("is a valid projectile currently being tracked") plus a
// timestamp and flips between Idle and Active without flickering on noisy
// per-frame input: entering Active requires StartBuffer seconds of sustained
// activity, leaving it requires EndTimeout seconds of sustained silence.
type StateMachine struct {
	cfg ProcessorConfig

	state RallyState

	// candidateStart is the timestamp of the first active frame seen while
	// idle. It is intentionally NOT cleared when activity lapses before
	// confirmation, so intermittent activity can still accumulate toward
	// StartBuffer against the first candidate start.
	candidateStart float64
	candidateSet   bool
	lastActiveTS   float64
	transitions    int
}

// NewStateMachine creates a decider from a config snapshot.
func NewStateMachine(cfg ProcessorConfig) *StateMachine {
	return &StateMachine{cfg: cfg, state: RallyIdle}
}

// State returns the current rally state.
func (m *StateMachine) State() RallyState {
	return m.state
}

// Transitions returns how many confirmed state changes have occurred.
func (m *StateMachine) Transitions() int {
	return m.transitions
}

// Update advances the state machine one frame and returns true when the
// rally is active. Timestamps must be non-decreasing.
func (m *StateMachine) Update(isBallActive bool, ts float64) bool {
	switch m.state {
	case RallyIdle:
		if isBallActive {
			if !m.candidateSet {
				m.candidateStart = ts
				m.candidateSet = true
			}
			m.lastActiveTS = ts
			if ts-m.candidateStart >= m.cfg.StartBuffer {
				m.state = RallyActive
				m.candidateSet = false
				m.transitions++
				diagf("[Decider] rally confirmed at %.2fs (candidate %.2fs)", ts, m.candidateStart)
			}
		}

	case RallyActive:
		if isBallActive {
			m.lastActiveTS = ts
		} else if ts-m.lastActiveTS >= m.cfg.EndTimeout {
			m.state = RallyIdle
			m.transitions++
			diagf("[Decider] rally ended at %.2fs (last activity %.2fs)", ts, m.lastActiveTS)
		}
	}

	return m.state == RallyActive
}
