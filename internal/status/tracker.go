// internal/status/tracker.go
package status

// Tracker owns the snapshot of one unit. Poll outcomes and a 1 Hz tick
// drive it; each call reports whether the snapshot changed.
// Not safe for concurrent use.
type Tracker struct {
	snap Snapshot

	// StaleAfter is how many ticks without any outcome turn a healthy unit
	// stale. Zero disables.
	StaleAfter int
	idle       int
}

func NewTracker(staleAfter int) *Tracker {
	return &Tracker{
		snap:       Snapshot{Health: HealthUnknown},
		StaleAfter: staleAfter,
	}
}

func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe records one poll outcome. code 0 is success.
func (t *Tracker) Observe(code uint16) bool {
	before := t.snap
	t.idle = 0

	if code == 0 {
		t.snap.Health = HealthOK
		t.snap.LastErrorCode = 0
		t.snap.SecondsInError = 0
		t.snap.PollCount++
	} else {
		t.snap.Health = HealthError
		t.snap.LastErrorCode = code
		if t.snap.ErrorCount < 0xFFFF {
			t.snap.ErrorCount++
		}
		// seconds_in_error increments on Tick only
	}
	return t.snap != before
}

// Tick advances the seconds-in-error counter while the unit is not OK.
func (t *Tracker) Tick() bool {
	before := t.snap

	t.idle++
	if t.StaleAfter > 0 && t.idle > t.StaleAfter && t.snap.Health == HealthOK {
		t.snap.Health = HealthStale
	}

	if t.snap.Health != HealthOK && t.snap.SecondsInError < 0xFFFF {
		t.snap.SecondsInError++
	}
	return t.snap != before
}
