package chart

// State is the session lifecycle state.
type State int

const (
	// StateUninitialized has no sink and no data.
	StateUninitialized State = iota
	// StateLoading waits for the initial fetch.
	StateLoading
	// StateReady shows data and accepts backfill and refresh.
	StateReady
	// StateBackfillPending waits for a prepend fetch.
	StateBackfillPending
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateBackfillPending:
		return "backfill_pending"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
