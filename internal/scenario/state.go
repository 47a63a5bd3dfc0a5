package scenario

// State is the phase a scenario run is in.
type State int

const (
	StateIdle State = iota
	StateProvisioned
	StateRunning
	StateFaultInjected
	StateVerified
	StateTornDown
	// StateFailed marks a run that stopped early. Teardown still follows it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProvisioned:
		return "provisioned"
	case StateRunning:
		return "running"
	case StateFaultInjected:
		return "fault-injected"
	case StateVerified:
		return "verified"
	case StateTornDown:
		return "torn-down"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
