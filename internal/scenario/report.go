package scenario

import (
	"time"

	"github.com/google/uuid"
)

// Ports are the three ports a run allocated.
type Ports struct {
	Store  int `json:"store"`
	Proxy  int `json:"proxy"`
	Origin int `json:"origin"`
}

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Check is the outcome of one queue length assertion.
type Check struct {
	Point    string `json:"point"`
	Key      string `json:"key"`
	Expected int64  `json:"expected"`
	Observed int64  `json:"observed"`
	Passed   bool   `json:"passed"`
}

// Report describes what a run did. It is returned even when the run failed.
type Report struct {
	ID             string       `json:"id"`
	Ports          Ports        `json:"ports"`
	ConfigPath     string       `json:"configPath,omitempty"`
	State          State        `json:"state"`
	Transitions    []Transition `json:"transitions"`
	Checks         []Check      `json:"checks"`
	OriginRequests uint64       `json:"originRequests"`
	Warnings       []string     `json:"warnings,omitempty"`
	Error          string       `json:"error,omitempty"`
}

func newReport() *Report {
	return &Report{ID: uuid.NewString(), State: StateIdle}
}

// Passed reports whether the run reached the verified state with every check passing.
func (r *Report) Passed() bool {
	if r.Error != "" || len(r.Checks) == 0 {
		return false
	}
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return r.Visited(StateVerified)
}

// Visited reports whether the run passed through s.
func (r *Report) Visited(s State) bool {
	for _, t := range r.Transitions {
		if t.To == s {
			return true
		}
	}
	return false
}
