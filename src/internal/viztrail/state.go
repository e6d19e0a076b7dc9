package viztrail

import (
	"github.com/vizierdb/vizier/src/internal/errors"
)

// State is the execution state of a module.
type State int

const (
	Pending State = iota
	Running
	Success
	Error
	Canceled
)

var stateNames = map[State]string{
	Pending:  "PENDING",
	Running:  "RUNNING",
	Success:  "SUCCESS",
	Error:    "ERROR",
	Canceled: "CANCELED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsActive reports whether the module still has to run or is running.
func (s State) IsActive() bool { return s == Pending || s == Running }

// IsTerminal reports whether the state can never change again.
func (s State) IsTerminal() bool { return s == Success || s == Error || s == Canceled }

// IsUnhealthy reports whether the module failed or was canceled.
func (s State) IsUnhealthy() bool { return s == Error || s == Canceled }

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	n, ok := stateNames[s]
	if !ok {
		return nil, errors.Errorf("unknown module state %d", int(s))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st, n := range stateNames {
		if n == string(text) {
			*s = st
			return nil
		}
	}
	return errors.Errorf("unknown module state %q", text)
}

// allowedTransitions lists every state change a module may make.  PENDING to SUCCESS is the reuse
// of a module whose provenance shows it does not need to run again.
var allowedTransitions = map[State][]State{
	Pending: {Running, Success, Canceled},
	Running: {Success, Error, Canceled},
}

func isAllowedTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
