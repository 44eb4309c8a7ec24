package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition is returned when a transition is not in the table.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// State is one value of the session workflow.
type State int32

const (
	NotStarted State = iota
	Detecting
	Detected
	Confirming
	Confirmed
	Searching
	Searched
)

var stateNames = [...]string{
	NotStarted: "NOT_STARTED",
	Detecting:  "DETECTING",
	Detected:   "DETECTED",
	Confirming: "CONFIRMING",
	Confirmed:  "CONFIRMED",
	Searching:  "SEARCHING",
	Searched:   "SEARCHED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState converts a state name to a State.
func ParseState(value string) (State, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for idx, name := range stateNames {
		if name == normalized {
			return State(idx), nil
		}
	}
	return NotStarted, fmt.Errorf("unknown workflow state %q", value)
}

// CameraFrozen reports whether detection results are ignored in s.
func (s State) CameraFrozen(autoSearch bool) bool {
	switch s {
	case Searching, Searched:
		return true
	case Confirmed:
		return autoSearch
	default:
		return false
	}
}

var transitions = map[State][]State{
	NotStarted: {Detecting},
	Detecting:  {Detected, Confirming, NotStarted},
	Detected:   {Detecting, Confirming, NotStarted},
	Confirming: {Confirmed, Detecting, Detected, NotStarted},
	Confirmed:  {Searching, Confirming, Detecting, Detected, NotStarted},
	Searching:  {Searched, Detecting, NotStarted},
	Searched:   {Detecting, NotStarted},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
