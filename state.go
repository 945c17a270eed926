package canbtr

import "fmt"

type State int

const (
	Idle State = iota
	Closing
	Configuring
	Opening
	Open
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Closing:
		return "Closing"
	case Configuring:
		return "Configuring"
	case Opening:
		return "Opening"
	case Open:
		return "Open"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Open || s == Error
}
