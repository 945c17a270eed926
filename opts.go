package canbtr

import (
	"fmt"
	"time"
)

type Opts func(s *Session) error

// OptTolerance sets the accepted relative bitrate error, 0.001 by default.
func OptTolerance(tolerance float64) Opts {
	return func(s *Session) error {
		if tolerance < 0 {
			return fmt.Errorf("%w: negative tolerance %v", ErrInvalidParameter, tolerance)
		}
		s.tolerance = tolerance
		return nil
	}
}

// OptReadWindow sets how long to collect the answer after each command.
func OptReadWindow(d time.Duration) Opts {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("%w: read window must be positive, got %s", ErrInvalidParameter, d)
		}
		s.readWindow = d
		return nil
	}
}

func OptTripleSampling(enabled bool) Opts {
	return func(s *Session) error {
		s.tripleSample = enabled
		return nil
	}
}

// OptTiming skips the solver and uses an explicit register assignment. It is
// still checked against the constraints and the tolerance.
func OptTiming(prescaler, tseg1, tseg2, sjw int) Opts {
	return func(s *Session) error {
		s.timing = &[4]int{prescaler, tseg1, tseg2, sjw}
		return nil
	}
}

func OptOnMessage(fn func(string)) Opts {
	return func(s *Session) error {
		if fn != nil {
			s.onMessage = fn
		}
		return nil
	}
}

func OptOnStateChange(fn func(from, to State)) Opts {
	return func(s *Session) error {
		s.onStateChange = fn
		return nil
	}
}

// OptDebug enables >> and << traces of the wire traffic.
func OptDebug(enabled bool) Opts {
	return func(s *Session) error {
		s.debug = enabled
		return nil
	}
}
