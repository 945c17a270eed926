// Package btr calculates bit-timing parameters for SJA1000 style CAN controllers.
//
// The controller derives its bit time from the oscillator clock as
//
//	bitrate = clock / (prescaler * (1 + tseg1 + tseg2))
//
// where the leading 1 is the synchronisation segment.
package btr

import (
	"errors"
	"fmt"
	"math"
)

// Target sample point expressed as SamplePointNum/SamplePointDen (87.5%).
const (
	SamplePointNum = 7
	SamplePointDen = 8
)

// DefaultTolerance is the relative bitrate error accepted by default (0.1%).
const DefaultTolerance = 0.001

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNoFeasibleTiming = errors.New("no feasible bit timing")
)

// Range is an inclusive interval of register values.
type Range struct {
	Min, Max int
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

func (r Range) contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Constraints describes the hardware limits of the controller.
type Constraints struct {
	Clock     int // oscillator frequency in Hz
	Prescaler Range
	TSEG1     Range
	TSEG2     Range
	SJW       Range
}

// DefaultConstraints returns the SJA1000 register limits for the given clock.
func DefaultConstraints(clock int) Constraints {
	return Constraints{
		Clock:     clock,
		Prescaler: Range{1, 64},
		TSEG1:     Range{1, 16},
		TSEG2:     Range{1, 8},
		SJW:       Range{1, 4},
	}
}

// Validate checks that the constraints fit in the BTR0/BTR1 register fields.
func (c Constraints) Validate() error {
	if c.Clock <= 0 {
		return fmt.Errorf("%w: clock must be positive, got %d", ErrInvalidParameter, c.Clock)
	}
	limits := []struct {
		name  string
		r     Range
		limit int
	}{
		{"prescaler", c.Prescaler, 64},
		{"tseg1", c.TSEG1, 16},
		{"tseg2", c.TSEG2, 8},
		{"sjw", c.SJW, 4},
	}
	for _, l := range limits {
		if l.r.Min < 1 || l.r.Min > l.r.Max || l.r.Max > l.limit {
			return fmt.Errorf("%w: %s range %s outside [1,%d]", ErrInvalidParameter, l.name, l.r, l.limit)
		}
	}
	return nil
}

// Solution is one register assignment and the bitrate it produces.
type Solution struct {
	Clock     int
	Target    int
	Prescaler int
	TSEG1     int
	TSEG2     int
	SJW       int
	Bitrate   int
}

// Quanta returns the number of time quanta in one bit.
func (s *Solution) Quanta() int {
	return 1 + s.TSEG1 + s.TSEG2
}

// SamplePoint returns the fraction of the bit time at which the bus is sampled.
func (s *Solution) SamplePoint() float64 {
	return float64(s.TSEG1+1) / float64(s.Quanta())
}

// RelativeError returns the relative error between the achieved and the target bitrate.
func (s *Solution) RelativeError() float64 {
	if s.Target == 0 {
		return 0
	}
	return math.Abs(float64(s.Bitrate-s.Target)) / float64(s.Target)
}

func (s *Solution) String() string {
	return fmt.Sprintf("brp=%d tseg1=%d tseg2=%d sjw=%d bitrate=%d (%.4f%%) sp=%.1f%%",
		s.Prescaler, s.TSEG1, s.TSEG2, s.SJW, s.Bitrate, s.RelativeError()*100, s.SamplePoint()*100)
}

// NoFeasibleTimingError is returned when no candidate is within tolerance.
// Best holds the candidate with the lowest error, or nil if the search space
// was empty.
type NoFeasibleTimingError struct {
	Target    int
	Clock     int
	Tolerance float64
	Best      *Solution
}

func (e *NoFeasibleTimingError) Error() string {
	if e.Best == nil {
		return fmt.Sprintf("no feasible bit timing for %d bps at %d Hz", e.Target, e.Clock)
	}
	return fmt.Sprintf("no feasible bit timing for %d bps at %d Hz within %.4f%%, closest %s",
		e.Target, e.Clock, e.Tolerance*100, e.Best)
}

func (e *NoFeasibleTimingError) Is(target error) bool {
	return target == ErrNoFeasibleTiming
}

// Solve finds the register values reproducing target within tolerance.
//
// Candidates are ranked by relative error, then by distance of the sample
// point from 87.5%, then by smallest prescaler and finally by fewest quanta,
// so the result does not depend on the enumeration order. SJW is fixed at
// the lower bound of its range.
func Solve(target int, c Constraints, tolerance float64) (*Solution, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: bitrate must be positive, got %d", ErrInvalidParameter, target)
	}
	if tolerance < 0 || math.IsNaN(tolerance) || math.IsInf(tolerance, 0) {
		return nil, fmt.Errorf("%w: tolerance must be a finite non-negative number, got %v", ErrInvalidParameter, tolerance)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	sjw := c.SJW.Min
	var best, bestAccepted *Solution
	for brp := c.Prescaler.Min; brp <= c.Prescaler.Max; brp++ {
		for tseg1 := c.TSEG1.Min; tseg1 <= c.TSEG1.Max; tseg1++ {
			for tseg2 := c.TSEG2.Min; tseg2 <= c.TSEG2.Max; tseg2++ {
				if tseg2 < sjw {
					continue
				}
				cand := &Solution{
					Clock:     c.Clock,
					Target:    target,
					Prescaler: brp,
					TSEG1:     tseg1,
					TSEG2:     tseg2,
					SJW:       sjw,
					Bitrate:   c.Clock / (brp * (1 + tseg1 + tseg2)),
				}
				if best == nil || better(cand, best) {
					best = cand
				}
				if !withinTolerance(cand, tolerance) {
					continue
				}
				if bestAccepted == nil || better(cand, bestAccepted) {
					bestAccepted = cand
				}
			}
		}
	}
	if bestAccepted == nil {
		return nil, &NoFeasibleTimingError{
			Target:    target,
			Clock:     c.Clock,
			Tolerance: tolerance,
			Best:      best,
		}
	}
	return bestAccepted, nil
}

func withinTolerance(s *Solution, tolerance float64) bool {
	return float64(absInt(s.Bitrate-s.Target)) <= tolerance*float64(s.Target)
}

// better reports whether a ranks before b. Both must share the same target.
func better(a, b *Solution) bool {
	if ea, eb := absInt(a.Bitrate-a.Target), absInt(b.Bitrate-b.Target); ea != eb {
		return ea < eb
	}
	// |sp - 7/8| = |8(tseg1+1) - 7q| / 8q, compared by cross multiplication.
	na, da := spDistance(a)
	nb, db := spDistance(b)
	if l, r := na*db, nb*da; l != r {
		return l < r
	}
	if a.Prescaler != b.Prescaler {
		return a.Prescaler < b.Prescaler
	}
	if sa, sb := a.TSEG1+a.TSEG2, b.TSEG1+b.TSEG2; sa != sb {
		return sa < sb
	}
	return a.TSEG2 < b.TSEG2
}

func spDistance(s *Solution) (num, den int) {
	q := s.Quanta()
	return absInt(SamplePointDen*(s.TSEG1+1) - SamplePointNum*q), SamplePointDen * q
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Check validates an explicit register assignment against the constraints and
// the tolerance, returning it as a Solution.
func Check(target int, c Constraints, tolerance float64, prescaler, tseg1, tseg2, sjw int) (*Solution, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: bitrate must be positive, got %d", ErrInvalidParameter, target)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !c.Prescaler.contains(prescaler) || !c.TSEG1.contains(tseg1) || !c.TSEG2.contains(tseg2) || !c.SJW.contains(sjw) {
		return nil, fmt.Errorf("%w: brp=%d tseg1=%d tseg2=%d sjw=%d outside constraints", ErrInvalidParameter, prescaler, tseg1, tseg2, sjw)
	}
	s := &Solution{
		Clock:     c.Clock,
		Target:    target,
		Prescaler: prescaler,
		TSEG1:     tseg1,
		TSEG2:     tseg2,
		SJW:       sjw,
		Bitrate:   c.Clock / (prescaler * (1 + tseg1 + tseg2)),
	}
	if !withinTolerance(s, tolerance) {
		return nil, &NoFeasibleTimingError{Target: target, Clock: c.Clock, Tolerance: tolerance, Best: s}
	}
	return s, nil
}
