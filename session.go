package canbtr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roffe/canbtr/pkg/btr"
	"github.com/roffe/canbtr/pkg/slcan"
)

// Session is one configuration attempt. It borrows the transport for the
// duration of Run.
type Session struct {
	t        Transport
	state    State
	last     *slcan.Response
	solution *btr.Solution
	regs     slcan.RegisterPair

	tolerance     float64
	readWindow    time.Duration
	tripleSample  bool
	timing        *[4]int
	debug         bool
	onMessage     func(string)
	onStateChange func(from, to State)

	releaseOnce sync.Once
	mu          sync.Mutex
	isReleased  bool
	closeErr    error
}

func (s *Session) State() State {
	return s.state
}

// Solution returns the timing that was sent, nil if solving failed.
func (s *Session) Solution() *btr.Solution {
	return s.solution
}

func (s *Session) Registers() slcan.RegisterPair {
	return s.regs
}

// LastResponse returns the answer to the last command sent, nil if nothing
// was sent.
func (s *Session) LastResponse() *slcan.Response {
	return s.last
}

// Transport returns the open transport once the session reached Open. The
// caller owns it from then on.
func (s *Session) Transport() Transport {
	if s.state != Open {
		return nil
	}
	return s.t
}

// CloseError returns the error from closing the transport, if any.
func (s *Session) CloseError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

func (s *Session) solve(bitrate int, c btr.Constraints) error {
	var (
		sol *btr.Solution
		err error
	)
	if s.timing != nil {
		sol, err = btr.Check(bitrate, c, s.tolerance, s.timing[0], s.timing[1], s.timing[2], s.timing[3])
	} else {
		sol, err = btr.Solve(bitrate, c, s.tolerance)
	}
	if err != nil {
		return err
	}
	s.solution = sol
	s.regs = slcan.Registers(sol, s.tripleSample)
	s.onMessage(fmt.Sprintf("%d bps at %d Hz: %s, %s", bitrate, c.Clock, sol, s.regs))
	return nil
}

func (s *Session) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.setState(Error)
			s.release()
			panic(r)
		}
	}()
	unwatch := s.watch(ctx)
	defer unwatch()

	s.setState(Closing)
	resp, err := s.exchange(ctx, slcan.NewClose())
	if err != nil {
		return err
	}
	switch resp.Class {
	case slcan.Empty:
		s.onMessage("no response to close, assuming channel is closed")
	case slcan.Nak, slcan.Unknown:
		s.onMessage("ignoring " + resp.String())
	}

	s.setState(Configuring)
	resp, err = s.exchange(ctx, slcan.NewSetBitTiming(s.regs))
	if err != nil {
		return err
	}
	switch resp.Class {
	case slcan.Empty:
		s.onMessage("no response to bit timing command (this is normal for many adapters)")
	case slcan.Nak, slcan.Unknown:
		s.onMessage("ignoring " + resp.String())
	}

	s.setState(Opening)
	resp, err = s.exchange(ctx, slcan.NewOpen())
	if err != nil {
		return err
	}
	switch resp.Class {
	case slcan.Nak, slcan.Unknown:
		return &ProtocolError{Stage: Opening, Response: resp}
	case slcan.Empty:
		s.onMessage("no response to open, assuming channel is open")
	}

	s.setState(Open)
	return nil
}

// exchange writes one command and collects the answer for one read window.
func (s *Session) exchange(ctx context.Context, cmd slcan.Command) (slcan.Response, error) {
	if err := ctx.Err(); err != nil {
		return slcan.Response{}, fmt.Errorf("%s: %w", s.state, err)
	}
	if s.debug {
		s.onMessage(">> " + cmd.String())
	}
	if err := s.t.Write(cmd.Encode()); err != nil {
		return slcan.Response{}, s.transportError(ctx, "write", err)
	}
	b, err := s.t.ReadAvailable(s.readWindow)
	if err != nil {
		return slcan.Response{}, s.transportError(ctx, "read", err)
	}
	resp := slcan.Classify(b, cmd.Kind)
	s.last = &resp
	if s.debug {
		s.onMessage(fmt.Sprintf("<< %q %s", b, resp.Class))
	}
	return resp, nil
}

// transportError blames cancellation when the watcher closed the link under us.
func (s *Session) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", s.state, ctxErr)
	}
	return &TransportError{Stage: s.state, Op: op, Err: err}
}

// watch closes the transport if ctx is cancelled while a command is in
// flight, unblocking any pending read.
func (s *Session) watch(ctx context.Context) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			s.release()
		case <-stop:
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.onStateChange != nil {
		s.onStateChange(from, to)
	}
}

func (s *Session) fail(err error) error {
	s.setState(Error)
	s.release()
	if closeErr := s.CloseError(); closeErr != nil {
		s.onMessage("failed to close transport: " + closeErr.Error())
	}
	return err
}

func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.isReleased = true
		s.mu.Unlock()
		err := s.t.Close()
		s.mu.Lock()
		s.closeErr = err
		s.mu.Unlock()
	})
}

func (s *Session) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isReleased
}
