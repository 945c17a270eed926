package canbtr

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roffe/canbtr/pkg/btr"
	"github.com/roffe/canbtr/pkg/slcan"
)

var (
	ack = []byte{slcan.CR}
	nak = []byte{slcan.BEL}
)

type step struct {
	resp     []byte
	writeErr error
	readErr  error
}

// scriptedTransport answers command n with script[n] and with fallback once
// the script runs out.
type scriptedTransport struct {
	mu       sync.Mutex
	script   []step
	fallback []byte
	writes   [][]byte
	reads    int
	closed   int
	panicAt  int
}

func (f *scriptedTransport) current() step {
	if i := len(f.writes) - 1; i >= 0 && i < len(f.script) {
		return f.script[i]
	}
	return step{resp: f.fallback}
}

func (f *scriptedTransport) Write(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), b...))
	if f.panicAt > 0 && len(f.writes) == f.panicAt {
		panic("write exploded")
	}
	return f.current().writeErr
}

func (f *scriptedTransport) ReadAvailable(time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	st := f.current()
	return st.resp, st.readErr
}

func (f *scriptedTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func quiet(string) {}

func TestRunReachesOpen(t *testing.T) {
	tr := &scriptedTransport{script: []step{{resp: ack}, {resp: nil}, {resp: ack}}}
	var states []State
	s, err := Run(context.Background(), tr, 666666, btr.DefaultConstraints(24000000),
		OptOnMessage(quiet),
		OptOnStateChange(func(from, to State) { states = append(states, to) }),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.State() != Open {
		t.Errorf("State() = %s, want Open", s.State())
	}
	if tr.closed != 0 {
		t.Errorf("transport closed %d times, want open", tr.closed)
	}
	if s.Transport() == nil {
		t.Error("Transport() = nil after Open")
	}
	want := [][]byte{[]byte("C\r"), []byte("s011E\r"), []byte("O\r")}
	if len(tr.writes) != len(want) {
		t.Fatalf("writes = %q, want %q", tr.writes, want)
	}
	for i := range want {
		if !bytes.Equal(tr.writes[i], want[i]) {
			t.Errorf("write %d = %q, want %q", i, tr.writes[i], want[i])
		}
	}
	wantStates := []State{Closing, Configuring, Opening, Open}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Errorf("state %d = %s, want %s", i, states[i], wantStates[i])
		}
	}
}

func TestRunExplicitTiming(t *testing.T) {
	tr := &scriptedTransport{fallback: ack}
	s, err := Run(context.Background(), tr, 666666, btr.DefaultConstraints(24000000),
		OptOnMessage(quiet),
		OptTiming(3, 9, 2, 1),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := s.Registers(); got != (slcan.RegisterPair{BTR0: 0x02, BTR1: 0x18}) {
		t.Errorf("Registers() = %s, want BTR0=0x02 BTR1=0x18", got)
	}
	if !bytes.Equal(tr.writes[1], []byte("s0218\r")) {
		t.Errorf("bit timing command = %q, want %q", tr.writes[1], "s0218\r")
	}
}

func TestRunTolerated(t *testing.T) {
	tests := []struct {
		name   string
		script []step
	}{
		{"silent adapter", []step{{}, {}, {}}},
		{"nak on close", []step{{resp: nak}, {resp: ack}, {resp: ack}}},
		{"garbage on close", []step{{resp: []byte("z\r")}, {}, {resp: ack}}},
		{"nak on bit timing", []step{{resp: ack}, {resp: nak}, {resp: ack}}},
		{"garbage on bit timing", []step{{resp: ack}, {resp: []byte("?")}, {resp: ack}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{script: tt.script}
			s, err := Run(context.Background(), tr, 500000, btr.DefaultConstraints(16000000), OptOnMessage(quiet))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if s.State() != Open {
				t.Errorf("State() = %s, want Open", s.State())
			}
		})
	}
}

func TestRunRejected(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		class slcan.Class
	}{
		{"nak", nak, slcan.Nak},
		{"unknown", []byte("V1011\r"), slcan.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{script: []step{{resp: ack}, {resp: ack}, {resp: tt.reply}}}
			s, err := Run(context.Background(), tr, 500000, btr.DefaultConstraints(16000000), OptOnMessage(quiet))
			if !errors.Is(err, ErrProtocolRejected) {
				t.Fatalf("Run() error = %v, want ErrProtocolRejected", err)
			}
			if errors.Is(err, ErrTransport) {
				t.Error("protocol rejection matches ErrTransport")
			}
			var pe *ProtocolError
			if !errors.As(err, &pe) || pe.Stage != Opening || pe.Response.Class != tt.class {
				t.Errorf("Run() error = %#v", err)
			}
			if s.State() != Error {
				t.Errorf("State() = %s, want Error", s.State())
			}
			if tr.closed != 1 {
				t.Errorf("transport closed %d times, want 1", tr.closed)
			}
			if s.Transport() != nil {
				t.Error("Transport() should be nil after Error")
			}
			if last := s.LastResponse(); last == nil || last.Class != tt.class {
				t.Errorf("LastResponse() = %v", last)
			}
		})
	}
}

func TestRunTransportFailure(t *testing.T) {
	linkGone := errors.New("input/output error")
	tests := []struct {
		name       string
		script     []step
		stage      State
		op         string
		wantWrites int
	}{
		{"write close", []step{{writeErr: linkGone}}, Closing, "write", 1},
		{"read close", []step{{readErr: linkGone}}, Closing, "read", 1},
		{"write bit timing", []step{{resp: ack}, {writeErr: linkGone}}, Configuring, "write", 2},
		{"read bit timing", []step{{resp: ack}, {readErr: linkGone}}, Configuring, "read", 2},
		{"write open", []step{{resp: ack}, {}, {writeErr: linkGone}}, Opening, "write", 3},
		{"read open", []step{{resp: ack}, {}, {readErr: linkGone}}, Opening, "read", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{script: tt.script, fallback: ack}
			s, err := Run(context.Background(), tr, 500000, btr.DefaultConstraints(16000000), OptOnMessage(quiet))
			if !errors.Is(err, ErrTransport) || !errors.Is(err, linkGone) {
				t.Fatalf("Run() error = %v, want transport error wrapping cause", err)
			}
			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("Run() error is %T", err)
			}
			if te.Stage != tt.stage || te.Op != tt.op {
				t.Errorf("TransportError stage=%s op=%s, want %s %s", te.Stage, te.Op, tt.stage, tt.op)
			}
			if len(tr.writes) != tt.wantWrites {
				t.Errorf("writes = %d, want %d", len(tr.writes), tt.wantWrites)
			}
			if s.State() != Error || tr.closed != 1 {
				t.Errorf("State() = %s closed = %d, want Error and 1", s.State(), tr.closed)
			}
		})
	}
}

func TestRunIdempotent(t *testing.T) {
	tr := &scriptedTransport{fallback: ack}
	for i := 0; i < 2; i++ {
		s, err := Run(context.Background(), tr, 666666, btr.DefaultConstraints(24000000), OptOnMessage(quiet))
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}
		if s.State() != Open {
			t.Fatalf("run %d: State() = %s", i, s.State())
		}
	}
	if tr.closed != 0 {
		t.Errorf("transport closed %d times", tr.closed)
	}
	if len(tr.writes) != 6 {
		t.Errorf("writes = %d, want 6", len(tr.writes))
	}
}

func TestRunRejectsBeforeIO(t *testing.T) {
	tests := []struct {
		name    string
		bitrate int
		c       btr.Constraints
		opts    []Opts
		want    error
	}{
		{"zero bitrate", 0, btr.DefaultConstraints(24000000), nil, ErrInvalidParameter},
		{"zero clock", 500000, btr.DefaultConstraints(0), nil, ErrInvalidParameter},
		{"bad read window", 500000, btr.DefaultConstraints(16000000), []Opts{OptReadWindow(0)}, ErrInvalidParameter},
		{"unreachable", 30000000, btr.DefaultConstraints(24000000), nil, ErrNoFeasibleTiming},
		{"explicit timing off target", 500000, btr.DefaultConstraints(24000000), []Opts{OptTiming(3, 9, 2, 1)}, ErrNoFeasibleTiming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{fallback: ack}
			opts := append([]Opts{OptOnMessage(quiet)}, tt.opts...)
			s, err := Run(context.Background(), tr, tt.bitrate, tt.c, opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() error = %v, want %v", err, tt.want)
			}
			if len(tr.writes) != 0 {
				t.Errorf("writes = %q, want none", tr.writes)
			}
			if tr.closed != 1 || s.State() != Error {
				t.Errorf("closed = %d state = %s", tr.closed, s.State())
			}
		})
	}
}

func TestRunNilTransport(t *testing.T) {
	if _, err := Run(context.Background(), nil, 500000, btr.DefaultConstraints(16000000)); !errors.Is(err, ErrNilTransport) {
		t.Errorf("Run() error = %v, want ErrNilTransport", err)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &scriptedTransport{fallback: ack}
	s, err := Run(ctx, tr, 500000, btr.DefaultConstraints(16000000), OptOnMessage(quiet))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(tr.writes) != 0 || tr.closed != 1 || s.State() != Error {
		t.Errorf("writes = %d closed = %d state = %s", len(tr.writes), tr.closed, s.State())
	}
}

// blockingTransport never answers, reads return once the transport is closed.
type blockingTransport struct {
	started   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (b *blockingTransport) Write([]byte) error { return nil }

func (b *blockingTransport) ReadAvailable(time.Duration) ([]byte, error) {
	close(b.started)
	<-b.done
	return nil, errors.New("port closed")
}

func (b *blockingTransport) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

func TestRunCancelledDuringRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &blockingTransport{started: make(chan struct{}), done: make(chan struct{})}
	go func() {
		<-tr.started
		cancel()
	}()
	s, err := Run(ctx, tr, 500000, btr.DefaultConstraints(16000000), OptOnMessage(quiet))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Error("cancellation reported as transport error")
	}
	if s.State() != Error {
		t.Errorf("State() = %s, want Error", s.State())
	}
	select {
	case <-tr.done:
	default:
		t.Error("transport left open after cancellation")
	}
}

func TestRunPanicReleasesTransport(t *testing.T) {
	tr := &scriptedTransport{fallback: ack, panicAt: 2}
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic to propagate")
		}
		if tr.closed != 1 {
			t.Errorf("transport closed %d times after panic, want 1", tr.closed)
		}
	}()
	Run(context.Background(), tr, 500000, btr.DefaultConstraints(16000000), OptOnMessage(quiet))
}

func TestRunDebugTrace(t *testing.T) {
	var msgs []string
	tr := &scriptedTransport{script: []step{{resp: ack}, {}, {resp: ack}}}
	_, err := Run(context.Background(), tr, 500000, btr.DefaultConstraints(16000000),
		OptDebug(true),
		OptOnMessage(func(m string) { msgs = append(msgs, m) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(msgs, "\n")
	for _, want := range []string{">> C", ">> s011C", ">> O", "<< \"\\r\" Ack", "this is normal"} {
		if !strings.Contains(joined, want) {
			t.Errorf("messages missing %q:\n%s", want, joined)
		}
	}
}
