// Package canbtr configures the bit timing of a Lawicel style USB-CAN adapter
// and brings its CAN channel online.
//
// Run solves the BTR0/BTR1 registers for the requested bitrate and then
// walks the adapter through Close, SetBitTiming and Open over a Transport:
//
//	Idle -> Closing -> Configuring -> Opening -> Open
//
// Any state may end in Error. The transport is closed on every exit except
// Open, where it is handed over to the caller.
package canbtr

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/roffe/canbtr/pkg/btr"
)

const DefaultReadWindow = 100 * time.Millisecond

// Run configures the adapter behind t for bitrate. On success the session is
// in state Open and t stays open, on failure t has been closed and the
// session reports the stage reached and the last response.
//
// Run never retries. Running it again is safe since Close is always sent
// first.
func Run(ctx context.Context, t Transport, bitrate int, c btr.Constraints, opts ...Opts) (*Session, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	s := newSession(t)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return s, s.fail(err)
		}
	}
	if err := s.solve(bitrate, c); err != nil {
		return s, s.fail(err)
	}
	err := s.run(ctx)
	if err == nil && s.released() {
		// cancelled after the last read but before we got here
		err = fmt.Errorf("%s: %w", s.state, ctx.Err())
	}
	if err != nil {
		return s, s.fail(err)
	}
	return s, nil
}

func newSession(t Transport) *Session {
	return &Session{
		t:          t,
		state:      Idle,
		tolerance:  btr.DefaultTolerance,
		readWindow: DefaultReadWindow,
		onMessage: func(msg string) {
			log.Println(msg)
		},
	}
}
