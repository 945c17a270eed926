package canbtr

import (
	"errors"
	"fmt"

	"github.com/roffe/canbtr/pkg/btr"
	"github.com/roffe/canbtr/pkg/slcan"
)

var (
	ErrInvalidParameter = btr.ErrInvalidParameter
	ErrNoFeasibleTiming = btr.ErrNoFeasibleTiming
	ErrTransport        = errors.New("transport error")
	ErrProtocolRejected = errors.New("adapter rejected configuration")
	ErrNilTransport     = errors.New("transport is nil")
)

// TransportError is a failure of the underlying link. It is never retried
// inside a session.
type TransportError struct {
	Stage State
	Op    string // open, write, read
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed while %s: %v", e.Op, e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ProtocolError is returned when the adapter answers Open with a nak or
// with bytes it should not have sent.
type ProtocolError struct {
	Stage    State
	Response slcan.Response
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("adapter rejected %s while %s: %s", e.Response.Awaiting, e.Stage, e.Response)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolRejected
}
