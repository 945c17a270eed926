// Package slcan encodes the Lawicel ASCII commands used to configure a CAN
// adapter and classifies the bytes it answers with.
package slcan

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roffe/canbtr/pkg/btr"
)

const (
	CR  byte = 0x0D // command terminator and ack
	BEL byte = 0x07 // error reply
)

type Kind int

const (
	Close Kind = iota
	Open
	SetBitTiming
)

func (k Kind) String() string {
	switch k {
	case Close:
		return "Close"
	case Open:
		return "Open"
	case SetBitTiming:
		return "SetBitTiming"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RegisterPair holds the SJA1000 BTR0 and BTR1 register values.
//
//	BTR0: SJW1 SJW0 BRP5 BRP4 BRP3 BRP2 BRP1 BRP0
//	BTR1: SAM TSEG2.2 TSEG2.1 TSEG2.0 TSEG1.3 TSEG1.2 TSEG1.1 TSEG1.0
type RegisterPair struct {
	BTR0, BTR1 byte
}

func (r RegisterPair) String() string {
	return fmt.Sprintf("BTR0=0x%02X BTR1=0x%02X", r.BTR0, r.BTR1)
}

// Registers packs a solution into register values. Every field is stored
// minus one. tripleSample sets SAM so the bus is sampled three times.
func Registers(sol *btr.Solution, tripleSample bool) RegisterPair {
	var sam byte
	if tripleSample {
		sam = 1
	}
	return RegisterPair{
		BTR0: byte(sol.SJW-1)&0x03<<6 | byte(sol.Prescaler-1)&0x3F,
		BTR1: sam<<7 | byte(sol.TSEG2-1)&0x07<<4 | byte(sol.TSEG1-1)&0x0F,
	}
}

// Fields returns the unpacked register fields.
func (r RegisterPair) Fields() (prescaler, tseg1, tseg2, sjw int, tripleSample bool) {
	prescaler = int(r.BTR0&0x3F) + 1
	sjw = int(r.BTR0>>6) + 1
	tseg1 = int(r.BTR1&0x0F) + 1
	tseg2 = int(r.BTR1>>4&0x07) + 1
	tripleSample = r.BTR1&0x80 != 0
	return
}

// Timing decodes the pair into the solution it represents at clock.
func (r RegisterPair) Timing(clock int) (*btr.Solution, error) {
	if clock <= 0 {
		return nil, fmt.Errorf("%w: clock must be positive, got %d", btr.ErrInvalidParameter, clock)
	}
	brp, tseg1, tseg2, sjw, _ := r.Fields()
	bitrate := clock / (brp * (1 + tseg1 + tseg2))
	return &btr.Solution{
		Clock:     clock,
		Target:    bitrate,
		Prescaler: brp,
		TSEG1:     tseg1,
		TSEG2:     tseg2,
		SJW:       sjw,
		Bitrate:   bitrate,
	}, nil
}

// ParseRegisters parses four hex digits, "0218" or "02:18".
func ParseRegisters(s string) (RegisterPair, error) {
	s = strings.ReplaceAll(s, ":", "")
	if len(s) != 4 {
		return RegisterPair{}, fmt.Errorf("register pair %q: want 4 hex digits", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return RegisterPair{}, fmt.Errorf("register pair %q: %w", s, err)
	}
	return RegisterPair{BTR0: b[0], BTR1: b[1]}, nil
}

type Command struct {
	Kind      Kind
	Registers RegisterPair
}

func NewClose() Command { return Command{Kind: Close} }

func NewOpen() Command { return Command{Kind: Open} }

func NewSetBitTiming(r RegisterPair) Command {
	return Command{Kind: SetBitTiming, Registers: r}
}

// Encode returns the CR terminated wire form of the command.
func (c Command) Encode() []byte {
	switch c.Kind {
	case Close:
		return []byte{'C', CR}
	case Open:
		return []byte{'O', CR}
	case SetBitTiming:
		return []byte(fmt.Sprintf("s%02X%02X\r", c.Registers.BTR0, c.Registers.BTR1))
	default:
		panic(fmt.Sprintf("slcan: cannot encode %s", c.Kind))
	}
}

// String returns the command without terminator, as printed in traces.
func (c Command) String() string {
	return string(bytes.TrimSuffix(c.Encode(), []byte{CR}))
}

// ParseCommand parses one CR terminated command.
func ParseCommand(b []byte) (Command, error) {
	if len(b) == 0 || b[len(b)-1] != CR {
		return Command{}, fmt.Errorf("command %q: missing CR terminator", b)
	}
	body := b[:len(b)-1]
	if len(body) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	switch body[0] {
	case 'C':
		if len(body) == 1 {
			return NewClose(), nil
		}
	case 'O':
		if len(body) == 1 {
			return NewOpen(), nil
		}
	case 's':
		if len(body) != 5 {
			break
		}
		r, err := ParseRegisters(string(body[1:]))
		if err != nil {
			return Command{}, err
		}
		return NewSetBitTiming(r), nil
	}
	return Command{}, fmt.Errorf("unknown command %q", body)
}
