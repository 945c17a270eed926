package slcan

import (
	"bytes"
	"fmt"
)

type Class int

const (
	Empty Class = iota // nothing arrived within the read window
	Ack
	Nak
	Unknown
)

func (c Class) String() string {
	switch c {
	case Empty:
		return "Empty"
	case Ack:
		return "Ack"
	case Nak:
		return "Nak"
	case Unknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Response is the classified answer to a command.
type Response struct {
	Class    Class
	Awaiting Kind
	Raw      []byte
}

func (r Response) String() string {
	if len(r.Raw) == 0 {
		return fmt.Sprintf("%s to %s", r.Class, r.Awaiting)
	}
	return fmt.Sprintf("%s to %s (% X)", r.Class, r.Awaiting, r.Raw)
}

// Expected reports whether the answer is a normal outcome for the command.
// Many adapters never answer the bit timing command and some never answer
// Close, so Empty is expected for those.
func (r Response) Expected() bool {
	switch r.Class {
	case Ack:
		return true
	case Empty:
		return r.Awaiting == SetBitTiming || r.Awaiting == Close
	default:
		return false
	}
}

// Classify sorts the bytes read after sending a command of kind awaiting.
// A reply made of CR only is an ack, any BEL is a nak.
func Classify(b []byte, awaiting Kind) Response {
	r := Response{Awaiting: awaiting, Raw: b}
	switch {
	case len(b) == 0:
		r.Class = Empty
	case bytes.IndexByte(b, BEL) >= 0:
		r.Class = Nak
	case len(bytes.Trim(b, "\r")) == 0:
		r.Class = Ack
	default:
		r.Class = Unknown
	}
	return r
}
