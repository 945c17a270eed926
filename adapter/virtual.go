package adapter

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roffe/canbtr"
	"github.com/roffe/canbtr/pkg/slcan"
)

func init() {
	if err := Register(&AdapterInfo{
		Name:        "Virtual",
		Description: "In-memory Lawicel adapter for dry runs",
		New:         NewVirtual,
	}); err != nil {
		panic(err)
	}
}

var (
	ErrPortClosed      = errors.New("virtual port closed")
	ErrInjectedFailure = errors.New("injected failure")
)

// Virtual behaves like a Lawicel adapter that does not answer the bit
// timing command, the way the Waveshare USB-CAN-A does. Close on a closed
// channel and Open without a bit timing are answered with BEL.
type Virtual struct {
	cfg *Config

	// AckBitTiming makes the adapter answer s commands with CR.
	AckBitTiming bool
	// FailAfter makes every write after the first FailAfter writes fail. Zero disables.
	FailAfter int

	mu          sync.Mutex
	writes      int
	channelOpen bool
	regs        *slcan.RegisterPair
	pending     []byte
	closed      bool
}

func NewVirtual(cfg *Config) (canbtr.Transport, error) {
	if cfg.OnMessage != nil {
		cfg.OnMessage("using virtual adapter, nothing is sent to hardware")
	}
	return &Virtual{cfg: cfg}, nil
}

func (v *Virtual) Write(b []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrPortClosed
	}
	v.writes++
	if v.FailAfter > 0 && v.writes > v.FailAfter {
		return fmt.Errorf("virtual write %d: %w", v.writes, ErrInjectedFailure)
	}
	for _, line := range bytes.SplitAfter(b, []byte{slcan.CR}) {
		if len(line) == 0 {
			continue
		}
		v.pending = append(v.pending, v.handle(line)...)
	}
	return nil
}

func (v *Virtual) handle(line []byte) []byte {
	cmd, err := slcan.ParseCommand(line)
	if err != nil {
		return []byte{slcan.BEL}
	}
	switch cmd.Kind {
	case slcan.Close:
		if !v.channelOpen {
			return []byte{slcan.BEL}
		}
		v.channelOpen = false
	case slcan.SetBitTiming:
		if v.channelOpen {
			return []byte{slcan.BEL}
		}
		r := cmd.Registers
		v.regs = &r
		if !v.AckBitTiming {
			return nil
		}
	case slcan.Open:
		if v.channelOpen || v.regs == nil {
			return []byte{slcan.BEL}
		}
		v.channelOpen = true
	}
	return []byte{slcan.CR}
}

func (v *Virtual) ReadAvailable(time.Duration) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrPortClosed
	}
	out := v.pending
	v.pending = nil
	return out, nil
}

func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// ChannelOpen reports whether the emulated CAN channel is open.
func (v *Virtual) ChannelOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channelOpen
}

// Registers returns the last bit timing written to the adapter.
func (v *Virtual) Registers() (slcan.RegisterPair, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.regs == nil {
		return slcan.RegisterPair{}, false
	}
	return *v.regs, true
}
