package adapter

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roffe/canbtr"
	"go.bug.st/serial"
)

func init() {
	if err := Register(&AdapterInfo{
		Name:               "SLCAN",
		Description:        "Lawicel ASCII adapter on a serial port (Waveshare USB-CAN-A, CANUSB, CANable)",
		RequiresSerialPort: true,
		New:                NewSerial,
	}); err != nil {
		panic(err)
	}
}

// port is the part of serial.Port used here.
type port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
}

type Serial struct {
	cfg     *Config
	port    port
	readBuf []byte
}

func NewSerial(cfg *Config) (canbtr.Transport, error) {
	name, err := resolvePort(cfg.Port)
	if err != nil {
		return nil, &canbtr.TransportError{Stage: canbtr.Idle, Op: "open", Err: err}
	}
	mode := &serial.Mode{
		BaudRate: cfg.PortBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, &canbtr.TransportError{Stage: canbtr.Idle, Op: "open", Err: describePortError(name, err)}
	}
	// drop whatever the adapter sent before we got here
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, &canbtr.TransportError{Stage: canbtr.Idle, Op: "open", Err: describePortError(name, err)}
	}
	cfg.OnMessage(fmt.Sprintf("opened %s at %d baud", name, cfg.PortBaudrate))
	return newSerial(cfg, p), nil
}

func newSerial(cfg *Config, p port) *Serial {
	return &Serial{
		cfg:     cfg,
		port:    p,
		readBuf: make([]byte, 64),
	}
}

func (s *Serial) Write(b []byte) error {
	n, err := s.port.Write(b)
	if err != nil {
		return describePortError(s.cfg.Port, err)
	}
	if n != len(b) {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(b), io.ErrShortWrite)
	}
	return nil
}

// ReadAvailable collects bytes until timeout has passed since the call.
func (s *Serial) ReadAvailable(timeout time.Duration) ([]byte, error) {
	var out []byte
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return out, nil
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return out, describePortError(s.cfg.Port, err)
		}
		n, err := s.port.Read(s.readBuf)
		if err != nil {
			return out, describePortError(s.cfg.Port, err)
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, s.readBuf[:n]...)
	}
}

// Close flushes both buffers and closes the port. The port is closed even
// if flushing fails.
func (s *Serial) Close() error {
	var errs []error
	if err := s.port.ResetInputBuffer(); err != nil {
		errs = append(errs, err)
	}
	if err := s.port.ResetOutputBuffer(); err != nil {
		errs = append(errs, err)
	}
	if err := s.port.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close com port %q: %w", s.cfg.Port, errs[0])
	}
	return nil
}

// describePortError turns serial port errors into something a user can act on.
func describePortError(name string, err error) error {
	var portError *serial.PortError
	if !errors.As(err, &portError) {
		return err
	}
	switch portError.Code() {
	case serial.PortNotFound:
		return fmt.Errorf("com port %q not found: %w", name, err)
	case serial.PermissionDenied:
		return fmt.Errorf("permission denied on %q, check that your user is in the dialout group: %w", name, err)
	case serial.PortBusy:
		return fmt.Errorf("com port %q is in use by another program: %w", name, err)
	case serial.InvalidSerialPort:
		return fmt.Errorf("%q is not a serial port: %w", name, err)
	case serial.PortClosed:
		return fmt.Errorf("com port %q closed: %w", name, err)
	default:
		return fmt.Errorf("com port %q: %s: %w", name, portError.EncodedErrorString(), err)
	}
}
