package canbtr

import "time"

// Transport is a sequential byte stream to the adapter, usually a serial port.
type Transport interface {
	// Write sends b in full.
	Write(b []byte) error
	// ReadAvailable returns whatever arrives within timeout, possibly nothing.
	ReadAvailable(timeout time.Duration) ([]byte, error)
	Close() error
}
