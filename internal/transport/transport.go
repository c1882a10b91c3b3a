// Package transport wraps a serial port with the read/write/timeout
// discipline the flashing pipeline depends on.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// ErrTimeout is returned by the read operations below when the
// configured timeout elapses before the requested bytes arrive.
// go.bug.st/serial reports a timeout as a successful zero-byte read
// rather than an error, so this package synthesizes the sentinel
// itself at the point a zero-byte read is observed.
var ErrTimeout = errors.New("transport: read timeout")

// Transport is a serial port bound to a single owner at a time; it is
// handed into a sub-stage and handed back, never shared.
type Transport struct {
	port    serial.Port
	timeout time.Duration
}

// Open opens the named serial device at the given baud rate with 8N1
// framing and applies the initial timeout. No flow control, software
// or hardware, is configured on the port.
func Open(name string, baud int, timeout time.Duration) (*Transport, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}
	t := &Transport{port: port, timeout: timeout}
	if err := t.SetTimeout(timeout); err != nil {
		port.Close()
		return nil, err
	}
	return t, nil
}

// New wraps an already-opened serial.Port, useful for tests against a
// fake implementation of the interface.
func New(port serial.Port, timeout time.Duration) (*Transport, error) {
	t := &Transport{port: port, timeout: timeout}
	if err := t.SetTimeout(timeout); err != nil {
		return nil, err
	}
	return t, nil
}

// Close releases the underlying port.
func (t *Transport) Close() error {
	return t.port.Close()
}

// SetTimeout changes the read timeout applied to every subsequent
// read until changed again.
func (t *Transport) SetTimeout(d time.Duration) error {
	if err := t.port.SetReadTimeout(d); err != nil {
		return fmt.Errorf("transport: set timeout: %w", err)
	}
	t.timeout = d
	return nil
}

// Timeout reports the currently configured read timeout.
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// ReadExact blocks until buf is entirely filled or the timeout
// elapses. A short read terminated by a timeout is reported as
// ErrTimeout rather than a partial success.
func (t *Transport) ReadExact(buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := t.port.Read(buf[read:])
		if err != nil {
			return fmt.Errorf("transport: read: %w", err)
		}
		if n == 0 {
			return ErrTimeout
		}
		read += n
	}
	return nil
}

// ReadToEndOrTimeout reads until the configured timeout elapses with
// no further bytes available, appending everything read into buf. It
// returns ErrTimeout on the terminating timeout — callers that treat
// a clean drain as success call IgnoreTimeout on the result.
func (t *Transport) ReadToEndOrTimeout(buf *bytes.Buffer) error {
	chunk := make([]byte, 256)
	for {
		n, err := t.port.Read(chunk)
		if err != nil {
			return fmt.Errorf("transport: read: %w", err)
		}
		if n == 0 {
			return ErrTimeout
		}
		buf.Write(chunk[:n])
	}
}

// WriteAll writes every byte of p, looping over short writes.
func (t *Transport) WriteAll(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := t.port.Write(p[written:])
		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		written += n
	}
	return nil
}

// Flush blocks until all written bytes have been transmitted.
func (t *Transport) Flush() error {
	if err := t.port.Drain(); err != nil {
		return fmt.Errorf("transport: flush: %w", err)
	}
	return nil
}

// ClearBuffer discards the OS-level input buffer and then drains
// whatever the device sends until the read times out. A drain that
// ends in timeout is the success case.
func (t *Transport) ClearBuffer() error {
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("transport: reset input buffer: %w", err)
	}
	var discarded bytes.Buffer
	return IgnoreTimeout(t.ReadToEndOrTimeout(&discarded))
}

// IgnoreTimeout maps ErrTimeout to nil and passes every other error
// through unchanged, mirroring the explicit ignore_timeout() call
// sites that wrap best-effort drains.
func IgnoreTimeout(err error) error {
	if errors.Is(err, ErrTimeout) {
		return nil
	}
	return err
}
