package xmodem

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/guiperry/ezsp-fwupd/internal/transport"
)

// ProgressFunc is notified after each frame is successfully
// acknowledged. sent and total are both in bytes; a nil ProgressFunc
// is a valid no-op sink.
type ProgressFunc func(sent, total int)

// Sender drives the XMODEM transfer over a transport.Transport.
type Sender struct {
	t *transport.Transport
}

// NewSender wraps t for XMODEM transmission.
func NewSender(t *transport.Transport) *Sender {
	return &Sender{t: t}
}

// Send transmits payload frame by frame, then writes EOT and returns
// whatever bytes the device sends before the read times out. The
// post-EOT bytes are not checked for an ACK.
func (s *Sender) Send(payload []byte, progress ProgressFunc) ([]byte, error) {
	total := len(payload)
	sent := 0

	it := Frames(payload)
	for {
		frame, ok := it.Next()
		if !ok {
			break
		}
		if err := s.sendFrame(frame); err != nil {
			return nil, fmt.Errorf("xmodem: frame %d: %w", frame.Index, err)
		}
		sent += min(PayloadSize, total-sent)
		if progress != nil {
			progress(sent, total)
		}
	}

	if err := s.t.WriteAll([]byte{EOT}); err != nil {
		return nil, fmt.Errorf("xmodem: writing EOT: %w", err)
	}
	if err := s.t.Flush(); err != nil {
		return nil, fmt.Errorf("xmodem: flushing EOT: %w", err)
	}

	var tail bytes.Buffer
	if err := transport.IgnoreTimeout(s.t.ReadToEndOrTimeout(&tail)); err != nil {
		return nil, fmt.Errorf("xmodem: reading post-EOT response: %w", err)
	}
	return tail.Bytes(), nil
}

// sendFrame retries trySendFrame up to MaxRetries times, surfacing
// the last error if every attempt fails.
func (s *Sender) sendFrame(frame Frame) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := s.trySendFrame(frame); err != nil {
			lastErr = err
			if attempt >= MaxRetries {
				return lastErr
			}
			logrus.Debugf("xmodem: frame %d attempt %d failed: %v", frame.Index, attempt, err)
			continue
		}
		return nil
	}
}

// trySendFrame writes one frame and interprets the device's single
// response byte.
func (s *Sender) trySendFrame(frame Frame) error {
	wire := frame.Bytes()
	if err := s.t.WriteAll(wire[:]); err != nil {
		return err
	}
	if err := s.t.Flush(); err != nil {
		return err
	}

	var resp [1]byte
	if err := s.t.ReadExact(resp[:]); err != nil {
		return err
	}

	var extra bytes.Buffer
	if err := transport.IgnoreTimeout(s.t.ReadToEndOrTimeout(&extra)); err != nil {
		return err
	}
	if extra.Len() > 0 {
		logrus.Debugf("xmodem: frame %d: discarding %d unsolicited trailing bytes", frame.Index, extra.Len())
	}

	switch resp[0] {
	case ACK:
		return nil
	case NAK:
		return fmt.Errorf("xmodem: NAK received, retransmit")
	default:
		return fmt.Errorf("xmodem: unexpected response byte 0x%02X", resp[0])
	}
}
