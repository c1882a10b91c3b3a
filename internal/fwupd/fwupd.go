// Package fwupd drives the flashing state machine: bootloader entry,
// the two opaque handshake exchanges, XMODEM transmission, and the
// device reset, with the timeout save/restore discipline several of
// those stages depend on.
package fwupd

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guiperry/ezsp-fwupd/internal/bootloader"
	"github.com/guiperry/ezsp-fwupd/internal/transport"
	"github.com/guiperry/ezsp-fwupd/internal/xmodem"
)

// State names one step of the flashing state machine, for logging.
type State int

const (
	Idle State = iota
	EnteringBootloader
	Handshake1
	Handshake2
	Transmitting
	Resetting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case EnteringBootloader:
		return "EnteringBootloader"
	case Handshake1:
		return "Handshake1"
	case Handshake2:
		return "Handshake2"
	case Transmitting:
		return "Transmitting"
	case Resetting:
		return "Resetting"
	case Done:
		return "Done"
	default:
		return "Failed"
	}
}

var (
	handshake1Cmd   = []byte{0x0A}
	handshake2Cmd   = []byte{0x31}
	resetCmd        = []byte{0x0A, 0x32}
	handshake1Reply = 69
	handshake2Reply = 21
)

// Options configures one flashing run.
type Options struct {
	// Payload is the OTA container's payload bytes, as produced by
	// otafile.Decode.
	Payload []byte
	// PerOpTimeout governs handshake reads and the reset bracket;
	// the transport's own configured timeout continues to govern the
	// XMODEM ACK wait. Zero means "don't override".
	PerOpTimeout time.Duration
	// CallbackChannelSize sizes the discard queue bootloader entry
	// spawns.
	CallbackChannelSize int
	// Progress is notified as XMODEM frames are acknowledged; nil is
	// a valid no-op sink.
	Progress xmodem.ProgressFunc
}

// Run drives t through the full flashing sequence and returns it to
// the caller on every exit path, success or failure, per the
// single-owner transport discipline described on transport.Transport.
func Run(ctx context.Context, t *transport.Transport, opts Options) (*transport.Transport, error) {
	logState := func(s State) {
		logrus.Debugf("fwupd: entering state %s", s)
	}

	logState(EnteringBootloader)
	if err := bootloader.LaunchStandaloneBootloader(ctx, t, opts.CallbackChannelSize); err != nil {
		logrus.Warnf("fwupd: bootloader entry did not complete cleanly, continuing: %v", err)
	}

	originalTimeout := t.Timeout()
	if opts.PerOpTimeout > 0 {
		if err := t.SetTimeout(opts.PerOpTimeout); err != nil {
			return t, fmt.Errorf("fwupd: setting per-op timeout: %w", err)
		}
	}
	if err := t.ClearBuffer(); err != nil {
		return t, fmt.Errorf("fwupd: clearing buffer before handshake: %w", err)
	}

	logState(Handshake1)
	if err := runHandshake(t, handshake1Cmd, handshake1Reply); err != nil {
		logState(Failed)
		_ = t.SetTimeout(originalTimeout)
		return t, fmt.Errorf("fwupd: handshake 1: %w", err)
	}

	logState(Handshake2)
	if err := runHandshake(t, handshake2Cmd, handshake2Reply); err != nil {
		logState(Failed)
		_ = t.SetTimeout(originalTimeout)
		return t, fmt.Errorf("fwupd: handshake 2: %w", err)
	}

	logState(Transmitting)
	if err := t.SetTimeout(originalTimeout); err != nil {
		return t, fmt.Errorf("fwupd: restoring original timeout: %w", err)
	}
	sender := xmodem.NewSender(t)
	_, sendErr := sender.Send(opts.Payload, opts.Progress)

	logState(Resetting)
	if resetErr := runReset(t, opts.PerOpTimeout, originalTimeout); resetErr != nil {
		logrus.Warnf("fwupd: reset after transmit did not complete cleanly: %v", resetErr)
	}

	if sendErr != nil {
		logState(Failed)
		return t, fmt.Errorf("fwupd: transmitting: %w", sendErr)
	}

	logState(Done)
	return t, nil
}

func runHandshake(t *transport.Transport, cmd []byte, replyLen int) error {
	if err := t.WriteAll(cmd); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}
	if err := t.Flush(); err != nil {
		return fmt.Errorf("flushing command: %w", err)
	}
	reply := make([]byte, replyLen)
	if err := t.ReadExact(reply); err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}
	logrus.Debugf("fwupd: handshake reply: % X", reply)
	return nil
}

func runReset(t *transport.Transport, perOpTimeout, originalTimeout time.Duration) error {
	if perOpTimeout > 0 {
		if err := t.SetTimeout(perOpTimeout); err != nil {
			return fmt.Errorf("setting reset timeout: %w", err)
		}
	}
	defer func() {
		_ = t.SetTimeout(originalTimeout)
	}()

	if err := t.Flush(); err != nil {
		return fmt.Errorf("flushing before reset: %w", err)
	}
	if err := t.WriteAll(resetCmd); err != nil {
		return fmt.Errorf("writing reset command: %w", err)
	}
	if err := t.Flush(); err != nil {
		return fmt.Errorf("flushing reset command: %w", err)
	}

	var discard bytes.Buffer
	return transport.IgnoreTimeout(t.ReadToEndOrTimeout(&discard))
}
