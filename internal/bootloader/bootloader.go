// Package bootloader drives the device's application-protocol layer
// into its resident standalone bootloader.
package bootloader

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/guiperry/ezsp-fwupd/internal/transport"
)

const (
	cmdLaunchBootloader byte = 0x00
	modeStandalone      byte = 0x00
)

// LaunchStandaloneBootloader issues the bootloader-entry command and
// tolerates the device failing to acknowledge it: a prior interrupted
// flash can leave the device already in bootloader mode, in which
// case no reply arrives and that is logged as a warning, not an
// error. A discard-consumer goroutine drains a bounded queue of
// unsolicited notifications for the duration of the call, mirroring
// the behaviour of the application-protocol session this command
// normally runs inside; it shuts down when the function returns.
func LaunchStandaloneBootloader(ctx context.Context, t *transport.Transport, callbackChannelSize int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	discard := make(chan []byte, callbackChannelSize)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range discard {
			// Receive and discard; these are unsolicited
			// notifications with no bearing on bootloader entry.
		}
	}()
	defer func() {
		close(discard)
		<-drained
	}()

	if err := t.WriteAll([]byte{cmdLaunchBootloader, modeStandalone}); err != nil {
		return fmt.Errorf("bootloader: sending launch command: %w", err)
	}
	if err := t.Flush(); err != nil {
		return fmt.Errorf("bootloader: flushing launch command: %w", err)
	}

	var reply bytes.Buffer
	if err := transport.IgnoreTimeout(t.ReadToEndOrTimeout(&reply)); err != nil {
		return fmt.Errorf("bootloader: reading launch reply: %w", err)
	}
	if reply.Len() == 0 {
		logrus.Warn("bootloader: no reply to launch command, device may already be in bootloader mode")
	} else {
		logrus.Debugf("bootloader: launch command acknowledged with %d bytes", reply.Len())
	}
	return nil
}
