package bootloader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/guiperry/ezsp-fwupd/internal/transport"
)

type silentPort struct{}

func (silentPort) Write(b []byte) (int, error) { return len(b), nil }
func (silentPort) Read(b []byte) (int, error)  { return 0, nil }
func (silentPort) Close() error                 { return nil }
func (silentPort) SetMode(mode *serial.Mode) error { return nil }
func (silentPort) Break(d time.Duration) error  { return nil }
func (silentPort) Drain() error                 { return nil }
func (silentPort) ResetInputBuffer() error      { return nil }
func (silentPort) ResetOutputBuffer() error     { return nil }
func (silentPort) SetDTR(dtr bool) error        { return nil }
func (silentPort) SetRTS(rts bool) error        { return nil }
func (silentPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}
func (silentPort) SetReadTimeout(t time.Duration) error { return nil }

func TestLaunchStandaloneBootloaderToleratesNoReply(t *testing.T) {
	tr, err := transport.New(silentPort{}, 10*time.Millisecond)
	require.NoError(t, err)

	err = LaunchStandaloneBootloader(context.Background(), tr, 8)
	assert.NoError(t, err)
}

func TestLaunchStandaloneBootloaderRespectsCanceledContext(t *testing.T) {
	tr, err := transport.New(silentPort{}, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = LaunchStandaloneBootloader(ctx, tr, 8)
	assert.Error(t, err)
}
