package fwupd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/guiperry/ezsp-fwupd/internal/transport"
	"github.com/guiperry/ezsp-fwupd/internal/xmodem"
)

// turnPort answers the first Read following write #n with
// responses[n], and every further Read in that same turn with a
// timeout (0, nil). This lets a test script exactly what the device
// sends back after each thing the orchestrator writes, without
// knowing how many bytes any individual read call asks for.
type turnPort struct {
	responses  map[int][]byte
	writeCount int
	readInTurn int
	sent       [][]byte
}

func (p *turnPort) Write(b []byte) (int, error) {
	p.sent = append(p.sent, append([]byte(nil), b...))
	p.writeCount++
	p.readInTurn = 0
	return len(b), nil
}

func (p *turnPort) Read(b []byte) (int, error) {
	if p.readInTurn > 0 {
		return 0, nil
	}
	resp, ok := p.responses[p.writeCount]
	if !ok {
		return 0, nil
	}
	p.readInTurn++
	return copy(b, resp), nil
}

func (p *turnPort) Close() error                    { return nil }
func (p *turnPort) SetMode(mode *serial.Mode) error { return nil }
func (p *turnPort) Break(d time.Duration) error     { return nil }
func (p *turnPort) Drain() error                    { return nil }
func (p *turnPort) ResetInputBuffer() error         { return nil }
func (p *turnPort) ResetOutputBuffer() error        { return nil }
func (p *turnPort) SetDTR(dtr bool) error           { return nil }
func (p *turnPort) SetRTS(rts bool) error           { return nil }
func (p *turnPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}
func (p *turnPort) SetReadTimeout(t time.Duration) error { return nil }

func TestRunSucceedsWithSingleFramePayload(t *testing.T) {
	port := &turnPort{responses: map[int][]byte{
		1: nil,                          // bootloader launch: no reply
		2: make([]byte, handshake1Reply), // handshake1
		3: make([]byte, handshake2Reply), // handshake2
		4: {xmodem.ACK},                  // frame 1 ack
		5: nil,                           // post-EOT: timeout
		6: nil,                           // post-reset drain: timeout
	}}
	tr, err := transport.New(port, 10*time.Millisecond)
	require.NoError(t, err)

	out, err := Run(context.Background(), tr, Options{
		Payload:             []byte{1, 2, 3},
		PerOpTimeout:        5 * time.Millisecond,
		CallbackChannelSize: 8,
	})
	require.NoError(t, err)
	assert.Same(t, tr, out)

	require.Len(t, port.sent, 6)
	assert.Equal(t, []byte{0x0A}, port.sent[1])
	assert.Equal(t, []byte{0x31}, port.sent[2])
	assert.Equal(t, []byte{0x0A, 0x32}, port.sent[5])
}

func TestRunAlwaysResetsEvenWhenTransmittingFails(t *testing.T) {
	responses := map[int][]byte{
		1: nil,
		2: make([]byte, handshake1Reply),
		3: make([]byte, handshake2Reply),
	}
	for turn := 4; turn <= 4+xmodem.MaxRetries; turn++ {
		responses[turn] = []byte{xmodem.NAK}
	}
	resetTurn := 4 + xmodem.MaxRetries + 1
	responses[resetTurn] = nil

	port := &turnPort{responses: responses}
	tr, err := transport.New(port, 10*time.Millisecond)
	require.NoError(t, err)

	out, err := Run(context.Background(), tr, Options{
		Payload:      []byte{1, 2, 3},
		PerOpTimeout: 5 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Same(t, tr, out)

	last := port.sent[len(port.sent)-1]
	assert.Equal(t, []byte{0x0A, 0x32}, last)
}

func TestRunFailsOnTruncatedHandshake(t *testing.T) {
	port := &turnPort{responses: map[int][]byte{
		1: nil,
		2: make([]byte, handshake1Reply-1), // one byte short
	}}
	tr, err := transport.New(port, 5*time.Millisecond)
	require.NoError(t, err)

	_, err = Run(context.Background(), tr, Options{Payload: nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake 1")
}
