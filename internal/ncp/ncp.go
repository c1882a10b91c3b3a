// Package ncp holds the minimal network-co-processor collaborator
// this tool needs: a single get_version() operation. The full
// application-protocol session (ASHv2/EZSP framing, command
// dispatch, sequence numbering) is out of scope; only the shape
// needed to exercise the retry and comparison logic in cmd/ezsp-fwupd
// is implemented here.
package ncp

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/guiperry/ezsp-fwupd/internal/transport"
)

// Params groups the session parameters of a version-query client into
// one value rather than three loose arguments. Bootloader entry does
// not take a Params; it receives the callback channel size on its own.
type Params struct {
	CallbackChannelSize int
	ResponseChannelSize int
	ProtocolVersion     uint8
}

// VersionProvider is the external collaborator C7 depends on to learn
// the device's current firmware version.
type VersionProvider interface {
	GetVersion(ctx context.Context) (*semver.Version, error)
}

const opGetVersion = 0x00

// Client is a minimal VersionProvider implementation over a serial
// transport, modelled on a short request/fixed-size-reply exchange.
type Client struct {
	t      *transport.Transport
	params Params
}

// NewClient wraps t for version queries under the given session
// parameters.
func NewClient(t *transport.Transport, params Params) *Client {
	return &Client{t: t, params: params}
}

// GetVersion sends the version request op-code and parses the
// fixed 6-byte reply: major, minor, patch, a special/pre-release
// byte, and a little-endian build number, rendered to match the
// manifest's version string shape ("6.10.3-297").
func (c *Client) GetVersion(ctx context.Context) (*semver.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logrus.Debugf("ncp: querying version (protocol v%d)", c.params.ProtocolVersion)
	if err := c.t.WriteAll([]byte{opGetVersion}); err != nil {
		return nil, fmt.Errorf("ncp: writing version request: %w", err)
	}
	if err := c.t.Flush(); err != nil {
		return nil, fmt.Errorf("ncp: flushing version request: %w", err)
	}

	var reply [6]byte
	if err := c.t.ReadExact(reply[:]); err != nil {
		return nil, fmt.Errorf("ncp: reading version reply: %w", err)
	}

	major, minor, patch := reply[0], reply[1], reply[2]
	special := reply[3]
	build := uint16(reply[4]) | uint16(reply[5])<<8

	raw := fmt.Sprintf("%d.%d.%d-%d", major, minor, patch, build)
	if special != 0 {
		logrus.Debugf("ncp: version reply carried non-zero special byte 0x%02X", special)
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("ncp: parsing reported version %q: %w", raw, err)
	}
	return v, nil
}
