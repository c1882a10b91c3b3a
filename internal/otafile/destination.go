package otafile

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// DestinationKind identifies which variant of the upgrade-destination
// tagged union, if any, is present.
type DestinationKind int

const (
	// DestinationNone means the upgrade_destination field is absent,
	// either because field_control bit 1 is clear or because
	// header.Version did not match a known destination kind.
	DestinationNone DestinationKind = iota
	DestinationZigbee
	DestinationThread
)

const (
	destinationVersionZigbee = 0x0100
	destinationVersionThread = 0x0200
)

// EUI64 is an 8-byte Zigbee extended address.
type EUI64 [8]byte

// ThreadID is a 32-byte Thread network identifier.
type ThreadID [32]byte

// Destination is the upgrade_destination tagged union, keyed on
// header.Version at decode time.
type Destination struct {
	Kind   DestinationKind
	Zigbee EUI64
	Thread ThreadID
}

// decodeDestination implements §4.2 step 4. An unrecognised
// header.Version leaves the destination absent and consumes no bytes;
// this is logged as a warning, not treated as an error.
func decodeDestination(r io.Reader, version uint16) (Destination, error) {
	switch version {
	case destinationVersionZigbee:
		var eui EUI64
		if _, err := io.ReadFull(r, eui[:]); err != nil {
			return Destination{}, fmt.Errorf("otafile: insufficient bytes for zigbee destination: %w", err)
		}
		return Destination{Kind: DestinationZigbee, Zigbee: eui}, nil
	case destinationVersionThread:
		var tid ThreadID
		if _, err := io.ReadFull(r, tid[:]); err != nil {
			return Destination{}, fmt.Errorf("otafile: insufficient bytes for thread destination: %w", err)
		}
		return Destination{Kind: DestinationThread, Thread: tid}, nil
	default:
		logrus.Warnf("otafile: upgrade destination present but header version 0x%04X is unrecognized, leaving destination absent", version)
		return Destination{Kind: DestinationNone}, nil
	}
}
