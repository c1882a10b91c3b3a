// Package direction classifies a flashing operation relative to the
// device's previously known firmware version.
package direction

import (
	"github.com/Masterminds/semver/v3"
)

// Direction is the classification of a flashing operation.
type Direction int

const (
	// Upgrade means the device's current version is older than the
	// declared version.
	Upgrade Direction = iota
	// Downgrade means the device's current version is newer than the
	// declared version.
	Downgrade
	// Flashing means the device's current version could not be
	// determined.
	Flashing
)

// PresentParticiple renders the direction for the terminal log line.
func (d Direction) PresentParticiple() string {
	switch d {
	case Upgrade:
		return "Upgrading"
	case Downgrade:
		return "Downgrading"
	case Flashing:
		return "Flashing"
	default:
		return "Flashing"
	}
}

func (d Direction) String() string {
	switch d {
	case Upgrade:
		return "upgrade"
	case Downgrade:
		return "downgrade"
	case Flashing:
		return "flashing"
	default:
		return "flashing"
	}
}

// FromVersions implements §4.6. current == nil means the device's
// version is unknown. The boolean return is false exactly when no
// action is needed (current equals declared); callers must not act on
// the returned Direction when it is false.
func FromVersions(current, declared *semver.Version) (Direction, bool) {
	if current == nil {
		return Flashing, true
	}
	switch current.Compare(declared) {
	case 0:
		return Upgrade, false // zero value unused; caller checks the bool
	case -1:
		return Upgrade, true
	default:
		return Downgrade, true
	}
}
