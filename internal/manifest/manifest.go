// Package manifest reads the local declarative file naming the
// desired firmware version and image path.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
)

// Entry is the minimum the top-level driver needs from the manifest:
// the declared version and the OTA image path.
type Entry struct {
	DeclaredVersion *semver.Version
	ImagePath       string
}

type wireManifest struct {
	Active *struct {
		Version  string `json:"version"`
		Filename string `json:"filename"`
	} `json:"active"`
}

// Load reads and decodes the manifest at path. A missing file or an
// absent/null "active" field is not an error: it returns (nil, nil),
// the "no active firmware" no-op case. Any other read or parse
// failure is returned as an error.
func Load(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
	}

	var wire wireManifest
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}
	if wire.Active == nil {
		return nil, nil
	}

	version, err := semver.NewVersion(wire.Active.Version)
	if err != nil {
		return nil, fmt.Errorf("manifest: parsing declared version %q: %w", wire.Active.Version, err)
	}

	return &Entry{DeclaredVersion: version, ImagePath: wire.Active.Filename}, nil
}
