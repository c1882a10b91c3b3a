package direction

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}

func TestFromVersionsUnknownCurrentIsFlashing(t *testing.T) {
	declared := mustVersion(t, "6.10.3-297")
	d, ok := FromVersions(nil, declared)
	assert.True(t, ok)
	assert.Equal(t, Flashing, d)
}

func TestFromVersionsOlderCurrentIsUpgrade(t *testing.T) {
	current := mustVersion(t, "6.9.0-100")
	declared := mustVersion(t, "6.10.3-297")
	d, ok := FromVersions(current, declared)
	assert.True(t, ok)
	assert.Equal(t, Upgrade, d)
}

func TestFromVersionsNewerCurrentIsDowngrade(t *testing.T) {
	current := mustVersion(t, "6.11.0-10")
	declared := mustVersion(t, "6.10.3-297")
	d, ok := FromVersions(current, declared)
	assert.True(t, ok)
	assert.Equal(t, Downgrade, d)
}

func TestFromVersionsEqualIsNoOp(t *testing.T) {
	current := mustVersion(t, "6.10.3-297")
	declared := mustVersion(t, "6.10.3-297")
	_, ok := FromVersions(current, declared)
	assert.False(t, ok)
}

func TestPresentParticiple(t *testing.T) {
	assert.Equal(t, "Upgrading", Upgrade.PresentParticiple())
	assert.Equal(t, "Downgrading", Downgrade.PresentParticiple())
	assert.Equal(t, "Flashing", Flashing.PresentParticiple())
}
