package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStampedVersionWins(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", String())
	assert.Equal(t, "tunesync/v1.2.3", Agent("tunesync"))
}

func TestUnstampedVersion(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = ""
	assert.NotEmpty(t, String())
}
