package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "v1.2.0"

	info := GetInfo()
	assert.Equal(t, "v1.2.0", info.Version)
	assert.Equal(t, Platform, info.Platform)
	assert.Contains(t, info.String(), "Version: v1.2.0")
}
