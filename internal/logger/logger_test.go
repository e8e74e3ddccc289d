package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "qmsgov.log")

	log, err := New(&Config{File: file, Level: "debug", Format: "json"})
	require.NoError(t, err)

	log.Info("change tracked")
	_ = log.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "change tracked")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{MaxSize: 1, Level: "trace", Format: "json"}).Validate())
	assert.Error(t, (&Config{MaxSize: 1, Level: "info", Format: "xml"}).Validate())
	assert.Error(t, (&Config{Level: "info", Format: "json"}).Validate())

	_, err := New(&Config{Level: "verbose"})
	assert.Error(t, err)
}
