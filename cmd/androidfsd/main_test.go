package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaultsToDebug(t *testing.T) {
	t.Setenv("ANDROIDFS_LOG_LEVEL", "")
	entry := newLogger()
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())
}

func TestNewLoggerHonorsEnvOverride(t *testing.T) {
	t.Setenv("ANDROIDFS_LOG_LEVEL", "warn")
	entry := newLogger()
	assert.Equal(t, logrus.WarnLevel, entry.Logger.GetLevel())
}

func TestNewLoggerIgnoresInvalidLevel(t *testing.T) {
	t.Setenv("ANDROIDFS_LOG_LEVEL", "not-a-level")
	entry := newLogger()
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())
}

func TestLocateDaemonBinaryHonorsEnvOverride(t *testing.T) {
	t.Setenv("ANDROIDFS_DAEMON_PATH", "/tmp/custom-daemon")
	p, err := locateDaemonBinary()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-daemon", p)
}

func TestLocateDaemonBinaryFallsBackToDefaultName(t *testing.T) {
	t.Setenv("ANDROIDFS_DAEMON_PATH", "")
	p, err := locateDaemonBinary()
	require.NoError(t, err)
	assert.Contains(t, p, "androidfs_server")
}
