package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-androidfs/androidfs/volume"
)

func newTestSupervisor() *Supervisor {
	return New(nil, func() (string, error) { return "", nil }, nil)
}

func TestAllocateDrivePrefersQOnward(t *testing.T) {
	s := newTestSupervisor()
	drive, err := s.allocateDrive()
	require.NoError(t, err)
	assert.Equal(t, "Q", drive)
}

func TestAllocateDriveSkipsTaken(t *testing.T) {
	s := newTestSupervisor()
	s.usedDrives["Q"] = struct{}{}
	s.usedDrives["R"] = struct{}{}
	drive, err := s.allocateDrive()
	require.NoError(t, err)
	assert.Equal(t, "S", drive)
}

func TestAllocateDriveExhausted(t *testing.T) {
	s := newTestSupervisor()
	for _, l := range driveLetters {
		s.usedDrives[l] = struct{}{}
	}
	_, err := s.allocateDrive()
	assert.ErrorIs(t, err, ErrNoAvailableDriveLetter)
}

func TestHandleEventReleasesAllocation(t *testing.T) {
	s := newTestSupervisor()
	s.active["ABC123"] = struct{}{}
	s.allocation["ABC123"] = deviceAllocation{port: 15000, drive: "Q"}
	s.usedPorts[15000] = struct{}{}
	s.usedDrives["Q"] = struct{}{}

	s.handleEvent(fleetEvent{kind: eventDeviceDown, serial: "ABC123"})

	_, stillActive := s.active["ABC123"]
	assert.False(t, stillActive)
	_, portStillUsed := s.usedPorts[15000]
	assert.False(t, portStillUsed)
	_, driveStillUsed := s.usedDrives["Q"]
	assert.False(t, driveStillUsed)
}

func TestHandleEventTracksMountStarted(t *testing.T) {
	s := newTestSupervisor()
	s.active["ABC123"] = struct{}{}

	s.handleEvent(fleetEvent{kind: eventMountStarted, serial: "ABC123", host: nil})
	_, tracked := s.mounts["ABC123"]
	assert.True(t, tracked)
}

func TestMountOptionsCarriesVolumeInformation(t *testing.T) {
	info := volume.VolumeInformation{
		Name:              "ABC123",
		FilesystemName:    "NTFS",
		FlagCaseSensitive: true,
	}
	opts := mountOptions(info)
	assert.Contains(t, opts, "volname=ABC123")
	assert.Contains(t, opts, "fsname=ABC123")
	assert.Contains(t, opts, "--FileSystemName=NTFS")
	assert.Contains(t, opts, "casesensitive")
}

func TestDriveLettersOrderMatchesPreferenceList(t *testing.T) {
	require.True(t, len(driveLetters) >= 21)
	assert.Equal(t, "Q", driveLetters[0])
	assert.Equal(t, "Z", driveLetters[9])
	assert.Equal(t, "D", driveLetters[10])
	assert.Equal(t, "P", driveLetters[len(driveLetters)-1])
}
