// Package fleet implements the control loop that discovers tethered
// devices, allocates a port and drive per device, deploys and launches the
// remote daemon, and coordinates each device's mount/unmount lifecycle
// (spec §4.5/§5).
package fleet

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/go-androidfs/androidfs/backend/adb"
	"github.com/go-androidfs/androidfs/hostmount"
	"github.com/go-androidfs/androidfs/rpcclient"
	"github.com/go-androidfs/androidfs/volume"
	"github.com/winfsp/cgofuse/fuse"
)

const (
	discoveryInterval = 100 * time.Millisecond
	daemonReadyDelay  = 500 * time.Millisecond
	remoteDaemonPort  = 12345
	portRangeLow      = 15000
	portRangeHigh     = 16000
	remoteDaemonPath  = "/data/local/tmp/androidfs_server"
)

// driveLetters is the preference order spec §4.5 step 2 names: Q onward,
// wrapping to D, to avoid colliding with common host assignments.
var driveLetters = func() []string {
	var letters []string
	for c := 'Q'; c <= 'Z'; c++ {
		letters = append(letters, string(c))
	}
	for c := 'D'; c <= 'P'; c++ {
		letters = append(letters, string(c))
	}
	return letters
}()

// Setup errors (spec §4.5).
var (
	ErrNoAvailablePort        = errors.New("fleet: no available port in range")
	ErrNoAvailableDriveLetter = errors.New("fleet: no available drive letter")
	ErrDaemonUnreachable      = errors.New("fleet: daemon did not become reachable")
)

// eventKind distinguishes the transitions a device thread reports back to
// the supervisor.
type eventKind int

const (
	eventDeviceDown eventKind = iota
	eventMountStarted
)

// fleetEvent is how the daemon-watchdog and mount goroutines tell the
// supervisor a device left the active set, or that a mount has come up,
// replacing the literal shared-mutex description (spec §9's suggested
// redesign) with message passing: only the supervisor goroutine ever
// mutates the active set or the per-serial mount-host table.
type fleetEvent struct {
	kind   eventKind
	serial string
	host   *fuse.FileSystemHost
}

// DaemonLocator resolves the local path to the daemon binary to push (spec
// §4.5 step 3). Kept as a function field rather than a fixed path since the
// binary's location is a deployment concern, not a protocol one.
type DaemonLocator func() (string, error)

// Supervisor is the persistent control loop of spec §4.5.
type Supervisor struct {
	bridge  *adb.Bridge
	locator DaemonLocator
	log     *logrus.Entry

	events chan fleetEvent

	active     map[string]struct{}
	usedPorts  map[int]struct{}
	usedDrives map[string]struct{}
	allocation map[string]deviceAllocation
	mounts     map[string]*fuse.FileSystemHost
}

// deviceAllocation records the port and drive claimed for a serial so they
// can be released once the device leaves the active set.
type deviceAllocation struct {
	port  int
	drive string
}

// New builds a Supervisor. locator resolves the local daemon binary's path
// at deploy time.
func New(bridge *adb.Bridge, locator DaemonLocator, log *logrus.Entry) *Supervisor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Supervisor{
		bridge:     bridge,
		locator:    locator,
		log:        log,
		events:     make(chan fleetEvent),
		active:     make(map[string]struct{}),
		usedPorts:  make(map[int]struct{}),
		usedDrives: make(map[string]struct{}),
		allocation: make(map[string]deviceAllocation),
		mounts:     make(map[string]*fuse.FileSystemHost),
	}
}

// Run is the persistent loop (spec §4.5): enumerate, diff, Setup new
// serials, sleep, repeat. It also drains fleetEvent notifications from
// device goroutines between ticks, the only place the active set is
// mutated.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.handleEvent(ev)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) handleEvent(ev fleetEvent) {
	switch ev.kind {
	case eventMountStarted:
		s.mounts[ev.serial] = ev.host
	case eventDeviceDown:
		// spec §4.5 step 4 / §5: daemon exit unmounts the drive, tearing
		// down any in-flight framework calls, so a stale mount never
		// outlives the device leaving the active set (spec §8 scenario 6).
		if host, ok := s.mounts[ev.serial]; ok {
			host.Unmount()
			delete(s.mounts, ev.serial)
		}
		delete(s.active, ev.serial)
		if a, ok := s.allocation[ev.serial]; ok {
			delete(s.usedPorts, a.port)
			delete(s.usedDrives, a.drive)
			delete(s.allocation, ev.serial)
		}
		s.log.WithField("serial", ev.serial).Info("device left active set")
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	devices, err := s.bridge.EnumerateDevices(ctx)
	if err != nil {
		s.log.WithError(err).Warn("enumerate devices failed")
		return
	}
	for _, d := range devices {
		if _, ok := s.active[d.Serial]; ok {
			continue
		}
		s.active[d.Serial] = struct{}{}
		drive, err := s.Setup(ctx, d.Serial)
		if err != nil {
			delete(s.active, d.Serial)
			if a, ok := s.allocation[d.Serial]; ok {
				delete(s.usedPorts, a.port)
				delete(s.usedDrives, a.drive)
				delete(s.allocation, d.Serial)
			}
			s.log.WithError(err).WithField("serial", d.Serial).Error("setup failed")
			continue
		}
		s.log.WithFields(logrus.Fields{"serial": d.Serial, "drive": drive}).Info("device mounted")
	}
}

// Setup performs spec §4.5's eight numbered steps for one newly discovered
// serial, returning the chosen drive identifier.
func (s *Supervisor) Setup(ctx context.Context, serial string) (string, error) {
	port, err := s.allocatePort(ctx, serial)
	if err != nil {
		return "", err
	}
	drive, err := s.allocateDrive()
	if err != nil {
		return "", err
	}
	s.allocation[serial] = deviceAllocation{port: port, drive: drive}

	localPath, err := s.locator()
	if err != nil {
		return "", errors.Wrap(err, "locate daemon binary")
	}
	if err := s.bridge.PushAndLaunchDaemon(ctx, serial, localPath, remoteDaemonPath); err != nil {
		return "", err
	}

	go s.runDaemonWatchdog(serial, remoteDaemonPath)

	time.Sleep(daemonReadyDelay)

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		return "", errors.Wrap(ErrDaemonUnreachable, err.Error())
	}

	go s.runMount(serial, drive, conn)

	return drive, nil
}

// allocatePort implements spec §4.5 step 1: probe each port in
// [15000,16000] via "adb forward" until one succeeds.
func (s *Supervisor) allocatePort(ctx context.Context, serial string) (int, error) {
	for p := portRangeLow; p <= portRangeHigh; p++ {
		if _, taken := s.usedPorts[p]; taken {
			continue
		}
		if err := s.bridge.Forward(ctx, serial, p, remoteDaemonPort); err == nil {
			s.usedPorts[p] = struct{}{}
			return p, nil
		}
	}
	return 0, ErrNoAvailablePort
}

// allocateDrive implements spec §4.5 step 2: the first preference-list
// identifier whose root does not already exist on the host.
func (s *Supervisor) allocateDrive() (string, error) {
	for _, letter := range driveLetters {
		if _, taken := s.usedDrives[letter]; taken {
			continue
		}
		if !driveRootExists(letter) {
			s.usedDrives[letter] = struct{}{}
			return letter, nil
		}
	}
	return "", ErrNoAvailableDriveLetter
}

func driveRootExists(letter string) bool {
	_, err := os.Stat(letter + `:\`)
	return err == nil
}

// runDaemonWatchdog implements spec §4.5 step 4: runs the daemon shell
// command to completion, then reports the device down so the supervisor
// drops it from the active set. If the mount goroutine already reported the
// same serial down, this is a no-op.
func (s *Supervisor) runDaemonWatchdog(serial, remotePath string) {
	ctx := context.Background()
	_, err := s.bridge.Invoke(ctx, &serial, true, remotePath)
	if err != nil {
		s.log.WithError(err).WithField("serial", serial).Debug("daemon process exited")
	}
	s.events <- fleetEvent{kind: eventDeviceDown, serial: serial}
}

// runMount implements spec §4.5 step 7: build the per-device volume.Handler
// and hostmount.FileSystem, then enter the framework's blocking mount loop
// for the drive's lifetime. The host is handed to the supervisor before the
// blocking call so the daemon-watchdog (or the mount's own return) can
// unmount it; on return, the serial is reported down.
func (s *Supervisor) runMount(serial, drive string, conn net.Conn) {
	client := rpcclient.New(conn, s.log.WithField("serial", serial))
	defer client.Close()

	handler := volume.New(drive, client, s.log.WithField("serial", serial))
	fs := hostmount.New(handler, s.log.WithField("serial", serial))

	host := fuse.NewFileSystemHost(fs)
	host.SetCapReaddirPlus(true)

	s.events <- fleetEvent{kind: eventMountStarted, serial: serial, host: host}

	host.Mount(drive+":", mountOptions(handler.GetVolumeInformation()))

	s.events <- fleetEvent{kind: eventDeviceDown, serial: serial}
}

// mountOptions renders a volume.VolumeInformation (spec §4.4's
// get_volume_information) into the "-o key=value" / "--Option=value" flags
// cgofuse's WinFsp-backed Mount expects, so the declared volume name and
// filesystem name actually reach the host instead of only satisfying the
// get_volume_information callback's return value.
func mountOptions(info volume.VolumeInformation) []string {
	opts := []string{
		"-o", "volname=" + info.Name,
		"-o", "fsname=" + info.Name,
		"--FileSystemName=" + info.FilesystemName,
	}
	if info.FlagCaseSensitive {
		opts = append(opts, "-o", "casesensitive")
	}
	return opts
}
