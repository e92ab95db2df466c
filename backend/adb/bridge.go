// Package adb wraps the platform debug tool (adb) as a set of process
// invocations: device enumeration and per-device shell/forwarding commands.
// It is the sole collaborator that talks to adb directly; its caller (fleet)
// only sees Device values and Invoke's captured output.
package adb

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Device describes one adb-visible device.
type Device struct {
	Serial string
}

// NonSuccessExitCode is returned by Invoke when the child process exits
// nonzero; it carries the full captured output for diagnostics, per spec
// §4.1.
type NonSuccessExitCode struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *NonSuccessExitCode) Error() string {
	return errors.Errorf("adb %s: exit code %d: %s", strings.Join(e.Args, " "), e.ExitCode, e.Output).Error()
}

// ErrParseFailure is returned by EnumerateDevices when the expected "device"
// token appears without a leading whitespace-delimited serial.
var ErrParseFailure = errors.New("adb: could not parse device list")

// Bridge invokes the adb executable. The zero value is not usable; call New.
type Bridge struct {
	executable string
	log        *logrus.Entry
}

// New resolves the adb executable (honoring the ANDROIDFS_ADB_PATH
// override, falling back to PATH lookup) and returns a ready Bridge.
func New(log *logrus.Entry) (*Bridge, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	exe := os.Getenv("ANDROIDFS_ADB_PATH")
	if exe == "" {
		path, err := exec.LookPath("adb")
		if err != nil {
			return nil, errors.Wrap(err, "could not locate adb executable")
		}
		exe = path
	}
	return &Bridge{executable: exe, log: log}, nil
}

// EnumerateDevices runs "adb devices" and parses its line-oriented output,
// yielding one Device per line ending in the token "device".
func (b *Bridge) EnumerateDevices(ctx context.Context) ([]Device, error) {
	out, err := b.Invoke(ctx, nil, false, "devices")
	if err != nil {
		return nil, errors.Wrap(err, "enumerate devices")
	}
	return parseDeviceList(out)
}

// parseDeviceList parses "adb devices" output, yielding one Device per line
// ending in the token "device" (spec §4.1). Split out from EnumerateDevices
// so the parsing logic can be tested without an adb executable.
func parseDeviceList(out string) ([]Device, error) {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[len(fields)-1] != "device" {
			continue
		}
		if len(fields) < 2 {
			return nil, ErrParseFailure
		}
		devices = append(devices, Device{Serial: fields[0]})
	}
	return devices, nil
}

// Invoke runs adb with the given args, optionally scoped to a device and
// optionally wrapped in a "shell" invocation (spec §4.1). It returns the
// full captured stdout+stderr; a nonzero exit produces *NonSuccessExitCode.
func (b *Bridge) Invoke(ctx context.Context, serial *string, shell bool, args ...string) (string, error) {
	fullArgs := make([]string, 0, len(args)+3)
	if serial != nil {
		fullArgs = append(fullArgs, "-s", *serial)
	}
	if shell {
		fullArgs = append(fullArgs, "shell")
	}
	fullArgs = append(fullArgs, args...)

	b.log.WithField("args", fullArgs).Debug("adb: invoking")

	cmd := exec.CommandContext(ctx, b.executable, fullArgs...)
	setNoWindow(cmd)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	output := combined.String()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return output, &NonSuccessExitCode{Args: fullArgs, ExitCode: exitErr.ExitCode(), Output: output}
		}
		return output, errors.Wrapf(err, "adb %s", strings.Join(fullArgs, " "))
	}
	return output, nil
}

// PushAndLaunchDaemon pushes the daemon binary to the device and marks it
// executable (spec §4.5 step 3). Launching it is the caller's job (fleet
// spawns a long-lived shell command via Invoke for that), since that call
// blocks for the daemon's lifetime.
func (b *Bridge) PushAndLaunchDaemon(ctx context.Context, serial, localPath, remotePath string) error {
	if _, err := b.Invoke(ctx, &serial, false, "push", localPath, remotePath); err != nil {
		return errors.Wrap(err, "push daemon binary")
	}
	if _, err := b.Invoke(ctx, &serial, false, "shell", "chmod", "555", remotePath); err != nil {
		return errors.Wrap(err, "chmod daemon binary")
	}
	return nil
}

// Forward runs "adb forward tcp:<localPort> tcp:<remotePort>" for serial,
// returning nil on success. Used by fleet's port allocator to probe ports
// one at a time (spec §4.5 step 1).
func (b *Bridge) Forward(ctx context.Context, serial string, localPort, remotePort int) error {
	_, err := b.Invoke(ctx, &serial, false, "forward",
		"tcp:"+strconv.Itoa(localPort), "tcp:"+strconv.Itoa(remotePort))
	return err
}
