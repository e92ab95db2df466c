//go:build !windows

package adb

import "os/exec"

// setNoWindow is a no-op off Windows; there's no console window to hide.
func setNoWindow(cmd *exec.Cmd) {}
